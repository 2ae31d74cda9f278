package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestInitInvalidURL(t *testing.T) {
	err := Init("://invalid-url", "")
	assert.Error(t, err)
}

func TestSetClientAndBasicOpsWithUnreachableRedis(t *testing.T) {
	cli := goredis.NewClient(&goredis.Options{
		Addr:         "127.0.0.1:0", // invalid/unreachable
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	})
	SetClient(cli)
	assert.NotNil(t, GetClient())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.Error(t, Set(ctx, "k", "v", time.Second))
	_, err := Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, Del(ctx, "k"))
	_, err = SetNX(ctx, "k", "v", time.Second)
	assert.Error(t, err)
	assert.Error(t, Expire(ctx, "k", time.Second))
	assert.Error(t, ZAddNow(ctx, "k", "m", 1))
	assert.Error(t, ZRemRangeByScore(ctx, "k", "-inf", "+inf"))
	_, err = ZCard(ctx, "k")
	assert.Error(t, err)
}

func TestInitAndBasicOpsSuccessWithMiniRedis(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable in this environment: %v", err)
	}
	defer srv.Close()

	err = Init("redis://"+srv.Addr(), "")
	assert.NoError(t, err)
	assert.NotNil(t, GetClient())

	ctx := context.Background()
	assert.NoError(t, Set(ctx, "k1", "v1", time.Minute))
	got, err := Get(ctx, "k1")
	assert.NoError(t, err)
	assert.Equal(t, "v1", got)

	ok, err := SetNX(ctx, "k1", "v2", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = SetNX(ctx, "k2", "v2", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, Del(ctx, "k1"))
	_, err = Get(ctx, "k1")
	assert.Error(t, err)

	assert.NoError(t, Set(ctx, "counter", "1", 0))
	assert.NoError(t, Expire(ctx, "counter", time.Minute))

	assert.NoError(t, ZAddNow(ctx, "zset1", "m1", 100))
	assert.NoError(t, ZAddNow(ctx, "zset1", "m2", 200))
	card, err := ZCard(ctx, "zset1")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), card)

	assert.NoError(t, ZRemRangeByScore(ctx, "zset1", "-inf", "150"))
	card, err = ZCard(ctx, "zset1")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), card)
}
