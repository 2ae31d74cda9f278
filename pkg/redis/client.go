package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// Init initializes the Redis client
func Init(url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}

	if password != "" {
		opts.Password = password
	}

	client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pingClient(ctx, client); err != nil {
		return err
	}

	return nil
}

func pingClient(ctx context.Context, c *redis.Client) error {
	return c.Ping(ctx).Err()
}

// SetClient sets the Redis client (used for testing)
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client
func GetClient() *redis.Client {
	return client
}

// Set stores a key-value pair with expiration
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key
func Get(ctx context.Context, key string) (string, error) {
	return client.Get(ctx, key).Result()
}

// Del removes a key
func Del(ctx context.Context, key string) error {
	return client.Del(ctx, key).Err()
}

// SetNX sets a key only if it does not exist
func SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return client.SetNX(ctx, key, value, expiration).Result()
}

// Expire sets a TTL on an existing key.
func Expire(ctx context.Context, key string, expiration time.Duration) error {
	return client.Expire(ctx, key, expiration).Err()
}

// ZAddNow records member in the sorted set at key, scored by its
// nanosecond timestamp. Used by the gateway's sliding-window rate limiter
// to log a request time.
func ZAddNow(ctx context.Context, key, member string, scoreNanos int64) error {
	return client.ZAdd(ctx, key, redis.Z{Score: float64(scoreNanos), Member: member}).Err()
}

// ZRemRangeByScore evicts members scored between min and max (inclusive),
// both expressed as the string forms ZRemRangeByScore expects ("-inf",
// a nanosecond timestamp, etc).
func ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	return client.ZRemRangeByScore(ctx, key, min, max).Err()
}

// ZCard reports the number of members currently in the sorted set at key.
func ZCard(ctx context.Context, key string) (int64, error) {
	return client.ZCard(ctx, key).Result()
}
