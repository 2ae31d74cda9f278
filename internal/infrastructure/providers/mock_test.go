package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"licensepay.backend/internal/domain/entities"
)

func TestMockAdapter_AlwaysVerifiesAndParsesDeterministically(t *testing.T) {
	a := NewMockAdapter()
	require.True(t, a.VerifySignature(WebhookRequest{}))

	body := []byte(`{"externalRef":"X1","eventId":"evt-1","status":"PAID","amountCents":100000,"currency":"USD"}`)
	events, err := a.ParseWebhook(WebhookRequest{Body: body})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "X1", events[0].ExternalRef)
	require.Equal(t, entities.NormalizedStatusPaid, events[0].Status)
}

func TestMockAdapter_UnknownStatusDefaultsFailed(t *testing.T) {
	a := NewMockAdapter()
	body := []byte(`{"externalRef":"X1","status":"WEIRD"}`)
	events, err := a.ParseWebhook(WebhookRequest{Body: body})
	require.NoError(t, err)
	require.Equal(t, entities.NormalizedStatusFailed, events[0].Status)
}

func TestRegistry_ResolveUnknownProvider(t *testing.T) {
	reg := NewRegistry(NewMockAdapter())

	a, err := reg.Resolve("mock")
	require.NoError(t, err)
	require.Equal(t, "mock", a.Name())

	_, err = reg.Resolve("nonexistent")
	require.Error(t, err)
}
