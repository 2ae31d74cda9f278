package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensepay.backend/internal/domain/entities"
)

func signedPaylinkRequest(t *testing.T, secret, timestamp string, body []byte) WebhookRequest {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(body)))
	sig := hex.EncodeToString(mac.Sum(nil))

	headers := map[string][]string{
		paylinkTimestampHeader: {timestamp},
		paylinkSignatureHeader: {sig},
	}
	return WebhookRequest{Headers: headers, Body: body}
}

func TestPaylinkAdapter_VerifySignature(t *testing.T) {
	a := NewPaylinkAdapter(PaylinkConfig{WebhookSecret: "shh"})
	body := []byte(`{"content":{"external_id":"order-1","status":"paid","amount":100000,"currency":"usd"}}`)

	req := signedPaylinkRequest(t, "shh", "1690000000", body)
	require.True(t, a.VerifySignature(req))

	wrongSecret := signedPaylinkRequest(t, "other", "1690000000", body)
	require.False(t, a.VerifySignature(wrongSecret))

	require.False(t, a.VerifySignature(WebhookRequest{Body: body}))
}

func TestPaylinkAdapter_ParseWebhook_ExternalRefFallbackChain(t *testing.T) {
	a := NewPaylinkAdapter(PaylinkConfig{WebhookSecret: "shh"})

	cases := []struct {
		name     string
		body     string
		expected string
	}{
		{"content.external_id", `{"content":{"external_id":"order-1","status":"paid","amount":1,"currency":"usd"}}`, "order-1"},
		{"content.unique_transaction_id", `{"content":{"unique_transaction_id":"utx-1","status":"paid","amount":1,"currency":"usd"}}`, "utx-1"},
		{"content.metadata.uniqueTransactionId", `{"content":{"metadata":{"uniqueTransactionId":"meta-1"},"status":"paid","amount":1,"currency":"usd"}}`, "meta-1"},
		{"top-level external_id", `{"external_id":"top-1","content":{"status":"paid","amount":1,"currency":"usd"}}`, "top-1"},
		{"eventId fallback", `{"event_id":"evt-1","content":{"status":"paid","amount":1,"currency":"usd"}}`, "evt-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := a.ParseWebhook(WebhookRequest{Body: []byte(tc.body)})
			require.NoError(t, err)
			require.Equal(t, tc.expected, events[0].ExternalRef)
		})
	}
}

func TestPaylinkAdapter_ParseWebhook_BalanceCreditType(t *testing.T) {
	a := NewPaylinkAdapter(PaylinkConfig{WebhookSecret: "shh"})
	body := []byte(`{"content":{"type":"balance_credit","status":"paid","amount":500,"currency":"usd"}}`)
	events, err := a.ParseWebhook(WebhookRequest{Body: body})
	require.NoError(t, err)
	require.Equal(t, entities.EventTypeBalanceCredit, events[0].Type)
}

func TestPaylinkAdapter_ParseWebhook_CarriesProviderTimestamp(t *testing.T) {
	a := NewPaylinkAdapter(PaylinkConfig{WebhookSecret: "shh"})

	body := []byte(`{"event_id":"evt-1","created_at":"2025-03-01T10:30:00Z","content":{"external_id":"order-1","status":"paid","amount":1,"currency":"usd"}}`)
	events, err := a.ParseWebhook(WebhookRequest{Body: body})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), events[0].CreatedAt)

	// a missing created_at falls back to receipt time rather than zero
	noDate := []byte(`{"event_id":"evt-2","content":{"external_id":"order-2","status":"paid","amount":1,"currency":"usd"}}`)
	events, err = a.ParseWebhook(WebhookRequest{Body: noDate})
	require.NoError(t, err)
	require.False(t, events[0].CreatedAt.IsZero())
}
