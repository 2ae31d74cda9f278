package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensepay.backend/internal/domain/entities"
)

func signedEpaycoForm(t *testing.T, cfg EpaycoConfig, state string) []byte {
	t.Helper()
	form := url.Values{}
	form.Set("x_ref_payco", "PAYCO-1")
	form.Set("x_transaction_id", "TX-1")
	form.Set("x_amount", "1000.00")
	form.Set("x_currency_code", "cop")
	form.Set("x_transaction_state", state)
	form.Set("x_extra1", "order-1")
	form.Set("x_transaction_date", "2025-03-01 10:30:00")

	tuple := strings.Join([]string{cfg.ClientID, cfg.PKey, "PAYCO-1", "TX-1", "1000.00", "cop"}, "^")
	sum := sha256.Sum256([]byte(tuple))
	form.Set("x_signature", hex.EncodeToString(sum[:]))

	return []byte(form.Encode())
}

func TestEpaycoAdapter_VerifySignature(t *testing.T) {
	cfg := EpaycoConfig{ClientID: "client-1", PKey: "pkey-1"}
	a := NewEpaycoAdapter(cfg)

	body := signedEpaycoForm(t, cfg, "Aceptada")
	require.True(t, a.VerifySignature(WebhookRequest{Body: body}))

	tampered := []byte(strings.Replace(string(body), "1000.00", "2000.00", 1))
	require.False(t, a.VerifySignature(WebhookRequest{Body: tampered}), "a changed amount must break the signature")

	require.False(t, a.VerifySignature(WebhookRequest{Body: []byte("x_signature=")}))
}

func TestEpaycoAdapter_ParseWebhook_StatusAndAmount(t *testing.T) {
	cfg := EpaycoConfig{ClientID: "client-1", PKey: "pkey-1"}
	a := NewEpaycoAdapter(cfg)

	body := signedEpaycoForm(t, cfg, "Aceptada")
	events, err := a.ParseWebhook(WebhookRequest{Body: body})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, entities.NormalizedStatusPaid, events[0].Status)
	require.Equal(t, "order-1", events[0].ExternalRef)
	require.Equal(t, int64(100000), events[0].AmountCents, "1000.00 pesos must convert to 100000 cents")
	require.Equal(t, "COP", events[0].Currency)
	require.Equal(t, time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), events[0].CreatedAt,
		"the event must carry the provider's own transaction timestamp, not receipt time")

	unknownState := signedEpaycoForm(t, cfg, "SomeWeirdState")
	events, err = a.ParseWebhook(WebhookRequest{Body: unknownState})
	require.NoError(t, err)
	require.Equal(t, entities.NormalizedStatusFailed, events[0].Status, "unknown states default to FAILED")
}

func TestEpaycoAdapter_ParseWebhook_MissingExternalRefFallsBackToTransactionID(t *testing.T) {
	cfg := EpaycoConfig{ClientID: "client-1", PKey: "pkey-1"}
	a := NewEpaycoAdapter(cfg)

	form := url.Values{}
	form.Set("x_ref_payco", "PAYCO-1")
	form.Set("x_transaction_id", "TX-1")
	form.Set("x_amount", "1000.00")
	form.Set("x_currency_code", "cop")
	form.Set("x_transaction_state", "Aceptada")
	tuple := strings.Join([]string{cfg.ClientID, cfg.PKey, "PAYCO-1", "TX-1", "1000.00", "cop"}, "^")
	sum := sha256.Sum256([]byte(tuple))
	form.Set("x_signature", hex.EncodeToString(sum[:]))

	events, err := a.ParseWebhook(WebhookRequest{Body: []byte(form.Encode())})
	require.NoError(t, err)
	require.Equal(t, "TX-1", events[0].ExternalRef)
}
