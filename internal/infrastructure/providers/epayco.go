package providers

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"licensepay.backend/internal/domain/entities"
	"licensepay.backend/pkg/logger"
)

// EpaycoConfig holds the credentials an epayco-style checkout account was
// provisioned with.
type EpaycoConfig struct {
	ClientID string
	PKey     string
}

// EpaycoAdapter implements the caret-joined-tuple signature scheme and
// peso-denominated status table.
type EpaycoAdapter struct {
	cfg EpaycoConfig
}

func NewEpaycoAdapter(cfg EpaycoConfig) *EpaycoAdapter {
	return &EpaycoAdapter{cfg: cfg}
}

func (a *EpaycoAdapter) Name() string { return "epayco" }

// VerifySignature recomputes SHA-256 over
// <clientId>^<pKey>^<refPayco>^<transactionId>^<amount>^<currency> and
// compares hex-equal to the form field x_signature. Any missing field or
// decoding error is treated as an invalid signature.
func (a *EpaycoAdapter) VerifySignature(req WebhookRequest) bool {
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return false
	}

	signature := form.Get("x_signature")
	refPayco := form.Get("x_ref_payco")
	transactionID := form.Get("x_transaction_id")
	amount := form.Get("x_amount")
	currency := form.Get("x_currency_code")

	if signature == "" || refPayco == "" || transactionID == "" || amount == "" || currency == "" {
		return false
	}
	if a.cfg.ClientID == "" || a.cfg.PKey == "" {
		return false
	}

	tuple := strings.Join([]string{a.cfg.ClientID, a.cfg.PKey, refPayco, transactionID, amount, currency}, "^")
	sum := sha256.Sum256([]byte(tuple))
	computed := hex.EncodeToString(sum[:])

	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(signature))) == 1
}

// epaycoStatusTable maps epayco's transaction-state strings to the
// provider-agnostic status. Unknown codes default to FAILED with a warning.
var epaycoStatusTable = map[string]entities.NormalizedStatus{
	"Aceptada":  entities.NormalizedStatusPaid,
	"Pendiente": entities.NormalizedStatusPending,
	"Rechazada": entities.NormalizedStatusFailed,
	"Fallida":   entities.NormalizedStatusFailed,
	"Expirada":  entities.NormalizedStatusFailed,
	"Cancelada": entities.NormalizedStatusFailed,
}

// ParseWebhook reads the form-encoded body epayco posts and returns a
// single normalized payment event. The externalRef is the merchant's own
// invoice/order correlation field (x_extra1), falling back to the
// transaction id when absent.
func (a *EpaycoAdapter) ParseWebhook(req WebhookRequest) ([]entities.NormalizedEvent, error) {
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return nil, fmt.Errorf("epayco: decode form body: %w", err)
	}

	transactionID := form.Get("x_transaction_id")
	state := form.Get("x_transaction_state")

	status, known := epaycoStatusTable[state]
	if !known {
		logger.Warn(nil, "epayco: unknown transaction state, defaulting to FAILED", zap.String("state", state))
		status = entities.NormalizedStatusFailed
	}

	externalRef := form.Get("x_extra1")
	if externalRef == "" {
		externalRef = transactionID
		logger.Warn(nil, "epayco: missing x_extra1 correlation field, falling back to transaction id", zap.String("transactionId", transactionID))
	}

	amountCents := pesosToCents(form.Get("x_amount"))

	createdAt := parseEpaycoDate(form.Get("x_transaction_date"))
	if createdAt.IsZero() {
		createdAt = parseEpaycoDate(form.Get("x_fecha_transaccion"))
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	payload, err := json.Marshal(formToMap(form))
	if err != nil {
		return nil, err
	}

	return []entities.NormalizedEvent{{
		Provider:    a.Name(),
		ExternalRef: externalRef,
		EventID:     transactionID,
		Type:        entities.EventTypePayment,
		Status:      status,
		AmountCents: amountCents,
		Currency:    strings.ToUpper(form.Get("x_currency_code")),
		Payload:     payload,
		RawHeaders:  flattenHeaders(req.Headers),
		RawBody:     req.Body,
		EventIndex:  0,
		CreatedAt:   createdAt,
	}}, nil
}

// parseEpaycoDate reads the transaction date epayco stamps on its webhook
// form ("2006-01-02 15:04:05" in the merchant's timezone). A zero Time
// means the field was absent or unparseable.
func parseEpaycoDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02 15:04:05", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// pesosToCents converts an epayco amount in major units (pesos, possibly
// with a decimal point) to integer cents.
func pesosToCents(raw string) int64 {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}

func formToMap(form url.Values) map[string]string {
	m := make(map[string]string, len(form))
	for k := range form {
		m[k] = form.Get(k)
	}
	return m
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
