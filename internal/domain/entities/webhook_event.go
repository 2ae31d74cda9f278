package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus tracks processing outcome, independent of the
// extracted payment status carried in EventStatus.
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "PENDING"
	WebhookEventStatusProcessed WebhookEventStatus = "PROCESSED"
	WebhookEventStatusFailed    WebhookEventStatus = "FAILED"
)

// Sanitization caps applied before persistence.
const (
	MaxStringFieldLen = 1000
	MaxPayloadBytes   = 50000
	MaxRawBodyBytes   = 10000
)

// NormalizedEventType classifies a parsed provider event.
type NormalizedEventType string

const (
	EventTypePayment       NormalizedEventType = "payment"
	EventTypeBalanceCredit NormalizedEventType = "balance_credit"
)

// NormalizedStatus is the provider-agnostic extracted payment status.
type NormalizedStatus string

const (
	NormalizedStatusPaid    NormalizedStatus = "PAID"
	NormalizedStatusPending NormalizedStatus = "PENDING"
	NormalizedStatusFailed  NormalizedStatus = "FAILED"
)

// NormalizedEvent is what a ProviderAdapter.ParseWebhook returns — one per
// logical event carried in a single webhook delivery.
type NormalizedEvent struct {
	Provider    string
	ExternalRef string
	EventID     string
	Type        NormalizedEventType
	Status      NormalizedStatus
	AmountCents int64
	Currency    string
	Payload     json.RawMessage
	RawHeaders  map[string]string
	RawBody     []byte
	EventIndex  int
	CreatedAt   time.Time
}

// WebhookEvent is the audit record and idempotency index entry for a
// single normalized event. (Provider, ExternalRef) is the idempotency key.
type WebhookEvent struct {
	ID           uuid.UUID
	Provider     string
	ExternalRef  string
	EventID      string
	EventType    NormalizedEventType
	EventStatus  NormalizedStatus
	AmountCents  int64
	Currency     string
	Payload      json.RawMessage
	RawHeaders   map[string]string
	RawBody      []byte
	ProcessedAt  *time.Time
	Status       WebhookEventStatus
	ErrorMessage string
	EventIndex   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitize truncates/caps fields per the ingress sanitization policy before
// a WebhookEvent is persisted.
func Sanitize(e *WebhookEvent) {
	if len(e.ExternalRef) > MaxStringFieldLen {
		e.ExternalRef = e.ExternalRef[:MaxStringFieldLen]
	}
	if len(e.EventID) > MaxStringFieldLen {
		e.EventID = e.EventID[:MaxStringFieldLen]
	}
	if len(e.ErrorMessage) > MaxStringFieldLen {
		e.ErrorMessage = e.ErrorMessage[:MaxStringFieldLen]
	}
	e.Payload = sanitizePayload(e.Payload)
	if len(e.RawBody) > MaxRawBodyBytes {
		e.RawBody = e.RawBody[:MaxRawBodyBytes]
	}
}

// sanitizePayload round-trips payload through json.Unmarshal/json.Marshal
// (normalizing whitespace and rejecting anything that isn't valid JSON) and,
// if it is still over MaxPayloadBytes, replaces it with a small valid-JSON
// summary instead of slicing raw bytes — a blind byte truncation can land
// mid-token and persist a broken JSON document.
func sanitizePayload(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return payload
	}

	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return summarizePayload(payload, "payload was not valid JSON")
	}

	normalized, err := json.Marshal(v)
	if err != nil {
		return summarizePayload(payload, "payload could not be re-marshaled")
	}
	if len(normalized) <= MaxPayloadBytes {
		return normalized
	}
	return summarizePayload(payload, "payload exceeded the size cap")
}

// summarizePayload builds a small, always-valid JSON object carrying the
// original size and a truncated string preview, used whenever the payload
// itself can't be persisted verbatim.
func summarizePayload(original []byte, reason string) json.RawMessage {
	preview := string(original)
	if len(preview) > MaxStringFieldLen {
		preview = preview[:MaxStringFieldLen]
	}
	summary, err := json.Marshal(map[string]interface{}{
		"truncated":    true,
		"reason":       reason,
		"originalSize": len(original),
		"preview":      preview,
	})
	if err != nil {
		// json.Marshal of a map[string]interface{} built from known-valid
		// Go values cannot fail; this is an unreachable defensive fallback.
		return json.RawMessage(`{"truncated":true}`)
	}
	return summary
}
