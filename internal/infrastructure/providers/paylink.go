package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"licensepay.backend/internal/domain/entities"
	"licensepay.backend/pkg/logger"
)

// PaylinkConfig holds the shared secret a paylink-style checkout account
// signs its webhook deliveries with.
type PaylinkConfig struct {
	WebhookSecret string
}

// PaylinkAdapter implements the HMAC-SHA256-over-"<timestamp>.<rawBody>"
// signature scheme and the content.external_id fallback chain. Amounts
// are already expressed in minor units.
type PaylinkAdapter struct {
	cfg PaylinkConfig
}

func NewPaylinkAdapter(cfg PaylinkConfig) *PaylinkAdapter {
	return &PaylinkAdapter{cfg: cfg}
}

func (a *PaylinkAdapter) Name() string { return "paylink" }

const (
	paylinkTimestampHeader = "X-Paylink-Timestamp"
	paylinkSignatureHeader = "X-Paylink-Signature"
)

// VerifySignature recomputes HMAC-SHA256 over "<timestamp>.<rawBody>" and
// compares hex-equal to the X-Paylink-Signature header in constant time.
func (a *PaylinkAdapter) VerifySignature(req WebhookRequest) bool {
	timestamp := req.Header(paylinkTimestampHeader)
	signature := req.Header(paylinkSignatureHeader)
	if timestamp == "" || signature == "" || a.cfg.WebhookSecret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(timestamp + "." + string(req.Body)))
	computed := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(signature))) == 1
}

type paylinkPayload struct {
	ExternalID string `json:"external_id"`
	EventID    string `json:"event_id"`
	CreatedAt  string `json:"created_at"`
	Content    struct {
		ExternalID          string `json:"external_id"`
		UniqueTransactionID string `json:"unique_transaction_id"`
		Metadata            struct {
			UniqueTransactionID string `json:"uniqueTransactionId"`
		} `json:"metadata"`
		Status   string `json:"status"`
		Type     string `json:"type"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"content"`
}

var paylinkStatusTable = map[string]entities.NormalizedStatus{
	"paid":       entities.NormalizedStatusPaid,
	"completed":  entities.NormalizedStatusPaid,
	"pending":    entities.NormalizedStatusPending,
	"processing": entities.NormalizedStatusPending,
	"failed":     entities.NormalizedStatusFailed,
	"cancelled":  entities.NormalizedStatusFailed,
	"expired":    entities.NormalizedStatusFailed,
}

// ParseWebhook decodes the JSON body and resolves the externalRef via the
// priority chain content.external_id -> content.unique_transaction_id ->
// content.metadata.uniqueTransactionId -> top-level external_id -> eventId.
func (a *PaylinkAdapter) ParseWebhook(req WebhookRequest) ([]entities.NormalizedEvent, error) {
	var body paylinkPayload
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, fmt.Errorf("paylink: decode json body: %w", err)
	}

	externalRef := body.Content.ExternalID
	if externalRef == "" {
		externalRef = body.Content.UniqueTransactionID
	}
	if externalRef == "" {
		externalRef = body.Content.Metadata.UniqueTransactionID
	}
	if externalRef == "" {
		externalRef = body.ExternalID
	}
	if externalRef == "" {
		externalRef = body.EventID
		logger.Warn(nil, "paylink: no correlation field found, falling back to eventId", zap.String("eventId", body.EventID))
	}

	eventType := entities.EventTypePayment
	if body.Content.Type == "balance_credit" {
		eventType = entities.EventTypeBalanceCredit
	}

	status, known := paylinkStatusTable[strings.ToLower(body.Content.Status)]
	if !known {
		logger.Warn(nil, "paylink: unknown status, defaulting to FAILED", zap.String("status", body.Content.Status))
		status = entities.NormalizedStatusFailed
	}

	createdAt, err := time.Parse(time.RFC3339, body.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	return []entities.NormalizedEvent{{
		Provider:    a.Name(),
		ExternalRef: externalRef,
		EventID:     body.EventID,
		Type:        eventType,
		Status:      status,
		AmountCents: body.Content.Amount,
		Currency:    strings.ToUpper(body.Content.Currency),
		Payload:     req.Body,
		RawHeaders:  flattenHeaders(req.Headers),
		RawBody:     req.Body,
		EventIndex:  0,
		CreatedAt:   createdAt,
	}}, nil
}
