package providers

import (
	"encoding/json"
	"fmt"
	"time"

	"licensepay.backend/internal/domain/entities"
)

// MockAdapter is a deterministic, always-authentic adapter used by the
// integration test suite: it never rejects a signature and parses a plain
// JSON body with no provider-specific quirks.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Name() string { return "mock" }

func (a *MockAdapter) VerifySignature(req WebhookRequest) bool { return true }

type mockPayload struct {
	ExternalRef string `json:"externalRef"`
	EventID     string `json:"eventId"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	CreatedAt   string `json:"createdAt"`
}

func (a *MockAdapter) ParseWebhook(req WebhookRequest) ([]entities.NormalizedEvent, error) {
	var body mockPayload
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, fmt.Errorf("mock: decode json body: %w", err)
	}

	eventType := entities.EventTypePayment
	if body.Type == "balance_credit" {
		eventType = entities.EventTypeBalanceCredit
	}

	status := entities.NormalizedStatus(body.Status)
	switch status {
	case entities.NormalizedStatusPaid, entities.NormalizedStatusPending, entities.NormalizedStatusFailed:
	default:
		status = entities.NormalizedStatusFailed
	}

	createdAt, err := time.Parse(time.RFC3339, body.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	return []entities.NormalizedEvent{{
		Provider:    a.Name(),
		ExternalRef: body.ExternalRef,
		EventID:     body.EventID,
		Type:        eventType,
		Status:      status,
		AmountCents: body.AmountCents,
		Currency:    body.Currency,
		Payload:     req.Body,
		RawHeaders:  flattenHeaders(req.Headers),
		RawBody:     req.Body,
		EventIndex:  0,
		CreatedAt:   createdAt,
	}}, nil
}
