package usecases

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/infrastructure/providers"
	"licensepay.backend/pkg/logger"
	"licensepay.backend/pkg/utils"
)

// TransactionHandler is the entry point the ingress layer dispatches each
// normalized event to. TransactionEngine implements it.
type TransactionHandler interface {
	Handle(ctx context.Context, event entities.NormalizedEvent) error
}

// EventOutcome classifies how a single normalized event was resolved.
type EventOutcome string

const (
	OutcomeProcessed EventOutcome = "processed"
	OutcomeDuplicate EventOutcome = "duplicate"
	OutcomeFailed    EventOutcome = "failed"
)

// EventResult is the per-event row in an ingress result summary.
type EventResult struct {
	ExternalRef string       `json:"externalRef"`
	Outcome     EventOutcome `json:"outcome"`
	Error       string       `json:"error,omitempty"`
}

// IngressResult aggregates the outcomes of every normalized event carried
// by one webhook delivery.
type IngressResult struct {
	TotalEvents      int           `json:"totalEvents"`
	ProcessedEvents  int           `json:"processedEvents"`
	FailedEvents     int           `json:"failedEvents"`
	DuplicateEvents  int           `json:"duplicateEvents"`
	ProcessingTimeMs int64         `json:"processingTimeMs"`
	Results          []EventResult `json:"results"`
}

// WebhookIngressUsecase resolves the adapter, verifies/parses the inbound
// delivery, and de-duplicates + dispatches each normalized event.
type WebhookIngressUsecase struct {
	registry    *providers.Registry
	webhookRepo repositories.WebhookEventRepository
	txHandler   TransactionHandler
}

// NewWebhookIngressUsecase builds a WebhookIngressUsecase.
func NewWebhookIngressUsecase(
	registry *providers.Registry,
	webhookRepo repositories.WebhookEventRepository,
	txHandler TransactionHandler,
) *WebhookIngressUsecase {
	return &WebhookIngressUsecase{
		registry:    registry,
		webhookRepo: webhookRepo,
		txHandler:   txHandler,
	}
}

// Process runs the full ingress algorithm for one inbound delivery:
// resolve adapter, verify signature, parse events, de-duplicate against
// the (provider, externalRef) idempotency index, dispatch to C3.
func (u *WebhookIngressUsecase) Process(ctx context.Context, providerName string, req providers.WebhookRequest) (*IngressResult, error) {
	start := time.Now()

	adapter, err := u.registry.Resolve(providerName)
	if err != nil {
		return nil, domainerrors.NewAppError(400, domainerrors.CodeInvalidInput, "unknown provider: "+providerName, err)
	}

	if !adapter.VerifySignature(req) {
		u.recordSignatureFailure(ctx, providerName, req)
		return nil, domainerrors.Unauthorized("signature verification failed")
	}

	events, err := adapter.ParseWebhook(req)
	if err != nil {
		return nil, domainerrors.BadRequest("malformed webhook body: " + err.Error())
	}

	result := &IngressResult{TotalEvents: len(events), Results: make([]EventResult, 0, len(events))}
	for _, event := range events {
		outcome := u.processEvent(ctx, event)
		result.Results = append(result.Results, outcome)
		switch outcome.Outcome {
		case OutcomeProcessed:
			result.ProcessedEvents++
		case OutcomeDuplicate:
			result.DuplicateEvents++
		case OutcomeFailed:
			result.FailedEvents++
		}
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

func (u *WebhookIngressUsecase) processEvent(ctx context.Context, event entities.NormalizedEvent) EventResult {
	existing, err := u.webhookRepo.GetByIdempotencyKey(ctx, event.Provider, event.ExternalRef)
	if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		logger.Error(ctx, "webhook ingress: idempotency lookup failed", zap.Error(err))
		return EventResult{ExternalRef: event.ExternalRef, Outcome: OutcomeFailed, Error: err.Error()}
	}

	if existing == nil {
		return u.ingestNew(ctx, event)
	}

	if existing.EventStatus == event.Status {
		logger.Info(ctx, "webhook ingress: duplicate event, skipping",
			zap.String("provider", event.Provider), zap.String("externalRef", event.ExternalRef))
		return EventResult{ExternalRef: event.ExternalRef, Outcome: OutcomeDuplicate}
	}

	// Same key, different status: a transition such as PENDING->PAID must
	// not be lost, so the existing record is updated and re-dispatched.
	existing.EventID = event.EventID
	existing.EventStatus = event.Status
	existing.EventType = event.Type
	existing.AmountCents = event.AmountCents
	existing.Currency = event.Currency
	existing.Payload = event.Payload
	existing.RawHeaders = event.RawHeaders
	existing.RawBody = event.RawBody
	return u.dispatch(ctx, existing, event)
}

func (u *WebhookIngressUsecase) ingestNew(ctx context.Context, event entities.NormalizedEvent) EventResult {
	record := &entities.WebhookEvent{
		ID:          utils.GenerateUUIDv7(),
		Provider:    event.Provider,
		ExternalRef: event.ExternalRef,
		EventID:     event.EventID,
		EventType:   event.Type,
		EventStatus: event.Status,
		AmountCents: event.AmountCents,
		Currency:    event.Currency,
		Payload:     event.Payload,
		RawHeaders:  event.RawHeaders,
		RawBody:     event.RawBody,
		Status:      entities.WebhookEventStatusPending,
		EventIndex:  event.EventIndex,
	}
	entities.Sanitize(record)

	if err := u.webhookRepo.Create(ctx, record); err != nil {
		logger.Error(ctx, "webhook ingress: persist failed", zap.Error(err))
		return EventResult{ExternalRef: event.ExternalRef, Outcome: OutcomeFailed, Error: err.Error()}
	}

	return u.dispatch(ctx, record, event)
}

func (u *WebhookIngressUsecase) dispatch(ctx context.Context, record *entities.WebhookEvent, event entities.NormalizedEvent) EventResult {
	now := time.Now()
	dispatchErr := u.txHandler.Handle(ctx, event)

	record.ProcessedAt = &now
	if dispatchErr != nil {
		record.Status = entities.WebhookEventStatusFailed
		record.ErrorMessage = dispatchErr.Error()
	} else {
		record.Status = entities.WebhookEventStatusProcessed
		record.ErrorMessage = ""
	}
	entities.Sanitize(record)

	if err := u.webhookRepo.Update(ctx, record); err != nil {
		logger.Error(ctx, "webhook ingress: failed to persist outcome", zap.Error(err))
	}

	if dispatchErr != nil {
		return EventResult{ExternalRef: event.ExternalRef, Outcome: OutcomeFailed, Error: dispatchErr.Error()}
	}
	return EventResult{ExternalRef: event.ExternalRef, Outcome: OutcomeProcessed}
}

func (u *WebhookIngressUsecase) recordSignatureFailure(ctx context.Context, providerName string, req providers.WebhookRequest) {
	now := time.Now()
	record := &entities.WebhookEvent{
		ID:           utils.GenerateUUIDv7(),
		Provider:     providerName,
		EventType:    entities.EventTypePayment,
		EventStatus:  entities.NormalizedStatusFailed,
		RawHeaders:   providers.FlattenHeaders(req.Headers),
		RawBody:      req.Body,
		Status:       entities.WebhookEventStatusFailed,
		ErrorMessage: "signature verification failed",
		ProcessedAt:  &now,
	}
	entities.Sanitize(record)

	if err := u.webhookRepo.Create(ctx, record); err != nil {
		logger.Error(ctx, "webhook ingress: failed to record signature failure", zap.Error(err))
	}
}
