package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"licensepay.backend/internal/domain/entities"
)

// TransactionRepository persists payment attempts against Orders.
type TransactionRepository interface {
	Create(ctx context.Context, t *entities.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	GetByGatewayRef(ctx context.Context, gateway, gatewayRef string) (*entities.Transaction, error)
	// FindByAmountCorrelation is the amount-correlation fallback lookup used
	// when a FAILED/CANCELLED webhook omits its correlation id: transactions
	// for the gateway in CREATED/PENDING with the given amount, created
	// within the window. Ambiguous if more than one row qualifies.
	FindByAmountCorrelation(ctx context.Context, gateway string, amountCents int64, since time.Time) ([]*entities.Transaction, error)
	// CountOpenForOrder counts sibling transactions in CREATED/PENDING for
	// an order, excluding excludeID — used by the payment-failure handler
	// to decide whether the order should cancel.
	CountOpenForOrder(ctx context.Context, orderID, excludeID uuid.UUID) (int64, error)
	Update(ctx context.Context, t *entities.Transaction) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*entities.Transaction, error)
	// StuckSince lists transactions in one of statuses created before
	// olderThan, oldest first, up to limit — the reconciliation sweep's
	// discovery query for webhooks that were never received.
	StuckSince(ctx context.Context, statuses []entities.TransactionStatus, olderThan time.Time, limit int) ([]*entities.Transaction, error)
}
