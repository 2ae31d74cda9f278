package repositories

import (
	"context"

	"github.com/google/uuid"
	"licensepay.backend/internal/domain/entities"
)

// WaitlistRepository persists FIFO waitlist entries.
type WaitlistRepository interface {
	Create(ctx context.Context, w *entities.WaitlistEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WaitlistEntry, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*entities.WaitlistEntry, error)
	CountByStatus(ctx context.Context, productRef string, status entities.WaitlistStatus) (int64, error)
	// OldestPendingForUpdate locks and returns up to n PENDING entries for
	// productRef, oldest priority first — used by waitlist staging.
	OldestPendingForUpdate(ctx context.Context, productRef string, n int) ([]*entities.WaitlistEntry, error)
	// OldestReadyForEmail returns the single oldest READY_FOR_EMAIL entry
	// across all products (FIFO tick processes one entry at a time).
	OldestReadyForEmail(ctx context.Context) (*entities.WaitlistEntry, error)
	// DistinctProductRefsPending lists the distinct productRefs that have
	// at least one PENDING entry — the staging job's discovery query.
	DistinctProductRefsPending(ctx context.Context) ([]string, error)
	// List pages through entries ordered by priority ASC (queue position),
	// optionally filtered to one productRef (""  = all), returning the
	// total matching count alongside the page.
	List(ctx context.Context, productRef string, limit, offset int) ([]*entities.WaitlistEntry, int64, error)
	Update(ctx context.Context, w *entities.WaitlistEntry) error
}
