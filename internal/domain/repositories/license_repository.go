package repositories

import (
	"context"

	"github.com/google/uuid"
	"licensepay.backend/internal/domain/entities"
)

// LicenseRepository persists pre-provisioned license inventory. Callers
// that need FOR UPDATE locking pass a context derived from
// UnitOfWork.WithLock — the implementation is responsible for translating
// that into a row-level exclusive lock.
type LicenseRepository interface {
	Create(ctx context.Context, l *entities.License) error
	BulkCreate(ctx context.Context, licenses []*entities.License) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.License, error)
	// FirstAvailable returns (and, under a locked context, locks) the first
	// AVAILABLE license for productRef, ordered by creation, or ErrNotFound.
	FirstAvailable(ctx context.Context, productRef string) (*entities.License, error)
	// AvailableForUpdate locks and returns up to n AVAILABLE licenses for
	// productRef, oldest first — used by waitlist staging.
	AvailableForUpdate(ctx context.Context, productRef string, n int) ([]*entities.License, error)
	CountByStatus(ctx context.Context, productRef string, status entities.LicenseStatus) (int64, error)
	// GetByOrderID returns the License currently sold or reserved against
	// orderID, or ErrNotFound — used by the admin change-license and
	// resend-license-email operations.
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*entities.License, error)
	// List pages through inventory for productRef ("" = all), optionally
	// filtered by status ("" = any), newest first, returning the total
	// matching count alongside the page.
	List(ctx context.Context, productRef string, status entities.LicenseStatus, limit, offset int) ([]*entities.License, int64, error)
	Update(ctx context.Context, l *entities.License) error
}
