package usecases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/infrastructure/mailqueue"
)

// --- in-memory fakes -------------------------------------------------------

// fakeUOW stands in for a DB transaction. The package-level mutex mirrors
// the serialization a real row-level lock would provide across concurrent
// callers sharing the same in-memory fakes.
var fakeUOWMu sync.Mutex

type fakeUOW struct{}

func (fakeUOW) Do(ctx context.Context, fn func(context.Context) error) error {
	fakeUOWMu.Lock()
	defer fakeUOWMu.Unlock()
	return fn(ctx)
}
func (fakeUOW) WithLock(ctx context.Context) context.Context { return ctx }

type fakeLicenseRepo struct {
	byID map[uuid.UUID]*entities.License
}

func newFakeLicenseRepo() *fakeLicenseRepo {
	return &fakeLicenseRepo{byID: make(map[uuid.UUID]*entities.License)}
}

func (r *fakeLicenseRepo) Create(_ context.Context, l *entities.License) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	r.byID[l.ID] = l
	return nil
}

func (r *fakeLicenseRepo) BulkCreate(ctx context.Context, licenses []*entities.License) error {
	for _, l := range licenses {
		if err := r.Create(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeLicenseRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.License, error) {
	l, ok := r.byID[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return l, nil
}

func (r *fakeLicenseRepo) FirstAvailable(_ context.Context, productRef string) (*entities.License, error) {
	var candidates []*entities.License
	for _, l := range r.byID {
		if l.ProductRef == productRef && l.Status == entities.LicenseStatusAvailable {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return nil, domainerrors.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	return candidates[0], nil
}

func (r *fakeLicenseRepo) AvailableForUpdate(_ context.Context, productRef string, n int) ([]*entities.License, error) {
	var candidates []*entities.License
	for _, l := range r.byID {
		if l.ProductRef == productRef && l.Status == entities.LicenseStatusAvailable {
			candidates = append(candidates, l)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

func (r *fakeLicenseRepo) CountByStatus(_ context.Context, productRef string, status entities.LicenseStatus) (int64, error) {
	var count int64
	for _, l := range r.byID {
		if l.ProductRef == productRef && l.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeLicenseRepo) List(_ context.Context, productRef string, status entities.LicenseStatus, limit, offset int) ([]*entities.License, int64, error) {
	var matches []*entities.License
	for _, l := range r.byID {
		if productRef != "" && l.ProductRef != productRef {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		matches = append(matches, l)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	total := int64(len(matches))
	matches = pageOf(matches, limit, offset)
	return matches, total, nil
}

func (r *fakeLicenseRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*entities.License, error) {
	for _, l := range r.byID {
		if l.OrderID != nil && *l.OrderID == orderID {
			return l, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (r *fakeLicenseRepo) Update(_ context.Context, l *entities.License) error {
	if _, ok := r.byID[l.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	r.byID[l.ID] = l
	return nil
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

type fakeWaitlistRepo struct {
	byID map[uuid.UUID]*entities.WaitlistEntry
}

func newFakeWaitlistRepo() *fakeWaitlistRepo {
	return &fakeWaitlistRepo{byID: make(map[uuid.UUID]*entities.WaitlistEntry)}
}

func (r *fakeWaitlistRepo) Create(_ context.Context, w *entities.WaitlistEntry) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	r.byID[w.ID] = w
	return nil
}

func (r *fakeWaitlistRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.WaitlistEntry, error) {
	w, ok := r.byID[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return w, nil
}

func (r *fakeWaitlistRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*entities.WaitlistEntry, error) {
	for _, w := range r.byID {
		if w.OrderID == orderID {
			return w, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (r *fakeWaitlistRepo) CountByStatus(_ context.Context, productRef string, status entities.WaitlistStatus) (int64, error) {
	var count int64
	for _, w := range r.byID {
		if w.ProductRef == productRef && w.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeWaitlistRepo) OldestPendingForUpdate(_ context.Context, productRef string, n int) ([]*entities.WaitlistEntry, error) {
	var candidates []*entities.WaitlistEntry
	for _, w := range r.byID {
		if w.ProductRef == productRef && w.Status == entities.WaitlistStatusPending {
			candidates = append(candidates, w)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority.Before(candidates[j].Priority) })
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

func (r *fakeWaitlistRepo) DistinctProductRefsPending(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var refs []string
	for _, w := range r.byID {
		if w.Status == entities.WaitlistStatusPending && !seen[w.ProductRef] {
			seen[w.ProductRef] = true
			refs = append(refs, w.ProductRef)
		}
	}
	return refs, nil
}

func (r *fakeWaitlistRepo) OldestReadyForEmail(_ context.Context) (*entities.WaitlistEntry, error) {
	var candidates []*entities.WaitlistEntry
	for _, w := range r.byID {
		if w.Status == entities.WaitlistStatusReadyForEmail {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil, domainerrors.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority.Before(candidates[j].Priority) })
	return candidates[0], nil
}

func (r *fakeWaitlistRepo) List(_ context.Context, productRef string, limit, offset int) ([]*entities.WaitlistEntry, int64, error) {
	var matches []*entities.WaitlistEntry
	for _, w := range r.byID {
		if productRef != "" && w.ProductRef != productRef {
			continue
		}
		matches = append(matches, w)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Priority.Before(matches[j].Priority) })
	total := int64(len(matches))
	matches = pageOf(matches, limit, offset)
	return matches, total, nil
}

func (r *fakeWaitlistRepo) Update(_ context.Context, w *entities.WaitlistEntry) error {
	if _, ok := r.byID[w.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	r.byID[w.ID] = w
	return nil
}

type fakeOrderRepo struct {
	byID map[uuid.UUID]*entities.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{byID: make(map[uuid.UUID]*entities.Order)}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *entities.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	r.byID[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Order, error) {
	o, ok := r.byID[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o *entities.Order) error {
	if _, ok := r.byID[o.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	r.byID[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) List(_ context.Context, limit, offset int) ([]*entities.Order, int64, error) {
	return nil, int64(len(r.byID)), nil
}

type alwaysOKSender struct {
	mu    sync.Mutex
	calls int
}

func (s *alwaysOKSender) Send(_ context.Context, _ mailqueue.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return "fake-message-id", nil
}

func (s *alwaysOKSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// --- tests ------------------------------------------------------------

func newTestInventory(sender mailqueue.Sender) (*LicenseInventory, *fakeLicenseRepo, *fakeWaitlistRepo, *fakeOrderRepo) {
	licRepo := newFakeLicenseRepo()
	waitlistRepo := newFakeWaitlistRepo()
	orderRepo := newFakeOrderRepo()
	q := mailqueue.New(mailqueue.Config{Interval: time.Hour, MaxRetries: 3, MaxQueueSize: 10}, sender)
	inv := NewLicenseInventory(licRepo, waitlistRepo, orderRepo, fakeUOW{}, q)
	return inv, licRepo, waitlistRepo, orderRepo
}

func TestReserveLicense_InStockSellsImmediately(t *testing.T) {
	inv, licRepo, _, _ := newTestInventory(&alwaysOKSender{})
	lic := &entities.License{ID: uuid.New(), ProductRef: "p1", Status: entities.LicenseStatusAvailable, CreatedAt: time.Now()}
	require.NoError(t, licRepo.Create(context.Background(), lic))

	order := &entities.Order{ID: uuid.New(), ProductRef: "p1"}
	outcome, err := inv.ReserveLicense(context.Background(), order)
	require.NoError(t, err)
	require.False(t, outcome.Waitlisted())
	require.Equal(t, entities.LicenseStatusSold, outcome.License.Status)
	require.Equal(t, order.ID, *outcome.License.OrderID)
}

func TestReserveLicense_OutOfStockWaitlists(t *testing.T) {
	inv, _, waitlistRepo, _ := newTestInventory(&alwaysOKSender{})
	order := &entities.Order{ID: uuid.New(), CustomerID: uuid.New(), ProductRef: "p1", Qty: 1}

	outcome, err := inv.ReserveLicense(context.Background(), order)
	require.NoError(t, err)
	require.True(t, outcome.Waitlisted())
	require.Equal(t, entities.WaitlistStatusPending, outcome.WaitlistEntry.Status)
	require.Len(t, waitlistRepo.byID, 1)
}

func TestStageWaitlistReservations_PairsOldestFirst(t *testing.T) {
	inv, licRepo, waitlistRepo, _ := newTestInventory(&alwaysOKSender{})

	lic1 := &entities.License{ID: uuid.New(), ProductRef: "p1", Status: entities.LicenseStatusAvailable, CreatedAt: time.Now()}
	require.NoError(t, licRepo.Create(context.Background(), lic1))

	older := &entities.WaitlistEntry{ID: uuid.New(), ProductRef: "p1", Status: entities.WaitlistStatusPending, Priority: time.Now().Add(-time.Hour)}
	newer := &entities.WaitlistEntry{ID: uuid.New(), ProductRef: "p1", Status: entities.WaitlistStatusPending, Priority: time.Now()}
	require.NoError(t, waitlistRepo.Create(context.Background(), older))
	require.NoError(t, waitlistRepo.Create(context.Background(), newer))

	err := inv.StageWaitlistReservations(context.Background(), "p1")
	require.NoError(t, err)

	require.Equal(t, entities.WaitlistStatusReadyForEmail, older.Status, "the oldest entry must be the one staged")
	require.Equal(t, entities.WaitlistStatusPending, newer.Status)
	require.Equal(t, entities.LicenseStatusReserved, lic1.Status)
	require.Equal(t, lic1.ID, *older.LicenseID)
}

func TestProcessNextWaitlistEntry_SuccessCompletesEntryLicenseAndOrder(t *testing.T) {
	sender := &alwaysOKSender{}
	inv, licRepo, waitlistRepo, orderRepo := newTestInventory(sender)

	lic := &entities.License{ID: uuid.New(), ProductRef: "p1", Status: entities.LicenseStatusReserved, LicenseKey: "KEY-1"}
	require.NoError(t, licRepo.Create(context.Background(), lic))

	order := &entities.Order{ID: uuid.New(), ProductRef: "p1", Status: entities.OrderStatusInProcess}
	order.ShippingInfo.RecipientEmail = "buyer@example.com"
	require.NoError(t, orderRepo.Create(context.Background(), order))

	entry := &entities.WaitlistEntry{ID: uuid.New(), OrderID: order.ID, ProductRef: "p1", Status: entities.WaitlistStatusReadyForEmail, LicenseID: &lic.ID, Priority: time.Now()}
	require.NoError(t, waitlistRepo.Create(context.Background(), entry))

	processed, err := inv.ProcessNextWaitlistEntry(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, 1, sender.Calls())
	require.Equal(t, entities.WaitlistStatusCompleted, entry.Status)
	require.Equal(t, entities.LicenseStatusSold, lic.Status)
	require.Equal(t, entities.OrderStatusCompleted, order.Status)
	require.True(t, order.ShippingInfo.Email.Sent)
	require.Equal(t, "fake-message-id", order.ShippingInfo.Email.MessageID)
}

type failingSender struct{}

func (failingSender) Send(_ context.Context, _ mailqueue.Task) (string, error) {
	return "", errors.New("mail provider down")
}

func TestProcessNextWaitlistEntry_EmailFailureRevertsUntilRetriesExhausted(t *testing.T) {
	inv, licRepo, waitlistRepo, orderRepo := newTestInventory(failingSender{})

	lic := &entities.License{ID: uuid.New(), ProductRef: "p1", Status: entities.LicenseStatusReserved, LicenseKey: "KEY-1"}
	require.NoError(t, licRepo.Create(context.Background(), lic))
	order := &entities.Order{ID: uuid.New(), ProductRef: "p1", Status: entities.OrderStatusInProcess}
	require.NoError(t, orderRepo.Create(context.Background(), order))
	entry := &entities.WaitlistEntry{ID: uuid.New(), OrderID: order.ID, ProductRef: "p1", Status: entities.WaitlistStatusReadyForEmail, LicenseID: &lic.ID, Priority: time.Now()}
	require.NoError(t, waitlistRepo.Create(context.Background(), entry))

	for i := 0; i < entities.MaxWaitlistRetries; i++ {
		entry.Status = entities.WaitlistStatusReadyForEmail
		_, err := inv.ProcessNextWaitlistEntry(context.Background())
		require.NoError(t, err)
		require.Equal(t, entities.WaitlistStatusReadyForEmail, entry.Status, "must still be retryable before exceeding the limit")
	}

	entry.Status = entities.WaitlistStatusReadyForEmail
	_, err := inv.ProcessNextWaitlistEntry(context.Background())
	require.NoError(t, err)
	require.Equal(t, entities.WaitlistStatusFailed, entry.Status)
	require.Equal(t, entities.OrderStatusInProcess, order.Status, "order must never complete without a confirmed email")
}

func TestProcessNextWaitlistEntry_NoneReadyIsANoop(t *testing.T) {
	inv, _, _, _ := newTestInventory(&alwaysOKSender{})
	processed, err := inv.ProcessNextWaitlistEntry(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}
