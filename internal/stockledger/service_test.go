package stockledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-crm/meridian-crm/internal/catalog"
	"github.com/meridian-crm/meridian-crm/internal/shared"
	_ "github.com/meridian-crm/meridian-crm/internal/testing/guard"
)

type memProduct struct {
	name  string
	price float64
	stock int64
}

// memoryRepo serializes transactions with a mutex and restores a snapshot
// when the transaction function fails, so service-level atomicity is
// observable in tests.
type memoryRepo struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]StockEntry
	items     map[uuid.UUID][]StockEntryItem
	products  map[uuid.UUID]memProduct
	movements []StockMovement
	counters  map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries:  make(map[uuid.UUID]StockEntry),
		items:    make(map[uuid.UUID][]StockEntryItem),
		products: make(map[uuid.UUID]memProduct),
		counters: make(map[string]int64),
	}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	snap := newMemoryRepo()
	for id, e := range r.entries {
		snap.entries[id] = e
	}
	for id, items := range r.items {
		snap.items[id] = append([]StockEntryItem(nil), items...)
	}
	for id, p := range r.products {
		snap.products[id] = p
	}
	snap.movements = append([]StockMovement(nil), r.movements...)
	for k, v := range r.counters {
		snap.counters[k] = v
	}
	return snap
}

func (r *memoryRepo) restore(snap *memoryRepo) {
	r.entries = snap.entries
	r.items = snap.items
	r.products = snap.products
	r.movements = snap.movements
	r.counters = snap.counters
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetEntry(ctx context.Context, companyID, id uuid.UUID) (StockEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getEntry(companyID, id)
}

func (r *memoryRepo) getEntry(companyID, id uuid.UUID) (StockEntry, error) {
	entry, ok := r.entries[id]
	if !ok || entry.CompanyID != companyID {
		return StockEntry{}, ErrEntryNotFound
	}
	entry.Items = append([]StockEntryItem(nil), r.items[id]...)
	return entry, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, companyID uuid.UUID, filters ListFilters) ([]StockEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []StockEntry
	for id, entry := range r.entries {
		if entry.CompanyID != companyID {
			continue
		}
		if filters.Status != "" && string(entry.Status) != filters.Status {
			continue
		}
		if filters.EntryType != "" && string(entry.EntryType) != filters.EntryType {
			continue
		}
		entry.Items = append([]StockEntryItem(nil), r.items[id]...)
		result = append(result, entry)
	}
	return result, len(result), nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, companyID uuid.UUID, filters MovementFilters) ([]StockMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []StockMovement
	for _, m := range r.movements {
		if m.CompanyID != companyID {
			continue
		}
		if filters.ProductID != uuid.Nil && m.ProductID != filters.ProductID {
			continue
		}
		if filters.EntryID != uuid.Nil && m.EntryID != filters.EntryID {
			continue
		}
		result = append(result, m)
	}
	return result, len(result), nil
}

func (r *memoryRepo) GetStock(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stock := make(map[uuid.UUID]int64, len(productIDs))
	for _, id := range productIDs {
		p, ok := r.products[id]
		if !ok {
			return nil, catalog.ErrProductNotFound
		}
		stock[id] = p.stock
	}
	return stock, nil
}

func (r *memoryRepo) addProduct(name string, price float64, stock int64) uuid.UUID {
	id := uuid.New()
	r.products[id] = memProduct{name: name, price: price, stock: stock}
	return id
}

func (r *memoryRepo) stockOf(id uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].stock
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) NextEntryNumber(ctx context.Context, companyID uuid.UUID, entryType EntryType) (string, error) {
	key := companyID.String() + ":" + string(entryType)
	tx.repo.counters[key]++
	prefix := "SIN"
	if entryType == EntryTypeOutward {
		prefix = "SOUT"
	}
	return fmt.Sprintf("%s-%05d", prefix, tx.repo.counters[key]), nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry StockEntry) error {
	entry.Items = nil
	tx.repo.entries[entry.ID] = entry
	return nil
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, companyID, id uuid.UUID) (StockEntry, error) {
	return tx.repo.getEntry(companyID, id)
}

func (tx *memoryTx) UpdateEntryHeader(ctx context.Context, entry StockEntry) error {
	stored, ok := tx.repo.entries[entry.ID]
	if !ok {
		return ErrEntryNotFound
	}
	stored.EntryDate = entry.EntryDate
	stored.ReferenceType = entry.ReferenceType
	stored.ReferenceNumber = entry.ReferenceNumber
	stored.PartyType = entry.PartyType
	stored.PartyName = entry.PartyName
	stored.WarehouseLocation = entry.WarehouseLocation
	stored.Remarks = entry.Remarks
	tx.repo.entries[entry.ID] = stored
	return nil
}

func (tx *memoryTx) UpdateEntryTotals(ctx context.Context, companyID, entryID uuid.UUID, totalQty int64, totalValue float64) error {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.TotalQuantity = totalQty
	entry.TotalValue = totalValue
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryTx) SetEntryStatus(ctx context.Context, companyID, entryID uuid.UUID, status EntryStatus, decidedBy *uuid.UUID, decidedAt *time.Time) error {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = status
	entry.DecidedBy = decidedBy
	entry.DecidedAt = decidedAt
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryTx) DeleteEntry(ctx context.Context, companyID, entryID uuid.UUID) error {
	if _, ok := tx.repo.entries[entryID]; !ok {
		return ErrEntryNotFound
	}
	delete(tx.repo.entries, entryID)
	delete(tx.repo.items, entryID)
	return nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item StockEntryItem) error {
	tx.repo.items[item.EntryID] = append(tx.repo.items[item.EntryID], item)
	return nil
}

func (tx *memoryTx) DeleteItem(ctx context.Context, entryID, itemID uuid.UUID) error {
	items := tx.repo.items[entryID]
	for i, item := range items {
		if item.ID == itemID {
			tx.repo.items[entryID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (tx *memoryTx) ListItems(ctx context.Context, entryID uuid.UUID) ([]StockEntryItem, error) {
	return append([]StockEntryItem(nil), tx.repo.items[entryID]...), nil
}

func (tx *memoryTx) GetProductInfo(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]ProductInfo, error) {
	info := make(map[uuid.UUID]ProductInfo, len(productIDs))
	for _, id := range productIDs {
		p, ok := tx.repo.products[id]
		if !ok {
			return nil, catalog.ErrProductNotFound
		}
		info[id] = ProductInfo{Name: p.name, Price: p.price}
	}
	return info, nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	stock := make(map[uuid.UUID]int64, len(productIDs))
	for _, id := range productIDs {
		p, ok := tx.repo.products[id]
		if !ok {
			return nil, catalog.ErrProductNotFound
		}
		stock[id] = p.stock
	}
	return stock, nil
}

func (tx *memoryTx) AdjustStock(ctx context.Context, companyID, productID uuid.UUID, delta int64) (int64, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return 0, catalog.ErrProductNotFound
	}
	if p.stock+delta < 0 {
		return 0, catalog.ErrNegativeStock
	}
	p.stock += delta
	tx.repo.products[productID] = p
	return p.stock, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement StockMovement) error {
	tx.repo.movements = append(tx.repo.movements, movement)
	return nil
}

func testIdentity() shared.Identity {
	return shared.Identity{CompanyID: uuid.New(), UserID: uuid.New()}
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, nil, nil, nil)
}

func submittedEntry(t *testing.T, svc *Service, identity shared.Identity, entryType EntryType, items []ItemInput) StockEntry {
	t.Helper()
	ctx := context.Background()
	entry, err := svc.CreateEntry(ctx, identity, CreateEntryInput{EntryType: entryType, Items: items})
	require.NoError(t, err)
	entry, err = svc.Submit(ctx, identity, entry.ID)
	require.NoError(t, err)
	return entry
}

func TestCreateEntryNumbersAndTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 25, 0)
	gadget := repo.addProduct("Gadget", 10, 0)

	entry, err := svc.CreateEntry(ctx, identity, CreateEntryInput{
		EntryType: EntryTypeInward,
		Items: []ItemInput{
			{ProductID: widget, Quantity: 4},
			{ProductID: gadget, Quantity: 2, UnitPrice: 9},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "SIN-00001", entry.EntryNumber)
	require.Equal(t, StatusDraft, entry.Status)
	require.Equal(t, int64(6), entry.TotalQuantity)
	// Widget line prefilled from the catalog price.
	require.InDelta(t, 4*25+2*9.0, entry.TotalValue, 0.001)
	require.Equal(t, "Widget", entry.Items[0].ProductName)

	second, err := svc.CreateEntry(ctx, identity, CreateEntryInput{EntryType: EntryTypeInward})
	require.NoError(t, err)
	require.Equal(t, "SIN-00002", second.EntryNumber)

	outward, err := svc.CreateEntry(ctx, identity, CreateEntryInput{EntryType: EntryTypeOutward})
	require.NoError(t, err)
	require.Equal(t, "SOUT-00001", outward.EntryNumber)
}

func TestCreateEntryRejectsBadInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, identity, CreateEntryInput{EntryType: "transfer"})
	require.Error(t, err)

	widget := repo.addProduct("Widget", 10, 0)
	_, err = svc.CreateEntry(ctx, identity, CreateEntryInput{
		EntryType: EntryTypeInward,
		Items:     []ItemInput{{ProductID: widget, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateEntry(ctx, identity, CreateEntryInput{
		EntryType: EntryTypeInward,
		Items:     []ItemInput{{ProductID: uuid.New(), Quantity: 1}},
	})
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestItemEditingRecomputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 5, 0)
	entry, err := svc.CreateEntry(ctx, identity, CreateEntryInput{EntryType: EntryTypeInward})
	require.NoError(t, err)

	entry, err = svc.AddItem(ctx, identity, entry.ID, ItemInput{ProductID: widget, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, int64(3), entry.TotalQuantity)
	require.InDelta(t, 15.0, entry.TotalValue, 0.001)

	entry, err = svc.AddItem(ctx, identity, entry.ID, ItemInput{ProductID: widget, Quantity: 2, UnitPrice: 4})
	require.NoError(t, err)
	require.Equal(t, int64(5), entry.TotalQuantity)
	require.InDelta(t, 23.0, entry.TotalValue, 0.001)

	entry, err = svc.RemoveItem(ctx, identity, entry.ID, entry.Items[0].ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), entry.TotalQuantity)
	require.InDelta(t, 8.0, entry.TotalValue, 0.001)
}

func TestDraftOnlyEditing(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 5, 0)
	entry := submittedEntry(t, svc, identity, EntryTypeInward, []ItemInput{{ProductID: widget, Quantity: 1}})

	_, err := svc.AddItem(ctx, identity, entry.ID, ItemInput{ProductID: widget, Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.RemoveItem(ctx, identity, entry.ID, entry.Items[0].ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.UpdateEntry(ctx, identity, entry.ID, UpdateEntryInput{Remarks: "edited"})
	require.ErrorIs(t, err, ErrInvalidState)

	err = svc.DeleteEntry(ctx, identity, entry.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitRequiresItems(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, identity, CreateEntryInput{EntryType: EntryTypeOutward})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, identity, entry.ID)
	require.ErrorIs(t, err, ErrNoItems)
}

func TestApproveInwardIncreasesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 7)
	entry := submittedEntry(t, svc, identity, EntryTypeInward, []ItemInput{{ProductID: widget, Quantity: 5}})

	approved, err := svc.Approve(ctx, identity, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedBy)
	require.Equal(t, identity.UserID, *approved.DecidedBy)
	require.NotNil(t, approved.DecidedAt)
	require.Equal(t, int64(12), repo.stockOf(widget))

	movements, _, err := svc.ListMovements(ctx, identity, MovementFilters{EntryID: entry.ID})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, EntryTypeInward, movements[0].MovementType)
	require.Equal(t, int64(5), movements[0].Quantity)
	require.Equal(t, int64(12), movements[0].BalanceAfter)
}

func TestApproveOutwardInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 5)
	entry := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 6}})

	_, err := svc.Approve(ctx, identity, entry.ID)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Violations, 1)
	require.Equal(t, widget, insufficient.Violations[0].ProductID)
	require.Equal(t, int64(6), insufficient.Violations[0].Requested)
	require.Equal(t, int64(5), insufficient.Violations[0].Available)

	// Nothing applied, entry still decidable.
	require.Equal(t, int64(5), repo.stockOf(widget))
	reloaded, err := svc.GetEntry(ctx, identity, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, reloaded.Status)

	movements, _, err := svc.ListMovements(ctx, identity, MovementFilters{})
	require.NoError(t, err)
	require.Empty(t, movements)
}

func TestApproveMultiLineAtomicity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	a := repo.addProduct("A", 1, 10)
	b := repo.addProduct("B", 1, 10)
	c := repo.addProduct("C", 1, 2)
	entry := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{
		{ProductID: a, Quantity: 3},
		{ProductID: b, Quantity: 4},
		{ProductID: c, Quantity: 5},
	})

	_, err := svc.Approve(ctx, identity, entry.ID)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	require.Equal(t, int64(10), repo.stockOf(a))
	require.Equal(t, int64(10), repo.stockOf(b))
	require.Equal(t, int64(2), repo.stockOf(c))
}

func TestApproveTwiceFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 10)
	entry := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 3}})

	_, err := svc.Approve(ctx, identity, entry.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), repo.stockOf(widget))

	_, err = svc.Approve(ctx, identity, entry.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(7), repo.stockOf(widget))
}

func TestApproveDraftDirectly(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 10)
	entry, err := svc.CreateEntry(ctx, identity, CreateEntryInput{
		EntryType: EntryTypeInward,
		Items:     []ItemInput{{ProductID: widget, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, entry.Status)

	// Submitting first is optional; a draft can be decided as-is.
	approved, err := svc.Approve(ctx, identity, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, int64(13), repo.stockOf(widget))
}

func TestRejectDraftDirectly(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 10)
	entry, err := svc.CreateEntry(ctx, identity, CreateEntryInput{
		EntryType: EntryTypeOutward,
		Items:     []ItemInput{{ProductID: widget, Quantity: 2}},
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, identity, entry.ID, "duplicate entry")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, int64(10), repo.stockOf(widget))
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]bool)}
}

func (s *memIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memIdempotency) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *memIdempotency) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}

func TestApproveDuplicateRequestConflicts(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemIdempotency()
	svc := NewService(repo, nil, nil, idem, nil, nil, nil)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 10)
	entry := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 3}})

	// A duplicate still in flight holds the key, so the second request
	// reports a conflict rather than applying twice.
	require.NoError(t, idem.CheckAndInsert(ctx, "approve:"+entry.ID.String(), "stockledger"))
	_, err := svc.Approve(ctx, identity, entry.ID)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(10), repo.stockOf(widget))
}

func TestApproveTerminalStatusWinsOverIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemIdempotency()
	svc := NewService(repo, nil, nil, idem, nil, nil, nil)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 10)
	entry := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 3}})

	_, err := svc.Approve(ctx, identity, entry.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, identity, entry.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(7), repo.stockOf(widget))
}

func TestApproveFailureReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemIdempotency()
	svc := NewService(repo, nil, nil, idem, nil, nil, nil)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 2)
	entry := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 5}})

	_, err := svc.Approve(ctx, identity, entry.ID)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.False(t, idem.has("approve:"+entry.ID.String()))

	// Restocked, the same entry can be approved on retry.
	repo.mu.Lock()
	p := repo.products[widget]
	p.stock = 9
	repo.products[widget] = p
	repo.mu.Unlock()

	_, err = svc.Approve(ctx, identity, entry.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), repo.stockOf(widget))
}

func TestRejectLeavesStockUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 9)
	entry := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 4}})

	rejected, err := svc.Reject(ctx, identity, entry.ID, "wrong counts")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.DecidedBy)
	require.Equal(t, int64(9), repo.stockOf(widget))

	_, err = svc.Approve(ctx, identity, entry.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestTenantIsolation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	owner := testIdentity()
	intruder := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 10)
	entry := submittedEntry(t, svc, owner, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 1}})

	_, err := svc.GetEntry(ctx, intruder, entry.ID)
	require.ErrorIs(t, err, ErrEntryNotFound)

	_, err = svc.Approve(ctx, intruder, entry.ID)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestConcurrentApprovalsSingleWinner(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	identity := testIdentity()
	ctx := context.Background()

	widget := repo.addProduct("Widget", 10, 10)
	first := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 8}})
	second := submittedEntry(t, svc, identity, EntryTypeOutward, []ItemInput{{ProductID: widget, Quantity: 8}})

	var approved, insufficient int64
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, entryID := range []uuid.UUID{first.ID, second.ID} {
		g.Go(func() error {
			_, err := svc.Approve(gctx, identity, entryID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			default:
				var stockErr *InsufficientStockError
				if !errors.As(err, &stockErr) {
					return err
				}
				insufficient++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, int64(1), approved)
	require.Equal(t, int64(1), insufficient)
	require.Equal(t, int64(2), repo.stockOf(widget))
}
