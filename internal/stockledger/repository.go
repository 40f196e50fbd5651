package stockledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian-crm/internal/catalog"
	"github.com/meridian-crm/meridian-crm/internal/platform/db"
)

// ProductInfo carries the catalog fields the ledger needs when attaching
// lines: the display name and the default unit price.
type ProductInfo struct {
	Name  string
	Price float64
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, companyID, id uuid.UUID) (StockEntry, error)
	ListEntries(ctx context.Context, companyID uuid.UUID, filters ListFilters) ([]StockEntry, int, error)
	ListMovements(ctx context.Context, companyID uuid.UUID, filters MovementFilters) ([]StockMovement, int, error)
	GetStock(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// TxRepository is the transactional surface used by entry mutations. Stock
// reads lock rows; a validate-then-apply sequence inside one transaction is
// therefore serialized against concurrent approvals of the same products.
type TxRepository interface {
	NextEntryNumber(ctx context.Context, companyID uuid.UUID, entryType EntryType) (string, error)
	InsertEntry(ctx context.Context, entry StockEntry) error
	GetEntryForUpdate(ctx context.Context, companyID, id uuid.UUID) (StockEntry, error)
	UpdateEntryHeader(ctx context.Context, entry StockEntry) error
	UpdateEntryTotals(ctx context.Context, companyID, entryID uuid.UUID, totalQty int64, totalValue float64) error
	SetEntryStatus(ctx context.Context, companyID, entryID uuid.UUID, status EntryStatus, decidedBy *uuid.UUID, decidedAt *time.Time) error
	DeleteEntry(ctx context.Context, companyID, entryID uuid.UUID) error

	InsertItem(ctx context.Context, item StockEntryItem) error
	DeleteItem(ctx context.Context, entryID, itemID uuid.UUID) error
	ListItems(ctx context.Context, entryID uuid.UUID) ([]StockEntryItem, error)

	GetProductInfo(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]ProductInfo, error)
	GetStockForUpdate(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	AdjustStock(ctx context.Context, companyID, productID uuid.UUID, delta int64) (int64, error)
	InsertMovement(ctx context.Context, movement StockMovement) error
}

// Repository is the PostgreSQL implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a repeatable-read transaction, retried transparently on
// serialization failures. fn re-reads everything it needs per attempt.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: catalog.NewStockTx(tx)})
	})
}

const entryColumns = `id, company_id, entry_number, entry_type, entry_date, reference_type, reference_number, party_type, party_name, warehouse_location, remarks, status, total_quantity, total_value, created_by, decided_by, decided_at, created_at, updated_at`

// GetEntry loads an entry with its items.
func (r *Repository) GetEntry(ctx context.Context, companyID, id uuid.UUID) (StockEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE company_id = $1 AND id = $2`, companyID, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, ErrEntryNotFound
		}
		return StockEntry{}, err
	}
	items, err := listItems(ctx, r.pool, id)
	if err != nil {
		return StockEntry{}, err
	}
	entry.Items = items
	return entry, nil
}

// ListEntries returns entries matching the filters plus the total count.
func (r *Repository) ListEntries(ctx context.Context, companyID uuid.UUID, filters ListFilters) ([]StockEntry, int, error) {
	where := ` FROM stock_entries WHERE company_id = $1`
	args := []interface{}{companyID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		where += ` AND (entry_number ILIKE $` + strconv.Itoa(argCount) + ` OR party_name ILIKE $` + strconv.Itoa(argCount) + ` OR reference_number ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.EntryType != "" {
		argCount++
		where += ` AND entry_type = $` + strconv.Itoa(argCount)
		args = append(args, filters.EntryType)
	}
	if filters.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, filters.Status)
	}
	if filters.DateFrom != nil {
		argCount++
		where += ` AND entry_date >= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateFrom)
	}
	if filters.DateTo != nil {
		argCount++
		where += ` AND entry_date <= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateTo)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + entryColumns + where + ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []StockEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

const movementColumns = `id, company_id, entry_id, entry_number, product_id, movement_type, quantity, balance_after, created_at`

// ListMovements returns the applied movement trail, newest first.
func (r *Repository) ListMovements(ctx context.Context, companyID uuid.UUID, filters MovementFilters) ([]StockMovement, int, error) {
	where := ` FROM stock_movements WHERE company_id = $1`
	args := []interface{}{companyID}
	argCount := 1

	if filters.ProductID != uuid.Nil {
		argCount++
		where += ` AND product_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.ProductID)
	}
	if filters.EntryID != uuid.Nil {
		argCount++
		where += ` AND entry_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.EntryID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + movementColumns + where + ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.EntryID, &m.EntryNumber, &m.ProductID, &m.MovementType, &m.Quantity, &m.BalanceAfter, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

// GetStock reads current quantities without locking, for advisory checks.
func (r *Repository) GetStock(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	stock := make(map[uuid.UUID]int64, len(productIDs))
	for _, id := range productIDs {
		if _, seen := stock[id]; seen {
			continue
		}
		var qty int64
		err := r.pool.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE company_id = $1 AND id = $2`, companyID, id).Scan(&qty)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, catalog.ErrProductNotFound
			}
			return nil, err
		}
		stock[id] = qty
	}
	return stock, nil
}

type txRepository struct {
	tx    pgx.Tx
	stock *catalog.StockTx
}

// NextEntryNumber allocates the next per-tenant entry number. The counter row
// is updated inside the caller's transaction, so concurrent creations cannot
// produce duplicates; a rollback leaves a gap, which is acceptable.
func (r *txRepository) NextEntryNumber(ctx context.Context, companyID uuid.UUID, entryType EntryType) (string, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_counters (company_id, entry_type, next_number)
VALUES ($1, $2, 1)
ON CONFLICT (company_id, entry_type) DO UPDATE SET next_number = entry_counters.next_number + 1
RETURNING next_number`, companyID, string(entryType)).Scan(&next)
	if err != nil {
		return "", err
	}
	prefix := "SIN"
	if entryType == EntryTypeOutward {
		prefix = "SOUT"
	}
	return fmt.Sprintf("%s-%05d", prefix, next), nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry StockEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_entries (`+entryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		entry.ID, entry.CompanyID, entry.EntryNumber, string(entry.EntryType), entry.EntryDate,
		entry.ReferenceType, entry.ReferenceNumber, entry.PartyType, entry.PartyName,
		entry.WarehouseLocation, entry.Remarks, string(entry.Status), entry.TotalQuantity,
		entry.TotalValue, entry.CreatedBy, entry.DecidedBy, entry.DecidedAt, entry.CreatedAt, entry.UpdatedAt)
	return err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, companyID, id uuid.UUID) (StockEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, ErrEntryNotFound
		}
		return StockEntry{}, err
	}
	items, err := listItems(ctx, r.tx, id)
	if err != nil {
		return StockEntry{}, err
	}
	entry.Items = items
	return entry, nil
}

func (r *txRepository) UpdateEntryHeader(ctx context.Context, entry StockEntry) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_entries
SET entry_date = $1, reference_type = $2, reference_number = $3, party_type = $4, party_name = $5, warehouse_location = $6, remarks = $7, updated_at = $8
WHERE company_id = $9 AND id = $10`,
		entry.EntryDate, entry.ReferenceType, entry.ReferenceNumber, entry.PartyType,
		entry.PartyName, entry.WarehouseLocation, entry.Remarks, time.Now().UTC(),
		entry.CompanyID, entry.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) UpdateEntryTotals(ctx context.Context, companyID, entryID uuid.UUID, totalQty int64, totalValue float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_entries SET total_quantity = $1, total_value = $2, updated_at = NOW() WHERE company_id = $3 AND id = $4`,
		totalQty, totalValue, companyID, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) SetEntryStatus(ctx context.Context, companyID, entryID uuid.UUID, status EntryStatus, decidedBy *uuid.UUID, decidedAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_entries SET status = $1, decided_by = $2, decided_at = $3, updated_at = NOW() WHERE company_id = $4 AND id = $5`,
		string(status), decidedBy, decidedAt, companyID, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, companyID, entryID uuid.UUID) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM stock_entry_items WHERE entry_id = $1`, entryID); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_entries WHERE company_id = $1 AND id = $2`, companyID, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

const itemColumns = `id, entry_id, product_id, quantity, unit_price, batch_number, serial_number, expiry_date, bin_location`

func (r *txRepository) InsertItem(ctx context.Context, item StockEntryItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_entry_items (`+itemColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.EntryID, item.ProductID, item.Quantity, item.UnitPrice,
		item.BatchNumber, item.SerialNumber, item.ExpiryDate, item.BinLocation)
	return err
}

func (r *txRepository) DeleteItem(ctx context.Context, entryID, itemID uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_entry_items WHERE entry_id = $1 AND id = $2`, entryID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) ListItems(ctx context.Context, entryID uuid.UUID) ([]StockEntryItem, error) {
	return listItems(ctx, r.tx, entryID)
}

func (r *txRepository) GetProductInfo(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]ProductInfo, error) {
	info := make(map[uuid.UUID]ProductInfo, len(productIDs))
	for _, id := range productIDs {
		if _, seen := info[id]; seen {
			continue
		}
		var pi ProductInfo
		err := r.tx.QueryRow(ctx, `SELECT product_name, price FROM products WHERE company_id = $1 AND id = $2 AND is_active = true`, companyID, id).Scan(&pi.Name, &pi.Price)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, catalog.ErrProductNotFound
			}
			return nil, err
		}
		info[id] = pi
	}
	return info, nil
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, companyID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.stock.GetStockForUpdate(ctx, companyID, productIDs)
}

func (r *txRepository) AdjustStock(ctx context.Context, companyID, productID uuid.UUID, delta int64) (int64, error) {
	return r.stock.AdjustStock(ctx, companyID, productID, delta)
}

func (r *txRepository) InsertMovement(ctx context.Context, movement StockMovement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (`+movementColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		movement.ID, movement.CompanyID, movement.EntryID, movement.EntryNumber,
		movement.ProductID, string(movement.MovementType), movement.Quantity,
		movement.BalanceAfter, movement.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanEntry(row rowScanner) (StockEntry, error) {
	var e StockEntry
	var entryType, status string
	err := row.Scan(&e.ID, &e.CompanyID, &e.EntryNumber, &entryType, &e.EntryDate,
		&e.ReferenceType, &e.ReferenceNumber, &e.PartyType, &e.PartyName,
		&e.WarehouseLocation, &e.Remarks, &status, &e.TotalQuantity, &e.TotalValue,
		&e.CreatedBy, &e.DecidedBy, &e.DecidedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return StockEntry{}, err
	}
	e.EntryType = EntryType(entryType)
	e.Status = EntryStatus(status)
	return e, nil
}

func listItems(ctx context.Context, q querier, entryID uuid.UUID) ([]StockEntryItem, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.entry_id, i.product_id, COALESCE(p.product_name, ''), i.quantity, i.unit_price, i.batch_number, i.serial_number, i.expiry_date, i.bin_location
FROM stock_entry_items i
LEFT JOIN stock_entries e ON e.id = i.entry_id
LEFT JOIN products p ON p.id = i.product_id AND p.company_id = e.company_id
WHERE i.entry_id = $1
ORDER BY i.id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []StockEntryItem
	for rows.Next() {
		var item StockEntryItem
		if err := rows.Scan(&item.ID, &item.EntryID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.BatchNumber, &item.SerialNumber,
			&item.ExpiryDate, &item.BinLocation); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
