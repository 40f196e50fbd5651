package stocksummary

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntryCounts summarises the tenant's ledger activity.
type EntryCounts struct {
	Pending int
	Inward  int
	Outward int
}

// Repository reads the raw rows the projection is built from.
type Repository interface {
	ActiveProducts(ctx context.Context, companyID uuid.UUID) ([]ProductStock, error)
	EntryCounts(ctx context.Context, companyID uuid.UUID) (EntryCounts, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ActiveProducts(ctx context.Context, companyID uuid.UUID) ([]ProductStock, error) {
	rows, err := r.db.Query(ctx, `SELECT id, product_name, product_reference_no, category, stock_quantity, min_stock_level, reorder_level, price, bin_location
FROM products WHERE company_id = $1 AND is_active = true
ORDER BY product_name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ProductStock
	for rows.Next() {
		var p ProductStock
		if err := rows.Scan(&p.ProductID, &p.Name, &p.ReferenceNo, &p.Category,
			&p.StockQuantity, &p.MinStockLevel, &p.ReorderLevel, &p.Price, &p.BinLocation); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) EntryCounts(ctx context.Context, companyID uuid.UUID) (EntryCounts, error) {
	var counts EntryCounts
	err := r.db.QueryRow(ctx, `SELECT
COUNT(*) FILTER (WHERE status = 'submitted'),
COUNT(*) FILTER (WHERE entry_type = 'inward' AND status = 'approved'),
COUNT(*) FILTER (WHERE entry_type = 'outward' AND status = 'approved')
FROM stock_entries WHERE company_id = $1`, companyID).Scan(&counts.Pending, &counts.Inward, &counts.Outward)
	return counts, err
}
