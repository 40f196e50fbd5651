package catalog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, company_id, product_name, product_reference_no, category, price, stock_quantity, min_stock_level, reorder_level, bin_location, is_active, created_at, updated_at`

// Repository persists products in PostgreSQL.
type Repository interface {
	List(ctx context.Context, companyID uuid.UUID, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, companyID, id uuid.UUID) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, companyID, id uuid.UUID, product Product) error
	Deactivate(ctx context.Context, companyID, id uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE company_id = $1`
	args := []interface{}{companyID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		query += ` AND (product_name ILIKE $` + strconv.Itoa(argCount) + ` OR product_reference_no ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	if filters.Category != "" {
		argCount++
		query += ` AND category = $` + strconv.Itoa(argCount)
		args = append(args, filters.Category)
	}

	if filters.IsActive != nil {
		argCount++
		query += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	countQuery := `SELECT COUNT(*) FROM products WHERE company_id = $1`
	countArgs := []interface{}{companyID}
	countArgCount := 1

	if filters.Search != "" {
		countArgCount++
		countQuery += ` AND (product_name ILIKE $` + strconv.Itoa(countArgCount) + ` OR product_reference_no ILIKE $` + strconv.Itoa(countArgCount) + `)`
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}
	if filters.Category != "" {
		countArgCount++
		countQuery += ` AND category = $` + strconv.Itoa(countArgCount)
		countArgs = append(countArgs, filters.Category)
	}
	if filters.IsActive != nil {
		countArgCount++
		countQuery += ` AND is_active = $` + strconv.Itoa(countArgCount)
		countArgs = append(countArgs, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)

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

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id uuid.UUID) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE company_id = $1 AND id = $2`
	row := r.db.QueryRow(ctx, query, companyID, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	query := `INSERT INTO products (id, company_id, product_name, product_reference_no, category, price, stock_quantity, min_stock_level, reorder_level, bin_location, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	now := time.Now().UTC()
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query,
		product.ID, product.CompanyID, product.Name, product.ReferenceNo, product.Category,
		product.Price, product.StockQuantity, product.MinStockLevel, product.ReorderLevel,
		product.BinLocation, product.IsActive, now, now)
	if err != nil {
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, companyID, id uuid.UUID, product Product) error {
	// stock_quantity deliberately absent: only the ledger applier moves it.
	query := `UPDATE products SET product_name = $1, product_reference_no = $2, category = $3, price = $4, min_stock_level = $5, reorder_level = $6, bin_location = $7, is_active = $8, updated_at = $9
WHERE company_id = $10 AND id = $11`
	tag, err := r.db.Exec(ctx, query,
		product.Name, product.ReferenceNo, product.Category, product.Price,
		product.MinStockLevel, product.ReorderLevel, product.BinLocation, product.IsActive,
		time.Now().UTC(), companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, companyID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active = false, updated_at = NOW() WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.ReferenceNo, &p.Category, &p.Price,
		&p.StockQuantity, &p.MinStockLevel, &p.ReorderLevel, &p.BinLocation, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "reference_no":
		return "product_reference_no " + dir
	case "price":
		return "price " + dir
	case "stock_quantity":
		return "stock_quantity " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "product_name " + dir
	}
}
