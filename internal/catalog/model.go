package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a catalog product. StockQuantity is owned by the stock
// ledger: it changes only when an entry is approved, never through product
// edits.
type Product struct {
	ID            uuid.UUID `json:"id"`
	CompanyID     uuid.UUID `json:"company_id"`
	Name          string    `json:"product_name"`
	ReferenceNo   string    `json:"product_reference_no"`
	Category      string    `json:"category"`
	Price         float64   `json:"price"`
	StockQuantity int64     `json:"stock_quantity"`
	MinStockLevel int64     `json:"min_stock_level"`
	ReorderLevel  int64     `json:"reorder_level"`
	BinLocation   string    `json:"bin_location"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search   string
	Category string
	IsActive *bool
	Limit    int
	Page     int
	SortBy   string
	SortDir  string
}
