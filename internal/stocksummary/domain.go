// Package stocksummary projects product stock into a per-tenant dashboard
// view: per-product status plus aggregate stats.
package stocksummary

import (
	"time"

	"github.com/google/uuid"
)

// StockStatus classifies a product's quantity against its thresholds.
type StockStatus string

const (
	// StatusCritical means out of stock or at/below the minimum level.
	StatusCritical StockStatus = "critical"
	// StatusLow means at/below the reorder level.
	StatusLow StockStatus = "low"
	// StatusAdequate means above both thresholds.
	StatusAdequate StockStatus = "adequate"
)

// Classify applies the threshold rule. Zero quantity is always critical even
// when the minimum level is zero.
func Classify(quantity, minLevel, reorderLevel int64) StockStatus {
	if quantity <= 0 || quantity <= minLevel {
		return StatusCritical
	}
	if quantity <= reorderLevel {
		return StatusLow
	}
	return StatusAdequate
}

// ProductStock is one product line of the summary.
type ProductStock struct {
	ProductID     uuid.UUID   `json:"product_id"`
	Name          string      `json:"product_name"`
	ReferenceNo   string      `json:"product_reference_no,omitempty"`
	Category      string      `json:"category,omitempty"`
	StockQuantity int64       `json:"stock_quantity"`
	MinStockLevel int64       `json:"min_stock_level"`
	ReorderLevel  int64       `json:"reorder_level"`
	Price         float64     `json:"price"`
	StockValue    float64     `json:"stock_value"`
	BinLocation   string      `json:"bin_location,omitempty"`
	Status        StockStatus `json:"stock_status"`
}

// Stats aggregates the tenant's stock position.
type Stats struct {
	TotalProducts   int     `json:"total_products"`
	Critical        int     `json:"critical_count"`
	Low             int     `json:"low_count"`
	Adequate        int     `json:"adequate_count"`
	TotalStockValue float64 `json:"total_stock_value"`
	PendingEntries  int     `json:"pending_entries"`
	InwardEntries   int     `json:"inward_entries"`
	OutwardEntries  int     `json:"outward_entries"`
}

// Summary is the full projection returned to clients.
type Summary struct {
	Stats       Stats          `json:"stats"`
	Products    []ProductStock `json:"products"`
	GeneratedAt time.Time      `json:"generated_at"`
}
