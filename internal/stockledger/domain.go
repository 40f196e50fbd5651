// Package stockledger implements the stock entry ledger: draft entries with
// product lines that move product stock only when an entry is approved.
package stockledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryType enumerates ledger entry directions.
type EntryType string

const (
	// EntryTypeInward increases stock on approval.
	EntryTypeInward EntryType = "inward"
	// EntryTypeOutward decreases stock on approval.
	EntryTypeOutward EntryType = "outward"
)

// Valid reports whether the entry type is known.
func (t EntryType) Valid() bool {
	return t == EntryTypeInward || t == EntryTypeOutward
}

// EntryStatus enumerates the entry lifecycle states.
type EntryStatus string

const (
	// StatusDraft entries are editable and carry no stock effect.
	StatusDraft EntryStatus = "draft"
	// StatusSubmitted entries await an approval decision.
	StatusSubmitted EntryStatus = "submitted"
	// StatusApproved entries have been applied to product stock. Terminal.
	StatusApproved EntryStatus = "approved"
	// StatusRejected entries were declined without stock effect. Terminal.
	StatusRejected EntryStatus = "rejected"
)

// Decidable reports whether the entry can still be approved or rejected.
// Draft entries may be decided directly; the submitted step is optional.
func (s EntryStatus) Decidable() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// StockEntry is the ledger document header.
type StockEntry struct {
	ID                uuid.UUID   `json:"id"`
	CompanyID         uuid.UUID   `json:"company_id"`
	EntryNumber       string      `json:"entry_number"`
	EntryType         EntryType   `json:"entry_type"`
	EntryDate         time.Time   `json:"entry_date"`
	ReferenceType     string      `json:"reference_type,omitempty"`
	ReferenceNumber   string      `json:"reference_number,omitempty"`
	PartyType         string      `json:"party_type,omitempty"`
	PartyName         string      `json:"party_name,omitempty"`
	WarehouseLocation string      `json:"warehouse_location,omitempty"`
	Remarks           string      `json:"remarks,omitempty"`
	Status            EntryStatus `json:"status"`
	TotalQuantity     int64       `json:"total_quantity"`
	TotalValue        float64     `json:"total_value"`
	CreatedBy         uuid.UUID   `json:"created_by"`
	DecidedBy         *uuid.UUID  `json:"decided_by,omitempty"`
	DecidedAt         *time.Time  `json:"decided_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Items             []StockEntryItem `json:"items,omitempty"`
}

// StockEntryItem is one product line on an entry.
type StockEntryItem struct {
	ID          uuid.UUID  `json:"id"`
	EntryID     uuid.UUID  `json:"entry_id"`
	ProductID   uuid.UUID  `json:"product_id"`
	ProductName string     `json:"product_name,omitempty"`
	Quantity    int64      `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	BatchNumber string     `json:"batch_number,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	BinLocation string     `json:"bin_location,omitempty"`
}

// LineValue returns quantity times unit price for the line.
func (i StockEntryItem) LineValue() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// StockMovement records one applied stock change, written only at approval.
// The movement trail per product replays to the product's stored quantity.
type StockMovement struct {
	ID           uuid.UUID `json:"id"`
	CompanyID    uuid.UUID `json:"company_id"`
	EntryID      uuid.UUID `json:"entry_id"`
	EntryNumber  string    `json:"entry_number"`
	ProductID    uuid.UUID `json:"product_id"`
	MovementType EntryType `json:"movement_type"`
	Quantity     int64     `json:"quantity"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFilters narrows entry listings.
type ListFilters struct {
	Search    string
	EntryType string
	Status    string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	Limit     int
}

// MovementFilters narrows movement listings.
type MovementFilters struct {
	ProductID uuid.UUID
	EntryID   uuid.UUID
	Page      int
	Limit     int
}

// ErrEntryNotFound indicates a missing entry for the tenant.
var ErrEntryNotFound = errors.New("stockledger: entry not found")

// ErrItemNotFound indicates a missing entry line.
var ErrItemNotFound = errors.New("stockledger: entry item not found")

// ErrInvalidState indicates an operation not allowed in the entry's current
// status, e.g. editing a submitted entry or approving an approved one.
var ErrInvalidState = errors.New("stockledger: operation not allowed in current status")

// ErrInvalidQuantity indicates a non-positive line quantity.
var ErrInvalidQuantity = errors.New("stockledger: quantity must be positive")

// ErrNoItems indicates an entry with no lines where at least one is required.
var ErrNoItems = errors.New("stockledger: entry has no items")

// StockViolation describes one product line that cannot be applied.
type StockViolation struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Requested   int64     `json:"requested"`
	Available   int64     `json:"available"`
}

// InsufficientStockError reports the full set of violating lines of a
// rejected outward application, not just the first one found.
type InsufficientStockError struct {
	Violations []StockViolation
}

func (e *InsufficientStockError) Error() string {
	if len(e.Violations) == 1 {
		v := e.Violations[0]
		return fmt.Sprintf("stockledger: insufficient stock for product %s: requested %d, available %d", v.ProductID, v.Requested, v.Available)
	}
	return fmt.Sprintf("stockledger: insufficient stock on %d products", len(e.Violations))
}
