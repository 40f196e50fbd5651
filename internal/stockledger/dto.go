package stockledger

import "time"

// EntryForm is the JSON payload for creating an entry.
type EntryForm struct {
	EntryType         string     `json:"entry_type" validate:"required,oneof=inward outward"`
	EntryDate         *time.Time `json:"entry_date"`
	ReferenceType     string     `json:"reference_type"`
	ReferenceNumber   string     `json:"reference_number"`
	PartyType         string     `json:"party_type"`
	PartyName         string     `json:"party_name"`
	WarehouseLocation string     `json:"warehouse_location"`
	Remarks           string     `json:"remarks"`
	Items             []ItemForm `json:"items" validate:"dive"`
}

// EntryUpdateForm is the JSON payload for editing a draft entry's header.
type EntryUpdateForm struct {
	EntryDate         *time.Time `json:"entry_date"`
	ReferenceType     string     `json:"reference_type"`
	ReferenceNumber   string     `json:"reference_number"`
	PartyType         string     `json:"party_type"`
	PartyName         string     `json:"party_name"`
	WarehouseLocation string     `json:"warehouse_location"`
	Remarks           string     `json:"remarks"`
}

// ItemForm is the JSON payload for one entry line.
type ItemForm struct {
	ProductID    string     `json:"product_id" validate:"required,uuid"`
	Quantity     int64      `json:"quantity" validate:"required,gt=0"`
	UnitPrice    float64    `json:"unit_price" validate:"gte=0"`
	BatchNumber  string     `json:"batch_number"`
	SerialNumber string     `json:"serial_number"`
	ExpiryDate   *time.Time `json:"expiry_date"`
	BinLocation  string     `json:"bin_location"`
}

// RejectForm carries the optional rejection reason.
type RejectForm struct {
	Reason string `json:"reason"`
}
