package catalog

// ProductForm is the JSON payload for creating or updating a product.
type ProductForm struct {
	Name          string  `json:"product_name" validate:"required"`
	ReferenceNo   string  `json:"product_reference_no"`
	Category      string  `json:"category"`
	Price         float64 `json:"price" validate:"gte=0"`
	MinStockLevel int64   `json:"min_stock_level" validate:"gte=0"`
	ReorderLevel  int64   `json:"reorder_level" validate:"gte=0"`
	BinLocation   string  `json:"bin_location"`
	IsActive      bool    `json:"is_active"`
}
