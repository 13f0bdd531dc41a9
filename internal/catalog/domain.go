package catalog

import (
	"errors"
	"time"
)

// Product is a catalog entry with per-size stock. TotalStock always equals
// the sum of SizeStock when sizes are used; size-less products keep an
// independent flat quantity with a nil SizeStock.
type Product struct {
	ID         int64          `json:"id"`
	ItemID     string         `json:"item_id"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Price      float64        `json:"price"`
	CostPrice  float64        `json:"cost_price"`
	SizeStock  map[string]int `json:"size_stock,omitempty"`
	TotalStock int            `json:"total_stock"`
	InStock    bool           `json:"in_stock"`
	IsHidden   bool           `json:"is_hidden"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Sized reports whether the product tracks stock per size.
func (p Product) Sized() bool {
	return p.SizeStock != nil
}

// StockOf returns the quantity for a size; absent sizes are zero.
func (p Product) StockOf(size string) int {
	return p.SizeStock[size]
}

// CreateProductInput describes a new catalog entry.
type CreateProductInput struct {
	ItemID    string
	Name      string
	Category  string
	Price     float64
	CostPrice float64
	SizeStock map[string]int
	FlatStock int
	Actor     string
}

// AdjustStockInput applies signed deltas to one or more sizes, or to the
// flat quantity of a size-less product. Exactly one of SizeDeltas and
// FlatDelta may be used.
type AdjustStockInput struct {
	ProductID  int64
	SizeDeltas map[string]int
	FlatDelta  int
	Reason     string
	Actor      string
}

// SetStockInput overwrites stock absolutely, e.g. after a physical recount.
type SetStockInput struct {
	ProductID int64
	SizeStock map[string]int
	FlatStock *int
	Actor     string
}

// UpdateFieldsInput patches catalog metadata. Nil fields stay untouched.
// ForceOutOfStock lets an operator hide a product from sale while stock
// remains; the flag is recomputed on the next stock operation.
type UpdateFieldsInput struct {
	Name            *string
	Category        *string
	Price           *float64
	CostPrice       *float64
	ForceOutOfStock *bool
}

// StockResult reports the before/after totals of a stock operation.
type StockResult struct {
	PreviousStock int `json:"previous_stock"`
	NewStock      int `json:"new_stock"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Category      string
	IncludeHidden bool
	Limit         int
}

var (
	// ErrProductNotFound indicates the product is missing or trashed.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrInsufficientStock indicates a delta would drive a quantity negative.
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
	// ErrItemIDTaken indicates the business key is already in use.
	ErrItemIDTaken = errors.New("catalog: item id already exists")
	// ErrInvalidStockInput indicates a malformed delta or overwrite request.
	ErrInvalidStockInput = errors.New("catalog: invalid stock input")
)
