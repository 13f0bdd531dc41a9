package billing

import (
	"errors"
	"time"
)

// Bill is the immutable record of a completed sale. Item prices and names
// are snapshots taken at sale time.
type Bill struct {
	ID             int64      `json:"id"`
	BillNumber     string     `json:"bill_number"`
	Items          []BillItem `json:"items"`
	Subtotal       float64    `json:"subtotal"`
	Discount       float64    `json:"discount"`
	DiscountAmount float64    `json:"discount_amount"`
	Tax            float64    `json:"tax"`
	Total          float64    `json:"total"`
	CustomerName   string     `json:"customer_name,omitempty"`
	CustomerPhone  string     `json:"customer_phone,omitempty"`
	PaymentMethod  string     `json:"payment_method"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BillItem is one sold line.
type BillItem struct {
	ProductID   int64   `json:"product_id"`
	ItemID      string  `json:"item_id"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size,omitempty"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// CreateBillInput describes a checkout request. Prices are resolved from
// the live product records, not trusted from the caller.
type CreateBillInput struct {
	Items         []CreateBillItem
	Discount      float64
	Tax           float64
	CustomerName  string
	CustomerPhone string
	PaymentMethod string
	// ExpectedTotal, when set, must match the computed total within one
	// cent; it guards against a stale cart on the caller's side.
	ExpectedTotal *float64
	Actor         string
}

// CreateBillItem selects a product line for checkout.
type CreateBillItem struct {
	ProductID int64
	Size      string
	Quantity  int
}

var (
	// ErrBillNotFound indicates no bill with the given number.
	ErrBillNotFound = errors.New("billing: bill not found")
	// ErrEmptyBill indicates a checkout with no lines.
	ErrEmptyBill = errors.New("billing: bill requires at least one item")
	// ErrInvalidBillInput indicates malformed quantities or rates.
	ErrInvalidBillInput = errors.New("billing: invalid bill input")
	// ErrTotalsMismatch indicates the caller-expected total disagrees with
	// the computed one.
	ErrTotalsMismatch = errors.New("billing: totals mismatch")
)
