package returns

import (
	"errors"
	"time"
)

// ReturnType discriminates plain returns from exchanges. The set is closed.
type ReturnType string

const (
	// TypeReturn refunds money for returned units.
	TypeReturn ReturnType = "return"
	// TypeExchange swaps returned units for other stock.
	TypeExchange ReturnType = "exchange"
)

// Valid reports whether t is a known return type.
func (t ReturnType) Valid() bool {
	return t == TypeReturn || t == TypeExchange
}

// Return is the immutable record of a processed return or exchange.
// RefundAmount and AdditionalPayment are mutually exclusive.
type Return struct {
	ID                int64          `json:"id"`
	ReturnNumber      string         `json:"return_number"`
	BillNumber        string         `json:"bill_number"`
	Type              ReturnType     `json:"type"`
	Items             []ReturnItem   `json:"items"`
	ExchangeItems     []ExchangeItem `json:"exchange_items,omitempty"`
	RefundAmount      float64        `json:"refund_amount"`
	AdditionalPayment float64        `json:"additional_payment,omitempty"`
	Reason            string         `json:"reason"`
	CustomerName      string         `json:"customer_name,omitempty"`
	CustomerPhone     string         `json:"customer_phone,omitempty"`
	CreatedBy         string         `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ReturnItem is a returned subset of an original bill line. Price is the
// bill-time snapshot, not the live product price.
type ReturnItem struct {
	ProductID   int64   `json:"product_id"`
	ItemID      string  `json:"item_id"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size,omitempty"`
	Price       float64 `json:"price"`
	ReturnQty   int     `json:"return_qty"`
}

// ExchangeItem is stock handed out in place of returned units, priced at
// the live product price when the exchange is processed.
type ExchangeItem struct {
	ProductID   int64   `json:"product_id"`
	ItemID      string  `json:"item_id"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size,omitempty"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// ProcessInput describes a return or exchange request against a bill.
type ProcessInput struct {
	BillNumber     string
	Type           ReturnType
	Items          []RequestedItem
	ExchangeItems  []RequestedExchange
	Reason         string
	CustomerName   string
	CustomerPhone  string
	Actor          string
	IdempotencyKey string
}

// RequestedItem selects a bill line by itemId and size.
type RequestedItem struct {
	ItemID    string
	Size      string
	ReturnQty int
}

// RequestedExchange selects replacement stock.
type RequestedExchange struct {
	ProductID int64
	Size      string
	Quantity  int
}

// Summary is returned to the caller for receipt printing.
type Summary struct {
	ReturnNumber      string  `json:"return_number"`
	RefundAmount      float64 `json:"refund_amount"`
	AdditionalPayment float64 `json:"additional_payment,omitempty"`
}

var (
	// ErrInvalidReturnType indicates a type outside the closed enum.
	ErrInvalidReturnType = errors.New("returns: invalid return type")
	// ErrMissingReason indicates an empty reason.
	ErrMissingReason = errors.New("returns: reason is required")
	// ErrInvalidReturnQuantity indicates the request does not match the bill
	// or exceeds what remains returnable.
	ErrInvalidReturnQuantity = errors.New("returns: invalid return quantity")
	// ErrSizeOutOfStock indicates the requested exchange stock is not
	// available.
	ErrSizeOutOfStock = errors.New("returns: requested size out of stock")
)
