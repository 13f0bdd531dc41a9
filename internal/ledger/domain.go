package ledger

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements. The set is closed;
// anything else is rejected before it reaches storage.
type MovementType string

const (
	// TypeStockIn represents an inbound restock.
	TypeStockIn MovementType = "stock_in"
	// TypeStockOut represents an outbound issue.
	TypeStockOut MovementType = "stock_out"
	// TypeAdjustment indicates a manual correction; quantity is signed.
	TypeAdjustment MovementType = "adjustment"
	// TypeSale records stock leaving through a bill.
	TypeSale MovementType = "sale"
	// TypeReturn records stock coming back through a return.
	TypeReturn MovementType = "return"
	// TypeSizeUpdate records an absolute recount; quantity is signed.
	TypeSizeUpdate MovementType = "size_update"
)

// Valid reports whether t is one of the closed movement types.
func (t MovementType) Valid() bool {
	switch t {
	case TypeStockIn, TypeStockOut, TypeAdjustment, TypeSale, TypeReturn, TypeSizeUpdate:
		return true
	}
	return false
}

// Movement is one append-only entry in the stock audit trail. Product name
// and the before/after quantities are snapshots taken at event time so the
// record stays accurate after renames or trashing.
type Movement struct {
	ID            int64        `json:"id"`
	ProductID     int64        `json:"product_id"`
	ProductName   string       `json:"product_name"`
	Type          MovementType `json:"type"`
	Size          string       `json:"size,omitempty"`
	Quantity      int          `json:"quantity"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	Reason        string       `json:"reason,omitempty"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Delta returns the signed total-stock change the movement represents.
// Subtractive types store a positive magnitude; adjustments and size
// updates carry their own sign.
func (m Movement) Delta() int {
	switch m.Type {
	case TypeStockOut, TypeSale:
		return -m.Quantity
	default:
		return m.Quantity
	}
}

// Consistent checks the before/after snapshot against the movement itself.
func (m Movement) Consistent() bool {
	return m.NewStock == m.PreviousStock+m.Delta() && m.NewStock >= 0
}

// Replay folds movements in ledger order and returns the resulting stock,
// starting from the first entry's previous-stock snapshot. An empty slice
// replays to zero.
func Replay(movements []Movement) int {
	if len(movements) == 0 {
		return 0
	}
	stock := movements[0].PreviousStock
	for _, m := range movements {
		stock += m.Delta()
	}
	return stock
}

// ErrInvalidMovementType indicates a type outside the closed enum.
var ErrInvalidMovementType = errors.New("ledger: invalid movement type")
