package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/threadline-retail/threadline/internal/billing"
	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, limit int) ([]Return, error)
}

// TxRepository exposes transactional operations used by service. A return
// locks the bill, checks prior returns, locks exchange stock, appends
// movements and inserts the record in one transaction. GetBill must take a
// row lock so returns against the same bill serialize.
type TxRepository interface {
	GetBill(ctx context.Context, billNumber string) (billing.Bill, error)
	ReturnedQty(ctx context.Context, billNumber, itemID, size string) (int, error)
	NextReturnNumber(ctx context.Context) (string, error)
	GetProductForUpdate(ctx context.Context, productID int64) (catalog.Product, error)
	UpdateProductStock(ctx context.Context, p catalog.Product) error
	AppendMovement(ctx context.Context, m ledger.Movement) error
	InsertReturn(ctx context.Context, ret Return) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service turns return and exchange requests into validated, atomic stock
// and money adjustments.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	clock       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, clock: func() time.Time { return time.Now().UTC() }}
}

// Process validates the request against the original bill, computes the
// refund or payment difference and commits the stock and record changes
// atomically. The original bill is never mutated, and returned units are
// not restocked automatically; putting them back on the shelf is an
// explicit AdjustStock step.
func (s *Service) Process(ctx context.Context, input ProcessInput) (Summary, error) {
	if !input.Type.Valid() {
		return Summary{}, fmt.Errorf("%w: %q", ErrInvalidReturnType, input.Type)
	}
	if input.Reason == "" {
		return Summary{}, ErrMissingReason
	}
	if len(input.Items) == 0 {
		return Summary{}, fmt.Errorf("%w: no items requested", ErrInvalidReturnQuantity)
	}
	if input.Type == TypeExchange && len(input.ExchangeItems) == 0 {
		return Summary{}, fmt.Errorf("%w: exchange requires exchange items", ErrInvalidReturnQuantity)
	}
	if input.Type == TypeReturn && len(input.ExchangeItems) > 0 {
		return Summary{}, fmt.Errorf("%w: plain return cannot carry exchange items", ErrInvalidReturnQuantity)
	}

	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "returns"); err != nil {
			return Summary{}, err
		}
		insertedKey = true
	}

	var summary Summary
	run := func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBill(ctx, input.BillNumber)
		if err != nil {
			return err
		}
		now := s.clock()

		// Requested quantities are accumulated per bill line so repeated
		// entries for the same item and size are checked cumulatively, the
		// same way exchange stock is.
		type lineKey struct{ itemID, size string }
		requestedSoFar := map[lineKey]int{}

		returnValue := decimal.Zero
		items := make([]ReturnItem, 0, len(input.Items))
		for _, requested := range input.Items {
			if requested.ReturnQty <= 0 {
				return fmt.Errorf("%w: quantity must be > 0 for item %s", ErrInvalidReturnQuantity, requested.ItemID)
			}
			line, ok := findBillLine(bill, requested.ItemID, requested.Size)
			if !ok {
				return fmt.Errorf("%w: bill %s has no line for item %s size %q", ErrInvalidReturnQuantity, bill.BillNumber, requested.ItemID, requested.Size)
			}
			already, err := tx.ReturnedQty(ctx, bill.BillNumber, requested.ItemID, requested.Size)
			if err != nil {
				return err
			}
			key := lineKey{requested.ItemID, requested.Size}
			if requested.ReturnQty+requestedSoFar[key]+already > line.Quantity {
				return fmt.Errorf("%w: item %s size %q sold %d, already returned %d, requested %d",
					ErrInvalidReturnQuantity, requested.ItemID, requested.Size, line.Quantity, already+requestedSoFar[key], requested.ReturnQty)
			}
			requestedSoFar[key] += requested.ReturnQty
			items = append(items, ReturnItem{
				ProductID:   line.ProductID,
				ItemID:      line.ItemID,
				ProductName: line.ProductName,
				Size:        line.Size,
				Price:       line.Price,
				ReturnQty:   requested.ReturnQty,
			})
			returnValue = returnValue.Add(decimal.NewFromFloat(line.Price).Mul(decimal.NewFromInt(int64(requested.ReturnQty))))
		}

		number, err := tx.NextReturnNumber(ctx)
		if err != nil {
			return err
		}

		exchangeValue := decimal.Zero
		exchangeItems := []ExchangeItem{}
		if input.Type == TypeExchange {
			// Products are fetched once and decremented in memory so
			// repeated entries for the same item and size are checked
			// cumulatively against live stock.
			locked := map[int64]*catalog.Product{}
			order := []int64{}
			for _, entry := range input.ExchangeItems {
				if entry.Quantity <= 0 {
					return fmt.Errorf("%w: exchange quantity must be > 0 for product %d", ErrInvalidReturnQuantity, entry.ProductID)
				}
				product, ok := locked[entry.ProductID]
				if !ok {
					fetched, err := tx.GetProductForUpdate(ctx, entry.ProductID)
					if err != nil {
						return err
					}
					product = &fetched
					locked[entry.ProductID] = product
					order = append(order, entry.ProductID)
				}
				previous := product.TotalStock
				if product.Sized() {
					available := product.StockOf(entry.Size)
					if available < entry.Quantity {
						return fmt.Errorf("%w: product %d size %q has %d, requested %d", ErrSizeOutOfStock, product.ID, entry.Size, available, entry.Quantity)
					}
					sizes := make(map[string]int, len(product.SizeStock))
					for k, v := range product.SizeStock {
						sizes[k] = v
					}
					sizes[entry.Size] = available - entry.Quantity
					product.SizeStock = sizes
				} else {
					if entry.Size != "" {
						return fmt.Errorf("%w: product %d has no size variants", ErrInvalidReturnQuantity, product.ID)
					}
					if product.TotalStock < entry.Quantity {
						return fmt.Errorf("%w: product %d has %d, requested %d", ErrSizeOutOfStock, product.ID, product.TotalStock, entry.Quantity)
					}
				}
				product.TotalStock = previous - entry.Quantity

				if err := tx.AppendMovement(ctx, ledger.Movement{
					ProductID:     product.ID,
					ProductName:   product.Name,
					Type:          ledger.TypeStockOut,
					Size:          entry.Size,
					Quantity:      entry.Quantity,
					PreviousStock: previous,
					NewStock:      product.TotalStock,
					Reason:        fmt.Sprintf("exchange %s", number),
					CreatedBy:     input.Actor,
					CreatedAt:     now,
				}); err != nil {
					return err
				}

				exchangeItems = append(exchangeItems, ExchangeItem{
					ProductID:   product.ID,
					ItemID:      product.ItemID,
					ProductName: product.Name,
					Size:        entry.Size,
					Price:       product.Price,
					Quantity:    entry.Quantity,
				})
				exchangeValue = exchangeValue.Add(decimal.NewFromFloat(product.Price).Mul(decimal.NewFromInt(int64(entry.Quantity))))
			}
			for _, id := range order {
				product := locked[id]
				product.InStock = product.TotalStock > 0
				product.UpdatedAt = now
				if err := tx.UpdateProductStock(ctx, *product); err != nil {
					return err
				}
			}
		}

		refund, additional := settle(input.Type, returnValue, exchangeValue)

		ret := Return{
			ReturnNumber:      number,
			BillNumber:        bill.BillNumber,
			Type:              input.Type,
			Items:             items,
			ExchangeItems:     exchangeItems,
			RefundAmount:      refund,
			AdditionalPayment: additional,
			Reason:            input.Reason,
			CustomerName:      input.CustomerName,
			CustomerPhone:     input.CustomerPhone,
			CreatedBy:         input.Actor,
			CreatedAt:         now,
		}
		if _, err := tx.InsertReturn(ctx, ret); err != nil {
			return err
		}
		summary = Summary{ReturnNumber: number, RefundAmount: refund, AdditionalPayment: additional}
		return nil
	}

	err := s.repo.WithTx(ctx, run)
	if errors.Is(err, shared.ErrConflict) {
		err = s.repo.WithTx(ctx, run)
	}
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Summary{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor,
			Action:   fmt.Sprintf("returns:%s", input.Type),
			Entity:   "return",
			EntityID: summary.ReturnNumber,
			Meta: map[string]any{
				"bill_number":        input.BillNumber,
				"refund_amount":      summary.RefundAmount,
				"additional_payment": summary.AdditionalPayment,
			},
		})
	}
	return summary, nil
}

// List returns recent return records, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Return, error) {
	return s.repo.List(ctx, limit)
}

// settle computes the money side. Rounding happens once at the settled
// amounts, never on intermediate per-unit prices.
func settle(typ ReturnType, returnValue, exchangeValue decimal.Decimal) (refund, additional float64) {
	if typ == TypeReturn {
		refund, _ = returnValue.Round(2).Float64()
		return refund, 0
	}
	difference := exchangeValue.Sub(returnValue)
	switch {
	case difference.IsPositive():
		additional, _ = difference.Round(2).Float64()
	case difference.IsNegative():
		refund, _ = difference.Neg().Round(2).Float64()
	}
	return refund, additional
}

func findBillLine(bill billing.Bill, itemID, size string) (billing.BillItem, bool) {
	for _, line := range bill.Items {
		if line.ItemID == itemID && line.Size == size {
			return line, true
		}
	}
	return billing.BillItem{}, false
}
