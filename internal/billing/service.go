package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByNumber(ctx context.Context, billNumber string) (Bill, error)
	List(ctx context.Context, limit int) ([]Bill, error)
}

// TxRepository exposes transactional operations used by service. Checkout
// locks and decrements product stock, appends sale movements and inserts
// the bill in one transaction.
type TxRepository interface {
	NextBillNumber(ctx context.Context) (string, error)
	GetProductForUpdate(ctx context.Context, productID int64) (catalog.Product, error)
	UpdateProductStock(ctx context.Context, p catalog.Product) error
	AppendMovement(ctx context.Context, m ledger.Movement) error
	InsertBill(ctx context.Context, bill Bill) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates bill creation and lookups.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	clock func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, clock: func() time.Time { return time.Now().UTC() }}
}

// Create validates the cart, decrements stock and writes the bill as one
// atomic unit. One sale movement is appended per line.
func (s *Service) Create(ctx context.Context, input CreateBillInput) (Bill, error) {
	if len(input.Items) == 0 {
		return Bill{}, ErrEmptyBill
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return Bill{}, fmt.Errorf("%w: quantity must be > 0 for product %d", ErrInvalidBillInput, item.ProductID)
		}
	}
	if input.Discount < 0 || input.Discount > 100 {
		return Bill{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidBillInput)
	}
	if input.Tax < 0 {
		return Bill{}, fmt.Errorf("%w: tax must be >= 0", ErrInvalidBillInput)
	}

	var bill Bill
	run := func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextBillNumber(ctx)
		if err != nil {
			return err
		}
		now := s.clock()
		bill = Bill{
			BillNumber:    number,
			Discount:      input.Discount,
			Tax:           input.Tax,
			CustomerName:  input.CustomerName,
			CustomerPhone: input.CustomerPhone,
			PaymentMethod: input.PaymentMethod,
			CreatedBy:     input.Actor,
			CreatedAt:     now,
		}

		subtotal := decimal.Zero
		for _, item := range input.Items {
			product, err := tx.GetProductForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			previous := product.TotalStock
			if product.Sized() {
				available := product.StockOf(item.Size)
				if available < item.Quantity {
					return fmt.Errorf("%w: product %d size %q has %d, requested %d", catalog.ErrInsufficientStock, product.ID, item.Size, available, item.Quantity)
				}
				sizes := make(map[string]int, len(product.SizeStock))
				for k, v := range product.SizeStock {
					sizes[k] = v
				}
				sizes[item.Size] = available - item.Quantity
				product.SizeStock = sizes
				product.TotalStock = previous - item.Quantity
			} else {
				if item.Size != "" {
					return fmt.Errorf("%w: product %d has no size variants", ErrInvalidBillInput, product.ID)
				}
				if product.TotalStock < item.Quantity {
					return fmt.Errorf("%w: product %d has %d, requested %d", catalog.ErrInsufficientStock, product.ID, product.TotalStock, item.Quantity)
				}
				product.TotalStock -= item.Quantity
			}
			product.InStock = product.TotalStock > 0
			product.UpdatedAt = now
			if err := tx.UpdateProductStock(ctx, product); err != nil {
				return err
			}
			if err := tx.AppendMovement(ctx, ledger.Movement{
				ProductID:     product.ID,
				ProductName:   product.Name,
				Type:          ledger.TypeSale,
				Size:          item.Size,
				Quantity:      item.Quantity,
				PreviousStock: previous,
				NewStock:      product.TotalStock,
				Reason:        fmt.Sprintf("bill %s", number),
				CreatedBy:     input.Actor,
				CreatedAt:     now,
			}); err != nil {
				return err
			}

			bill.Items = append(bill.Items, BillItem{
				ProductID:   product.ID,
				ItemID:      product.ItemID,
				ProductName: product.Name,
				Size:        item.Size,
				Price:       product.Price,
				Quantity:    item.Quantity,
			})
			subtotal = subtotal.Add(decimal.NewFromFloat(product.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		discountAmount := subtotal.Mul(decimal.NewFromFloat(input.Discount)).Div(decimal.NewFromInt(100)).Round(2)
		total := subtotal.Sub(discountAmount).Add(decimal.NewFromFloat(input.Tax)).Round(2)

		bill.Subtotal, _ = subtotal.Round(2).Float64()
		bill.DiscountAmount, _ = discountAmount.Float64()
		bill.Total, _ = total.Float64()

		if input.ExpectedTotal != nil && math.Abs(bill.Total-*input.ExpectedTotal) > 0.01 {
			return fmt.Errorf("%w: computed %.2f, expected %.2f", ErrTotalsMismatch, bill.Total, *input.ExpectedTotal)
		}

		id, err := tx.InsertBill(ctx, bill)
		if err != nil {
			return err
		}
		bill.ID = id
		return nil
	}

	err := s.repo.WithTx(ctx, run)
	if errors.Is(err, shared.ErrConflict) {
		err = s.repo.WithTx(ctx, run)
	}
	if err != nil {
		return Bill{}, err
	}
	s.recordAudit(ctx, input.Actor, bill)
	return bill, nil
}

// GetByNumber resolves a bill by its human-readable number.
func (s *Service) GetByNumber(ctx context.Context, billNumber string) (Bill, error) {
	return s.repo.GetByNumber(ctx, billNumber)
}

// List returns recent bills, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Bill, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) recordAudit(ctx context.Context, actor string, bill Bill) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "billing:create",
		Entity:   "bill",
		EntityID: bill.BillNumber,
		Meta: map[string]any{
			"total": bill.Total,
			"items": len(bill.Items),
		},
	})
}
