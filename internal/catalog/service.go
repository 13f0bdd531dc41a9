package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Product, error)
	Insert(ctx context.Context, p Product) (int64, error)
	UpdateStock(ctx context.Context, p Product) error
	UpdateMeta(ctx context.Context, id int64, in UpdateFieldsInput, inStock *bool) error
	SetHidden(ctx context.Context, id int64, hidden bool) error
	AppendMovement(ctx context.Context, m ledger.Movement) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog and stock operations. Every stock mutation
// commits the product update and exactly one ledger movement in the same
// transaction.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	clock func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, clock: func() time.Time { return time.Now().UTC() }}
}

// withRetry runs the transaction, retrying once on a serialization conflict.
func (s *Service) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, fn)
	if errors.Is(err, shared.ErrConflict) {
		err = s.repo.WithTx(ctx, fn)
	}
	return err
}

// Create inserts a new product. A non-zero opening stock is recorded as a
// stock_in movement so the ledger replays to the current quantity.
func (s *Service) Create(ctx context.Context, input CreateProductInput) (Product, error) {
	if input.ItemID == "" || input.Name == "" {
		return Product{}, fmt.Errorf("%w: item id and name required", ErrInvalidStockInput)
	}
	if input.Price < 0 || input.CostPrice < 0 {
		return Product{}, fmt.Errorf("%w: price must be >= 0", ErrInvalidStockInput)
	}
	if input.SizeStock != nil && input.FlatStock != 0 {
		return Product{}, fmt.Errorf("%w: provide size stock or a flat quantity, not both", ErrInvalidStockInput)
	}
	total := input.FlatStock
	var sizes map[string]int
	if input.SizeStock != nil {
		total = 0
		sizes = make(map[string]int, len(input.SizeStock))
		for size, qty := range input.SizeStock {
			if qty < 0 {
				return Product{}, fmt.Errorf("%w: size %q quantity must be >= 0", ErrInvalidStockInput, size)
			}
			sizes[size] = qty
			total += qty
		}
	} else if total < 0 {
		return Product{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalidStockInput)
	}

	now := s.clock()
	product := Product{
		ItemID:     input.ItemID,
		Name:       input.Name,
		Category:   input.Category,
		Price:      input.Price,
		CostPrice:  input.CostPrice,
		SizeStock:  sizes,
		TotalStock: total,
		InStock:    total > 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		if total == 0 {
			return nil
		}
		return tx.AppendMovement(ctx, ledger.Movement{
			ProductID:     id,
			ProductName:   product.Name,
			Type:          ledger.TypeStockIn,
			Quantity:      total,
			PreviousStock: 0,
			NewStock:      total,
			Reason:        "initial stock",
			CreatedBy:     input.Actor,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, input.Actor, "catalog:create", product.ID, map[string]any{"item_id": product.ItemID, "total_stock": total})
	return product, nil
}

// AdjustStock applies signed deltas and appends the matching movement.
// No partial application: if any resulting quantity would go negative the
// whole operation fails.
func (s *Service) AdjustStock(ctx context.Context, input AdjustStockInput) (StockResult, error) {
	if len(input.SizeDeltas) > 0 && input.FlatDelta != 0 {
		return StockResult{}, fmt.Errorf("%w: provide size deltas or a flat delta, not both", ErrInvalidStockInput)
	}
	if len(input.SizeDeltas) == 0 && input.FlatDelta == 0 {
		return StockResult{}, fmt.Errorf("%w: no change requested", ErrInvalidStockInput)
	}

	var result StockResult
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		previous := product.TotalStock

		var size string
		if len(input.SizeDeltas) > 0 {
			if !product.Sized() {
				return fmt.Errorf("%w: product %d has no size variants", ErrInvalidStockInput, product.ID)
			}
			sizes := make(map[string]int, len(product.SizeStock))
			for k, v := range product.SizeStock {
				sizes[k] = v
			}
			for sz, delta := range input.SizeDeltas {
				next := sizes[sz] + delta
				if next < 0 {
					return fmt.Errorf("%w: product %d size %q has %d, requested %d", ErrInsufficientStock, product.ID, sz, sizes[sz], -delta)
				}
				sizes[sz] = next
			}
			if len(input.SizeDeltas) == 1 {
				for sz := range input.SizeDeltas {
					size = sz
				}
			}
			product.SizeStock = sizes
			total := 0
			for _, qty := range sizes {
				total += qty
			}
			product.TotalStock = total
		} else {
			if product.Sized() {
				return fmt.Errorf("%w: product %d tracks stock per size", ErrInvalidStockInput, product.ID)
			}
			next := product.TotalStock + input.FlatDelta
			if next < 0 {
				return fmt.Errorf("%w: product %d has %d, requested %d", ErrInsufficientStock, product.ID, product.TotalStock, -input.FlatDelta)
			}
			product.TotalStock = next
		}

		product.InStock = product.TotalStock > 0
		product.UpdatedAt = s.clock()
		if err := tx.UpdateStock(ctx, product); err != nil {
			return err
		}

		if err := tx.AppendMovement(ctx, movementFor(product, size, previous, input.Reason, input.Actor, s.clock())); err != nil {
			return err
		}
		result = StockResult{PreviousStock: previous, NewStock: product.TotalStock}
		return nil
	})
	if err != nil {
		return StockResult{}, err
	}
	s.record(ctx, input.Actor, "catalog:adjust_stock", input.ProductID, map[string]any{
		"previous_stock": result.PreviousStock,
		"new_stock":      result.NewStock,
		"reason":         input.Reason,
	})
	return result, nil
}

// SetStock overwrites stock absolutely and records a size_update movement.
func (s *Service) SetStock(ctx context.Context, input SetStockInput) (StockResult, error) {
	if (input.SizeStock == nil) == (input.FlatStock == nil) {
		return StockResult{}, fmt.Errorf("%w: provide size stock or a flat quantity, not both", ErrInvalidStockInput)
	}
	for size, qty := range input.SizeStock {
		if qty < 0 {
			return StockResult{}, fmt.Errorf("%w: size %q quantity must be >= 0", ErrInvalidStockInput, size)
		}
	}
	if input.FlatStock != nil && *input.FlatStock < 0 {
		return StockResult{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalidStockInput)
	}

	var result StockResult
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		previous := product.TotalStock

		if input.SizeStock != nil {
			if !product.Sized() {
				return fmt.Errorf("%w: product %d has no size variants", ErrInvalidStockInput, product.ID)
			}
			sizes := make(map[string]int, len(input.SizeStock))
			total := 0
			for size, qty := range input.SizeStock {
				sizes[size] = qty
				total += qty
			}
			product.SizeStock = sizes
			product.TotalStock = total
		} else {
			if product.Sized() {
				return fmt.Errorf("%w: product %d tracks stock per size", ErrInvalidStockInput, product.ID)
			}
			product.TotalStock = *input.FlatStock
		}

		product.InStock = product.TotalStock > 0
		product.UpdatedAt = s.clock()
		if err := tx.UpdateStock(ctx, product); err != nil {
			return err
		}

		if err := tx.AppendMovement(ctx, ledger.Movement{
			ProductID:     product.ID,
			ProductName:   product.Name,
			Type:          ledger.TypeSizeUpdate,
			Quantity:      product.TotalStock - previous,
			PreviousStock: previous,
			NewStock:      product.TotalStock,
			Reason:        "manual recount",
			CreatedBy:     input.Actor,
			CreatedAt:     s.clock(),
		}); err != nil {
			return err
		}
		result = StockResult{PreviousStock: previous, NewStock: product.TotalStock}
		return nil
	})
	if err != nil {
		return StockResult{}, err
	}
	s.record(ctx, input.Actor, "catalog:set_stock", input.ProductID, map[string]any{
		"previous_stock": result.PreviousStock,
		"new_stock":      result.NewStock,
	})
	return result, nil
}

// ToggleVisibility flips the hidden flag. Metadata only, no movement.
func (s *Service) ToggleVisibility(ctx context.Context, productID int64, hidden bool, actor string) error {
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, productID); err != nil {
			return err
		}
		return tx.SetHidden(ctx, productID, hidden)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "catalog:toggle_visibility", productID, map[string]any{"is_hidden": hidden})
	return nil
}

// UpdateFields patches catalog metadata. Metadata only, no movement.
func (s *Service) UpdateFields(ctx context.Context, productID int64, input UpdateFieldsInput, actor string) (Product, error) {
	if input.Price != nil && *input.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must be >= 0", ErrInvalidStockInput)
	}
	if input.CostPrice != nil && *input.CostPrice < 0 {
		return Product{}, fmt.Errorf("%w: cost price must be >= 0", ErrInvalidStockInput)
	}
	var updated Product
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		var inStock *bool
		if input.ForceOutOfStock != nil {
			v := !*input.ForceOutOfStock && product.TotalStock > 0
			inStock = &v
		}
		if err := tx.UpdateMeta(ctx, productID, input, inStock); err != nil {
			return err
		}
		if input.Name != nil {
			product.Name = *input.Name
		}
		if input.Category != nil {
			product.Category = *input.Category
		}
		if input.Price != nil {
			product.Price = *input.Price
		}
		if input.CostPrice != nil {
			product.CostPrice = *input.CostPrice
		}
		if inStock != nil {
			product.InStock = *inStock
		}
		updated = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actor, "catalog:update_fields", productID, nil)
	return updated, nil
}

// Get loads one product.
func (s *Service) Get(ctx context.Context, productID int64) (Product, error) {
	return s.repo.GetByID(ctx, productID)
}

// List returns catalog entries.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	return s.repo.List(ctx, filter)
}

func movementFor(product Product, size string, previous int, reason, actor string, at time.Time) ledger.Movement {
	delta := product.TotalStock - previous
	movement := ledger.Movement{
		ProductID:     product.ID,
		ProductName:   product.Name,
		Size:          size,
		PreviousStock: previous,
		NewStock:      product.TotalStock,
		Reason:        reason,
		CreatedBy:     actor,
		CreatedAt:     at,
	}
	switch {
	case delta > 0:
		movement.Type = ledger.TypeStockIn
		movement.Quantity = delta
	case delta < 0:
		movement.Type = ledger.TypeStockOut
		movement.Quantity = -delta
	default:
		// Mixed per-size shuffle with no net change.
		movement.Type = ledger.TypeAdjustment
		movement.Quantity = 0
	}
	return movement
}

func (s *Service) record(ctx context.Context, actor, action string, productID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", productID),
		Meta:     meta,
	})
}
