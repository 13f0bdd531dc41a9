package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threadline-retail/threadline/internal/ledger"
)

type memoryRepo struct {
	products  map[int64]Product
	movements []ledger.Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	out := []Product{}
	for _, p := range r.products {
		if !filter.IncludeHidden && p.IsHidden {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Product, error) {
	return tx.repo.GetByID(ctx, id)
}

func (tx *memoryTx) Insert(ctx context.Context, p Product) (int64, error) {
	for _, existing := range tx.repo.products {
		if existing.ItemID == p.ItemID {
			return 0, ErrItemIDTaken
		}
	}
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	tx.repo.products[p.ID] = p
	return p.ID, nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, p Product) error {
	if _, ok := tx.repo.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	tx.repo.products[p.ID] = p
	return nil
}

func (tx *memoryTx) UpdateMeta(ctx context.Context, id int64, in UpdateFieldsInput, inStock *bool) error {
	p, ok := tx.repo.products[id]
	if !ok {
		return ErrProductNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.CostPrice != nil {
		p.CostPrice = *in.CostPrice
	}
	if inStock != nil {
		p.InStock = *inStock
	}
	tx.repo.products[id] = p
	return nil
}

func (tx *memoryTx) SetHidden(ctx context.Context, id int64, hidden bool) error {
	p, ok := tx.repo.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.IsHidden = hidden
	tx.repo.products[id] = p
	return nil
}

func (tx *memoryTx) AppendMovement(ctx context.Context, m ledger.Movement) error {
	if !m.Consistent() {
		return ledger.ErrInvalidMovementType
	}
	m.ID = int64(len(tx.repo.movements) + 1)
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

func TestCreateRecordsInitialStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{
		ItemID:    "TSH-001",
		Name:      "Crew Neck Tee",
		Category:  "shirts",
		Price:     499,
		SizeStock: map[string]int{"S": 4, "M": 6},
		Actor:     "priya",
	})
	require.NoError(t, err)
	require.Equal(t, 10, product.TotalStock)
	require.True(t, product.InStock)

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, ledger.TypeStockIn, m.Type)
	require.Equal(t, 10, m.Quantity)
	require.Equal(t, 0, m.PreviousStock)
	require.Equal(t, 10, m.NewStock)
	require.Equal(t, "priya", m.CreatedBy)
}

func TestCreateZeroStockEmitsNoMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	product, err := svc.Create(context.Background(), CreateProductInput{ItemID: "TSH-002", Name: "Tank"})
	require.NoError(t, err)
	require.Equal(t, 0, product.TotalStock)
	require.False(t, product.InStock)
	require.Empty(t, repo.movements)
}

func TestCreateRejectsDuplicateItemID(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateProductInput{ItemID: "TSH-001", Name: "Tee"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateProductInput{ItemID: "TSH-001", Name: "Another Tee"})
	require.ErrorIs(t, err, ErrItemIDTaken)
}

func TestAdjustStockPerSize(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{
		ItemID:    "JKT-001",
		Name:      "Denim Jacket",
		SizeStock: map[string]int{"M": 5, "L": 3},
		Actor:     "priya",
	})
	require.NoError(t, err)

	result, err := svc.AdjustStock(ctx, AdjustStockInput{
		ProductID:  product.ID,
		SizeDeltas: map[string]int{"M": -2},
		Reason:     "damaged pair",
		Actor:      "priya",
	})
	require.NoError(t, err)
	require.Equal(t, 8, result.PreviousStock)
	require.Equal(t, 6, result.NewStock)

	stored := repo.products[product.ID]
	require.Equal(t, 3, stored.SizeStock["M"])
	require.Equal(t, 3, stored.SizeStock["L"])

	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, ledger.TypeStockOut, last.Type)
	require.Equal(t, 2, last.Quantity)
	require.Equal(t, "M", last.Size)
}

func TestAdjustStockNeverGoesNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{
		ItemID:    "JKT-002",
		Name:      "Bomber",
		SizeStock: map[string]int{"M": 2, "L": 5},
	})
	require.NoError(t, err)
	movementCount := len(repo.movements)

	// One size would go negative; the whole adjustment must fail.
	_, err = svc.AdjustStock(ctx, AdjustStockInput{
		ProductID:  product.ID,
		SizeDeltas: map[string]int{"L": 1, "M": -3},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	stored := repo.products[product.ID]
	require.Equal(t, 2, stored.SizeStock["M"])
	require.Equal(t, 5, stored.SizeStock["L"])
	require.Equal(t, 7, stored.TotalStock)
	require.Len(t, repo.movements, movementCount)
}

func TestAdjustStockFlatProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{ItemID: "BLT-001", Name: "Leather Belt", FlatStock: 10})
	require.NoError(t, err)

	result, err := svc.AdjustStock(ctx, AdjustStockInput{ProductID: product.ID, FlatDelta: -4, Reason: "shrinkage"})
	require.NoError(t, err)
	require.Equal(t, 6, result.NewStock)

	_, err = svc.AdjustStock(ctx, AdjustStockInput{ProductID: product.ID, FlatDelta: -7})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustStockRejectsMixedInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{ItemID: "BLT-002", Name: "Belt", FlatStock: 5})
	require.NoError(t, err)

	_, err = svc.AdjustStock(ctx, AdjustStockInput{ProductID: product.ID, SizeDeltas: map[string]int{"M": 1}, FlatDelta: 2})
	require.ErrorIs(t, err, ErrInvalidStockInput)

	_, err = svc.AdjustStock(ctx, AdjustStockInput{ProductID: product.ID, SizeDeltas: map[string]int{"M": 1}})
	require.ErrorIs(t, err, ErrInvalidStockInput)
}

func TestSetStockOverwrites(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{
		ItemID:    "DRS-001",
		Name:      "Wrap Dress",
		SizeStock: map[string]int{"S": 3, "M": 3},
	})
	require.NoError(t, err)

	result, err := svc.SetStock(ctx, SetStockInput{
		ProductID: product.ID,
		SizeStock: map[string]int{"S": 1, "M": 2, "L": 4},
	})
	require.NoError(t, err)
	require.Equal(t, 6, result.PreviousStock)
	require.Equal(t, 7, result.NewStock)

	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, ledger.TypeSizeUpdate, last.Type)
	require.Equal(t, 1, last.Quantity)
}

func TestToggleVisibilityNoMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{ItemID: "SCF-001", Name: "Scarf", FlatStock: 3})
	require.NoError(t, err)
	movementCount := len(repo.movements)

	require.NoError(t, svc.ToggleVisibility(ctx, product.ID, true, "priya"))
	require.True(t, repo.products[product.ID].IsHidden)
	require.Len(t, repo.movements, movementCount)

	listed, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestUpdateFieldsForceOutOfStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateProductInput{ItemID: "CAP-001", Name: "Cap", FlatStock: 5})
	require.NoError(t, err)

	force := true
	updated, err := svc.UpdateFields(ctx, product.ID, UpdateFieldsInput{ForceOutOfStock: &force}, "priya")
	require.NoError(t, err)
	require.False(t, updated.InStock)
	require.Equal(t, 5, updated.TotalStock)

	force = false
	updated, err = svc.UpdateFields(ctx, product.ID, UpdateFieldsInput{ForceOutOfStock: &force}, "priya")
	require.NoError(t, err)
	require.True(t, updated.InStock)
}

func TestAdjustStockUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.AdjustStock(context.Background(), AdjustStockInput{ProductID: 42, FlatDelta: 1})
	require.ErrorIs(t, err, ErrProductNotFound)
}
