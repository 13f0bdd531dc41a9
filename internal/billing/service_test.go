package billing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
)

type memoryRepo struct {
	products   map[int64]catalog.Product
	movements  []ledger.Movement
	bills      []Bill
	nextNumber int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]catalog.Product)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := make(map[int64]catalog.Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	movements := make([]ledger.Movement, len(r.movements))
	copy(movements, r.movements)
	bills := make([]Bill, len(r.bills))
	copy(bills, r.bills)
	nextNumber := r.nextNumber
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = products
		r.movements = movements
		r.bills = bills
		r.nextNumber = nextNumber
		return err
	}
	return nil
}

func (r *memoryRepo) GetByNumber(ctx context.Context, billNumber string) (Bill, error) {
	for _, b := range r.bills {
		if b.BillNumber == billNumber {
			return b, nil
		}
	}
	return Bill{}, ErrBillNotFound
}

func (r *memoryRepo) List(ctx context.Context, limit int) ([]Bill, error) {
	out := make([]Bill, len(r.bills))
	copy(out, r.bills)
	return out, nil
}

func (tx *memoryTx) NextBillNumber(ctx context.Context) (string, error) {
	tx.repo.nextNumber++
	return fmt.Sprintf("BILL-%06d", tx.repo.nextNumber), nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (catalog.Product, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, p catalog.Product) error {
	tx.repo.products[p.ID] = p
	return nil
}

func (tx *memoryTx) AppendMovement(ctx context.Context, m ledger.Movement) error {
	if !m.Consistent() {
		return ledger.ErrInvalidMovementType
	}
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

func (tx *memoryTx) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	bill.ID = int64(len(tx.repo.bills) + 1)
	tx.repo.bills = append(tx.repo.bills, bill)
	return bill.ID, nil
}

func seedProduct(r *memoryRepo, p catalog.Product) catalog.Product {
	p.InStock = p.TotalStock > 0
	r.products[p.ID] = p
	return p
}

func TestCreateBillComputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "TSH-001", Name: "Tee", Price: 499, SizeStock: map[string]int{"M": 10}, TotalStock: 10})
	seedProduct(repo, catalog.Product{ID: 2, ItemID: "BLT-001", Name: "Belt", Price: 250.50, TotalStock: 5})
	svc := NewService(repo, nil)

	bill, err := svc.Create(context.Background(), CreateBillInput{
		Items: []CreateBillItem{
			{ProductID: 1, Size: "M", Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
		Discount:      10,
		Tax:           30,
		PaymentMethod: "cash",
		Actor:         "priya",
	})
	require.NoError(t, err)
	require.Equal(t, "BILL-000001", bill.BillNumber)
	// subtotal 2*499 + 250.50 = 1248.50; discount 10% = 124.85
	require.InDelta(t, 1248.50, bill.Subtotal, 0.001)
	require.InDelta(t, 124.85, bill.DiscountAmount, 0.001)
	require.InDelta(t, 1153.65, bill.Total, 0.001)
	require.Len(t, bill.Items, 2)

	require.Equal(t, 8, repo.products[1].SizeStock["M"])
	require.Equal(t, 8, repo.products[1].TotalStock)
	require.Equal(t, 4, repo.products[2].TotalStock)

	require.Len(t, repo.movements, 2)
	require.Equal(t, ledger.TypeSale, repo.movements[0].Type)
	require.Equal(t, "bill BILL-000001", repo.movements[0].Reason)
}

func TestCreateBillDiscountRounding(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "SCF-001", Name: "Scarf", Price: 333.33, TotalStock: 10})
	svc := NewService(repo, nil)

	bill, err := svc.Create(context.Background(), CreateBillInput{
		Items:    []CreateBillItem{{ProductID: 1, Quantity: 1}},
		Discount: 15,
	})
	require.NoError(t, err)
	// 15% of 333.33 = 49.9995, rounds half-up to 50.00.
	require.InDelta(t, 50.00, bill.DiscountAmount, 0.001)
	require.InDelta(t, 283.33, bill.Total, 0.001)
}

func TestCreateBillInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "TSH-001", Name: "Tee", Price: 499, SizeStock: map[string]int{"M": 1}, TotalStock: 1})
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateBillInput{
		Items: []CreateBillItem{{ProductID: 1, Size: "M", Quantity: 2}},
	})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
	require.Empty(t, repo.bills)
	require.Empty(t, repo.movements)
}

func TestCreateBillSizeRequiredForSizedProduct(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "TSH-001", Name: "Tee", Price: 499, SizeStock: map[string]int{"M": 5}, TotalStock: 5})
	svc := NewService(repo, nil)

	// Missing size resolves to zero availability.
	_, err := svc.Create(context.Background(), CreateBillInput{
		Items: []CreateBillItem{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
}

func TestCreateBillExpectedTotalGuard(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "BLT-001", Name: "Belt", Price: 100, TotalStock: 5})
	svc := NewService(repo, nil)
	ctx := context.Background()

	stale := 90.0
	_, err := svc.Create(ctx, CreateBillInput{
		Items:         []CreateBillItem{{ProductID: 1, Quantity: 1}},
		ExpectedTotal: &stale,
	})
	require.ErrorIs(t, err, ErrTotalsMismatch)
	require.Equal(t, 5, repo.products[1].TotalStock)

	exact := 100.0
	bill, err := svc.Create(ctx, CreateBillInput{
		Items:         []CreateBillItem{{ProductID: 1, Quantity: 1}},
		ExpectedTotal: &exact,
	})
	require.NoError(t, err)
	require.InDelta(t, 100.0, bill.Total, 0.001)
}

func TestCreateBillValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateBillInput{})
	require.ErrorIs(t, err, ErrEmptyBill)

	_, err = svc.Create(ctx, CreateBillInput{Items: []CreateBillItem{{ProductID: 1, Quantity: 0}}})
	require.ErrorIs(t, err, ErrInvalidBillInput)

	_, err = svc.Create(ctx, CreateBillInput{Items: []CreateBillItem{{ProductID: 1, Quantity: 1}}, Discount: 120})
	require.ErrorIs(t, err, ErrInvalidBillInput)

	_, err = svc.Create(ctx, CreateBillInput{Items: []CreateBillItem{{ProductID: 1, Quantity: 1}}, Tax: -1})
	require.ErrorIs(t, err, ErrInvalidBillInput)
}

func TestBillNumbersAreSequential(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "BLT-001", Name: "Belt", Price: 100, TotalStock: 10})
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		bill, err := svc.Create(ctx, CreateBillInput{Items: []CreateBillItem{{ProductID: 1, Quantity: 1}}})
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("BILL-%06d", i), bill.BillNumber)
	}
	require.Equal(t, 7, repo.products[1].TotalStock)
}
