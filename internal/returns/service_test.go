package returns

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threadline-retail/threadline/internal/billing"
	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
)

type memoryRepo struct {
	mu         sync.Mutex
	bills      map[string]billing.Bill
	products   map[int64]catalog.Product
	returns    []Return
	movements  []ledger.Movement
	nextNumber int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		bills:    make(map[string]billing.Bill),
		products: make(map[int64]catalog.Product),
	}
}

// WithTx serializes callbacks the way the bill row lock does in Postgres.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) List(ctx context.Context, limit int) ([]Return, error) {
	out := make([]Return, len(r.returns))
	copy(out, r.returns)
	return out, nil
}

func (tx *memoryTx) GetBill(ctx context.Context, billNumber string) (billing.Bill, error) {
	bill, ok := tx.repo.bills[billNumber]
	if !ok {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	return bill, nil
}

func (tx *memoryTx) ReturnedQty(ctx context.Context, billNumber, itemID, size string) (int, error) {
	total := 0
	for _, ret := range tx.repo.returns {
		if ret.BillNumber != billNumber {
			continue
		}
		for _, item := range ret.Items {
			if item.ItemID == itemID && item.Size == size {
				total += item.ReturnQty
			}
		}
	}
	return total, nil
}

func (tx *memoryTx) NextReturnNumber(ctx context.Context) (string, error) {
	tx.repo.nextNumber++
	return fmt.Sprintf("RET-%06d", tx.repo.nextNumber), nil
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

func (tx *memoryTx) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	ret.ID = int64(len(tx.repo.returns) + 1)
	tx.repo.returns = append(tx.repo.returns, ret)
	return ret.ID, nil
}

func seedBill(r *memoryRepo, bill billing.Bill) billing.Bill {
	r.bills[bill.BillNumber] = bill
	return bill
}

func seedProduct(r *memoryRepo, p catalog.Product) catalog.Product {
	p.InStock = p.TotalStock > 0
	r.products[p.ID] = p
	return p
}

func TestPlainReturnRefund(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 3},
		},
	})
	svc := NewService(repo, nil, nil)

	summary, err := svc.Process(context.Background(), ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 2}},
		Reason:     "wrong size",
		Actor:      "priya",
	})
	require.NoError(t, err)
	require.Equal(t, "RET-000001", summary.ReturnNumber)
	require.InDelta(t, 1000.0, summary.RefundAmount, 0.001)
	require.Zero(t, summary.AdditionalPayment)

	// Plain returns never touch product stock or the ledger.
	require.Empty(t, repo.movements)
	require.Len(t, repo.returns, 1)
	require.Equal(t, TypeReturn, repo.returns[0].Type)
}

func TestReturnUsesBillTimePrice(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 1},
		},
	})
	// Product was repriced after the sale; the refund must not follow.
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "TSH-001", Name: "Tee", Price: 999, SizeStock: map[string]int{"M": 5}, TotalStock: 5})
	svc := NewService(repo, nil, nil)

	summary, err := svc.Process(context.Background(), ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 1}},
		Reason:     "defect",
	})
	require.NoError(t, err)
	require.InDelta(t, 500.0, summary.RefundAmount, 0.001)
}

func TestExchangeAdditionalPayment(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 1},
		},
	})
	seedProduct(repo, catalog.Product{ID: 2, ItemID: "JKT-001", Name: "Jacket", Price: 1000, SizeStock: map[string]int{"L": 2}, TotalStock: 2})
	svc := NewService(repo, nil, nil)

	summary, err := svc.Process(context.Background(), ProcessInput{
		BillNumber:    "BILL-000001",
		Type:          TypeExchange,
		Items:         []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 1}},
		ExchangeItems: []RequestedExchange{{ProductID: 2, Size: "L", Quantity: 1}},
		Reason:        "upgrade",
		Actor:         "priya",
	})
	require.NoError(t, err)
	require.Zero(t, summary.RefundAmount)
	require.InDelta(t, 500.0, summary.AdditionalPayment, 0.001)

	require.Equal(t, 1, repo.products[2].SizeStock["L"])
	require.Equal(t, 1, repo.products[2].TotalStock)
	require.Len(t, repo.movements, 1)
	require.Equal(t, ledger.TypeStockOut, repo.movements[0].Type)
	require.Equal(t, "exchange RET-000001", repo.movements[0].Reason)
}

func TestExchangeRefundsDifference(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "JKT-001", ProductName: "Jacket", Size: "L", Price: 1000, Quantity: 1},
		},
	})
	seedProduct(repo, catalog.Product{ID: 2, ItemID: "TSH-001", Name: "Tee", Price: 500, SizeStock: map[string]int{"M": 3}, TotalStock: 3})
	svc := NewService(repo, nil, nil)

	summary, err := svc.Process(context.Background(), ProcessInput{
		BillNumber:    "BILL-000001",
		Type:          TypeExchange,
		Items:         []RequestedItem{{ItemID: "JKT-001", Size: "L", ReturnQty: 1}},
		ExchangeItems: []RequestedExchange{{ProductID: 2, Size: "M", Quantity: 1}},
		Reason:        "downgrade",
	})
	require.NoError(t, err)
	require.InDelta(t, 500.0, summary.RefundAmount, 0.001)
	require.Zero(t, summary.AdditionalPayment)
}

func TestEvenExchange(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 1},
		},
	})
	seedProduct(repo, catalog.Product{ID: 1, ItemID: "TSH-001", Name: "Tee", Price: 500, SizeStock: map[string]int{"M": 0, "L": 2}, TotalStock: 2})
	svc := NewService(repo, nil, nil)

	summary, err := svc.Process(context.Background(), ProcessInput{
		BillNumber:    "BILL-000001",
		Type:          TypeExchange,
		Items:         []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 1}},
		ExchangeItems: []RequestedExchange{{ProductID: 1, Size: "L", Quantity: 1}},
		Reason:        "size swap",
	})
	require.NoError(t, err)
	require.Zero(t, summary.RefundAmount)
	require.Zero(t, summary.AdditionalPayment)
}

func TestOverReturnRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 2},
		},
	})
	svc := NewService(repo, nil, nil)

	_, err := svc.Process(context.Background(), ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 3}},
		Reason:     "too many",
	})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)
	require.Empty(t, repo.returns)
	require.Empty(t, repo.movements)
}

func TestCumulativeReturnsEnforced(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 3},
		},
	})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 2}},
		Reason:     "first batch",
	})
	require.NoError(t, err)

	// 2 of 3 already returned; only 1 remains returnable.
	_, err = svc.Process(ctx, ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 2}},
		Reason:     "second batch",
	})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)

	summary, err := svc.Process(ctx, ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 1}},
		Reason:     "last one",
	})
	require.NoError(t, err)
	require.InDelta(t, 500.0, summary.RefundAmount, 0.001)
}

func TestRepeatedLineEntriesCheckedCumulatively(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 3},
		},
	})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// Two entries of 2 against 3 sold must fail on the second entry even
	// though nothing has been committed yet.
	_, err := svc.Process(ctx, ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items: []RequestedItem{
			{ItemID: "TSH-001", Size: "M", ReturnQty: 2},
			{ItemID: "TSH-001", Size: "M", ReturnQty: 2},
		},
		Reason: "split",
	})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)
	require.Empty(t, repo.returns)

	// Splitting within the sold quantity is fine.
	summary, err := svc.Process(ctx, ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items: []RequestedItem{
			{ItemID: "TSH-001", Size: "M", ReturnQty: 2},
			{ItemID: "TSH-001", Size: "M", ReturnQty: 1},
		},
		Reason: "split",
	})
	require.NoError(t, err)
	require.InDelta(t, 1500.0, summary.RefundAmount, 0.001)
}

func TestConcurrentReturnsRespectSoldQuantity(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 3},
		},
	})
	svc := NewService(repo, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Process(context.Background(), ProcessInput{
				BillNumber: "BILL-000001",
				Type:       TypeReturn,
				Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 1}},
				Reason:     "race",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInvalidReturnQuantity)
		}
	}
	require.Equal(t, 3, succeeded)
	require.Len(t, repo.returns, 3)
}

func TestExchangeSizeOnSizelessProductRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 1},
		},
	})
	seedProduct(repo, catalog.Product{ID: 2, ItemID: "BAG-001", Name: "Tote", Price: 500, TotalStock: 5})
	svc := NewService(repo, nil, nil)

	_, err := svc.Process(context.Background(), ProcessInput{
		BillNumber:    "BILL-000001",
		Type:          TypeExchange,
		Items:         []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 1}},
		ExchangeItems: []RequestedExchange{{ProductID: 2, Size: "M", Quantity: 1}},
		Reason:        "swap",
	})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)
	require.Empty(t, repo.movements)
	require.Empty(t, repo.returns)
}

func TestExchangeSizeOutOfStock(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 1},
		},
	})
	seedProduct(repo, catalog.Product{ID: 2, ItemID: "JKT-001", Name: "Jacket", Price: 1000, SizeStock: map[string]int{"L": 0}, TotalStock: 0})
	svc := NewService(repo, nil, nil)

	_, err := svc.Process(context.Background(), ProcessInput{
		BillNumber:    "BILL-000001",
		Type:          TypeExchange,
		Items:         []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 1}},
		ExchangeItems: []RequestedExchange{{ProductID: 2, Size: "L", Quantity: 1}},
		Reason:        "swap",
	})
	require.ErrorIs(t, err, ErrSizeOutOfStock)
	require.Empty(t, repo.returns)
}

func TestExchangeRepeatedEntriesCheckedCumulatively(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 4},
		},
	})
	seedProduct(repo, catalog.Product{ID: 2, ItemID: "JKT-001", Name: "Jacket", Price: 500, SizeStock: map[string]int{"L": 3}, TotalStock: 3})
	svc := NewService(repo, nil, nil)

	// Two entries of 2 against 3 in stock must fail on the second entry.
	_, err := svc.Process(context.Background(), ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeExchange,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "M", ReturnQty: 4}},
		ExchangeItems: []RequestedExchange{
			{ProductID: 2, Size: "L", Quantity: 2},
			{ProductID: 2, Size: "L", Quantity: 2},
		},
		Reason: "bulk swap",
	})
	require.ErrorIs(t, err, ErrSizeOutOfStock)
}

func TestProcessValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, ProcessInput{Type: "refund", Reason: "x", Items: []RequestedItem{{ItemID: "A", ReturnQty: 1}}})
	require.ErrorIs(t, err, ErrInvalidReturnType)

	_, err = svc.Process(ctx, ProcessInput{Type: TypeReturn, Items: []RequestedItem{{ItemID: "A", ReturnQty: 1}}})
	require.ErrorIs(t, err, ErrMissingReason)

	_, err = svc.Process(ctx, ProcessInput{Type: TypeReturn, Reason: "x"})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)

	_, err = svc.Process(ctx, ProcessInput{Type: TypeExchange, Reason: "x", Items: []RequestedItem{{ItemID: "A", ReturnQty: 1}}})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)

	_, err = svc.Process(ctx, ProcessInput{
		Type:          TypeReturn,
		Reason:        "x",
		Items:         []RequestedItem{{ItemID: "A", ReturnQty: 1}},
		ExchangeItems: []RequestedExchange{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)

	_, err = svc.Process(ctx, ProcessInput{
		BillNumber: "BILL-404",
		Type:       TypeReturn,
		Reason:     "x",
		Items:      []RequestedItem{{ItemID: "A", ReturnQty: 1}},
	})
	require.ErrorIs(t, err, billing.ErrBillNotFound)
}

func TestReturnUnknownBillLine(t *testing.T) {
	repo := newMemoryRepo()
	seedBill(repo, billing.Bill{
		BillNumber: "BILL-000001",
		Items: []billing.BillItem{
			{ProductID: 1, ItemID: "TSH-001", ProductName: "Tee", Size: "M", Price: 500, Quantity: 1},
		},
	})
	svc := NewService(repo, nil, nil)

	// Same item, wrong size.
	_, err := svc.Process(context.Background(), ProcessInput{
		BillNumber: "BILL-000001",
		Type:       TypeReturn,
		Items:      []RequestedItem{{ItemID: "TSH-001", Size: "L", ReturnQty: 1}},
		Reason:     "wrong line",
	})
	require.ErrorIs(t, err, ErrInvalidReturnQuantity)
}
