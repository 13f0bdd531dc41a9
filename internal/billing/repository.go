package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/platform/db"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Repository persists bills in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("billing repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

// GetByNumber loads a bill and its items.
func (r *Repository) GetByNumber(ctx context.Context, billNumber string) (Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, bill_number, subtotal, discount, discount_amount, tax, total, customer_name, customer_phone, payment_method, created_by, created_at
FROM bills WHERE bill_number=$1`, billNumber)
	var bill Bill
	err := row.Scan(&bill.ID, &bill.BillNumber, &bill.Subtotal, &bill.Discount, &bill.DiscountAmount, &bill.Tax, &bill.Total,
		&bill.CustomerName, &bill.CustomerPhone, &bill.PaymentMethod, &bill.CreatedBy, &bill.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, fmt.Errorf("%w: %q", ErrBillNotFound, billNumber)
		}
		return Bill{}, fmt.Errorf("billing: get bill: %w", err)
	}
	items, err := r.loadItems(ctx, bill.ID)
	if err != nil {
		return Bill{}, err
	}
	bill.Items = items
	return bill, nil
}

// List returns recent bills with their items, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Bill, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, bill_number, subtotal, discount, discount_amount, tax, total, customer_name, customer_phone, payment_method, created_by, created_at
FROM bills ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("billing: list bills: %w", err)
	}
	defer rows.Close()

	bills := []Bill{}
	for rows.Next() {
		var bill Bill
		if err := rows.Scan(&bill.ID, &bill.BillNumber, &bill.Subtotal, &bill.Discount, &bill.DiscountAmount, &bill.Tax, &bill.Total,
			&bill.CustomerName, &bill.CustomerPhone, &bill.PaymentMethod, &bill.CreatedBy, &bill.CreatedAt); err != nil {
			return nil, fmt.Errorf("billing: scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range bills {
		items, err := r.loadItems(ctx, bills[i].ID)
		if err != nil {
			return nil, err
		}
		bills[i].Items = items
	}
	return bills, nil
}

func (r *Repository) loadItems(ctx context.Context, billID int64) ([]BillItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, item_id, product_name, size, price, quantity
FROM bill_items WHERE bill_id=$1 ORDER BY id ASC`, billID)
	if err != nil {
		return nil, fmt.Errorf("billing: load items: %w", err)
	}
	defer rows.Close()

	items := []BillItem{}
	for rows.Next() {
		var item BillItem
		if err := rows.Scan(&item.ProductID, &item.ItemID, &item.ProductName, &item.Size, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("billing: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) NextBillNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('bill_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("billing: next bill number: %w", err)
	}
	return fmt.Sprintf("BILL-%06d", n), nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (catalog.Product, error) {
	return catalog.GetForUpdate(ctx, r.tx, productID)
}

func (r *txRepository) UpdateProductStock(ctx context.Context, p catalog.Product) error {
	return catalog.UpdateStockTx(ctx, r.tx, p)
}

func (r *txRepository) AppendMovement(ctx context.Context, m ledger.Movement) error {
	return ledger.Append(ctx, r.tx, m)
}

func (r *txRepository) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO bills (bill_number, subtotal, discount, discount_amount, tax, total, customer_name, customer_phone, payment_method, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		bill.BillNumber, bill.Subtotal, bill.Discount, bill.DiscountAmount, bill.Tax, bill.Total,
		bill.CustomerName, bill.CustomerPhone, bill.PaymentMethod, bill.CreatedBy, bill.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: insert bill: %w", err)
	}
	for _, item := range bill.Items {
		_, err := r.tx.Exec(ctx, `INSERT INTO bill_items (bill_id, product_id, item_id, product_name, size, price, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, item.ProductID, item.ItemID, item.ProductName, item.Size, item.Price, item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("billing: insert bill item: %w", err)
		}
	}
	return id, nil
}
