package returns

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadline-retail/threadline/internal/billing"
	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/platform/db"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Repository persists returns in PostgreSQL.
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
		return errors.New("returns repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

// List returns recent return records with their items, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Return, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, return_number, bill_number, return_type, refund_amount, additional_payment, reason, customer_name, customer_phone, created_by, created_at
FROM returns ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("returns: list: %w", err)
	}
	defer rows.Close()

	result := []Return{}
	for rows.Next() {
		var ret Return
		var typ string
		if err := rows.Scan(&ret.ID, &ret.ReturnNumber, &ret.BillNumber, &typ, &ret.RefundAmount, &ret.AdditionalPayment,
			&ret.Reason, &ret.CustomerName, &ret.CustomerPhone, &ret.CreatedBy, &ret.CreatedAt); err != nil {
			return nil, fmt.Errorf("returns: scan: %w", err)
		}
		ret.Type = ReturnType(typ)
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := r.loadItems(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *Repository) loadItems(ctx context.Context, ret *Return) error {
	rows, err := r.pool.Query(ctx, `SELECT product_id, item_id, product_name, size, price, return_qty, exchange
FROM return_items WHERE return_id=$1 ORDER BY id ASC`, ret.ID)
	if err != nil {
		return fmt.Errorf("returns: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID   int64
			itemID      string
			productName string
			size        string
			price       float64
			qty         int
			exchange    bool
		)
		if err := rows.Scan(&productID, &itemID, &productName, &size, &price, &qty, &exchange); err != nil {
			return fmt.Errorf("returns: scan item: %w", err)
		}
		if exchange {
			ret.ExchangeItems = append(ret.ExchangeItems, ExchangeItem{
				ProductID: productID, ItemID: itemID, ProductName: productName, Size: size, Price: price, Quantity: qty,
			})
		} else {
			ret.Items = append(ret.Items, ReturnItem{
				ProductID: productID, ItemID: itemID, ProductName: productName, Size: size, Price: price, ReturnQty: qty,
			})
		}
	}
	return rows.Err()
}

// GetBill locks the bills row so concurrent returns against the same bill
// serialize; without the lock two snapshots could both read the same prior
// returned quantities and together over-return the line.
func (r *txRepository) GetBill(ctx context.Context, billNumber string) (billing.Bill, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, bill_number, subtotal, discount, discount_amount, tax, total, customer_name, customer_phone, payment_method, created_by, created_at
FROM bills WHERE bill_number=$1 FOR UPDATE`, billNumber)
	var bill billing.Bill
	err := row.Scan(&bill.ID, &bill.BillNumber, &bill.Subtotal, &bill.Discount, &bill.DiscountAmount, &bill.Tax, &bill.Total,
		&bill.CustomerName, &bill.CustomerPhone, &bill.PaymentMethod, &bill.CreatedBy, &bill.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return billing.Bill{}, fmt.Errorf("%w: %q", billing.ErrBillNotFound, billNumber)
		}
		return billing.Bill{}, fmt.Errorf("returns: get bill: %w", err)
	}
	itemRows, err := r.tx.Query(ctx, `SELECT product_id, item_id, product_name, size, price, quantity
FROM bill_items WHERE bill_id=$1 ORDER BY id ASC`, bill.ID)
	if err != nil {
		return billing.Bill{}, fmt.Errorf("returns: load bill items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item billing.BillItem
		if err := itemRows.Scan(&item.ProductID, &item.ItemID, &item.ProductName, &item.Size, &item.Price, &item.Quantity); err != nil {
			return billing.Bill{}, fmt.Errorf("returns: scan bill item: %w", err)
		}
		bill.Items = append(bill.Items, item)
	}
	return bill, itemRows.Err()
}

func (r *txRepository) ReturnedQty(ctx context.Context, billNumber, itemID, size string) (int, error) {
	var total int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(ri.return_qty), 0)
FROM return_items ri
JOIN returns rt ON rt.id = ri.return_id
WHERE rt.bill_number=$1 AND ri.item_id=$2 AND ri.size=$3 AND NOT ri.exchange`,
		billNumber, itemID, size).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("returns: sum returned qty: %w", err)
	}
	return total, nil
}

func (r *txRepository) NextReturnNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('return_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("returns: next return number: %w", err)
	}
	return fmt.Sprintf("RET-%06d", n), nil
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

func (r *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO returns (return_number, bill_number, return_type, refund_amount, additional_payment, reason, customer_name, customer_phone, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		ret.ReturnNumber, ret.BillNumber, string(ret.Type), ret.RefundAmount, ret.AdditionalPayment,
		ret.Reason, ret.CustomerName, ret.CustomerPhone, ret.CreatedBy, ret.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("returns: insert return: %w", err)
	}
	for _, item := range ret.Items {
		_, err := r.tx.Exec(ctx, `INSERT INTO return_items (return_id, product_id, item_id, product_name, size, price, return_qty, exchange)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)`,
			id, item.ProductID, item.ItemID, item.ProductName, item.Size, item.Price, item.ReturnQty)
		if err != nil {
			return 0, fmt.Errorf("returns: insert return item: %w", err)
		}
	}
	for _, item := range ret.ExchangeItems {
		_, err := r.tx.Exec(ctx, `INSERT INTO return_items (return_id, product_id, item_id, product_name, size, price, return_qty, exchange)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)`,
			id, item.ProductID, item.ItemID, item.ProductName, item.Size, item.Price, item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("returns: insert exchange item: %w", err)
		}
	}
	return id, nil
}
