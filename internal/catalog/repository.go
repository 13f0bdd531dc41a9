package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/platform/db"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Repository persists products in PostgreSQL.
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
// Serialization failures surface as shared.ErrConflict so the service can
// retry once.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

const productColumns = `id, item_id, name, category, price, cost_price, size_stock, total_stock, in_stock, is_hidden, created_at, updated_at`

// GetByID loads one product outside a transaction.
func (r *Repository) GetByID(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row, id)
}

// List returns products, optionally filtered by category and visibility.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1 = '' OR category = $1) AND ($2 OR NOT is_hidden)
ORDER BY name ASC, id ASC
LIMIT $3`, filter.Category, filter.IncludeHidden, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ListActive returns every visible product; the low-stock evaluator reads
// through this.
func (r *Repository) ListActive(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE NOT is_hidden ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list active: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// GetForUpdate locks and loads a product. Exported at package level so the
// billing, returns and trash repositories can lock products inside their own
// transactions.
func GetForUpdate(ctx context.Context, q ledger.Querier, id int64) (Product, error) {
	row := q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id)
	return scanProduct(row, id)
}

// UpdateStockTx writes the stock columns of a locked product.
func UpdateStockTx(ctx context.Context, q ledger.Querier, p Product) error {
	sizeJSON, err := marshalSizeStock(p.SizeStock)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `UPDATE products SET size_stock=$2, total_stock=$3, in_stock=$4, updated_at=$5 WHERE id=$1`,
		p.ID, sizeJSON, p.TotalStock, p.InStock, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, p.ID)
	}
	return nil
}

// InsertSnapshot re-materializes a product under its original id, used by
// trash restore.
func InsertSnapshot(ctx context.Context, q ledger.Querier, p Product) error {
	sizeJSON, err := marshalSizeStock(p.SizeStock)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `INSERT INTO products (id, item_id, name, category, price, cost_price, size_stock, total_stock, in_stock, is_hidden, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.ItemID, p.Name, p.Category, p.Price, p.CostPrice, sizeJSON, p.TotalStock, p.InStock, p.IsHidden, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %q", ErrItemIDTaken, p.ItemID)
		}
		return fmt.Errorf("catalog: insert snapshot: %w", err)
	}
	return nil
}

// DeleteByID removes a product row, used by trash soft delete after the
// snapshot is stored.
func DeleteByID(ctx context.Context, q ledger.Querier, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Product, error) {
	return GetForUpdate(ctx, r.tx, id)
}

func (r *txRepository) Insert(ctx context.Context, p Product) (int64, error) {
	sizeJSON, err := marshalSizeStock(p.SizeStock)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.tx.QueryRow(ctx, `INSERT INTO products (item_id, name, category, price, cost_price, size_stock, total_stock, in_stock, is_hidden, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		p.ItemID, p.Name, p.Category, p.Price, p.CostPrice, sizeJSON, p.TotalStock, p.InStock, p.IsHidden, p.CreatedAt, p.UpdatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %q", ErrItemIDTaken, p.ItemID)
		}
		return 0, fmt.Errorf("catalog: insert product: %w", err)
	}
	return id, nil
}

func (r *txRepository) UpdateStock(ctx context.Context, p Product) error {
	return UpdateStockTx(ctx, r.tx, p)
}

func (r *txRepository) UpdateMeta(ctx context.Context, id int64, in UpdateFieldsInput, inStock *bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET
name = COALESCE($2, name),
category = COALESCE($3, category),
price = COALESCE($4, price),
cost_price = COALESCE($5, cost_price),
in_stock = COALESCE($6, in_stock),
updated_at = NOW()
WHERE id=$1`,
		id, in.Name, in.Category, in.Price, in.CostPrice, inStock)
	if err != nil {
		return fmt.Errorf("catalog: update meta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	return nil
}

func (r *txRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET is_hidden=$2, updated_at=NOW() WHERE id=$1`, id, hidden)
	if err != nil {
		return fmt.Errorf("catalog: set hidden: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	return nil
}

func (r *txRepository) AppendMovement(ctx context.Context, m ledger.Movement) error {
	return ledger.Append(ctx, r.tx, m)
}

func scanProduct(row pgx.Row, id int64) (Product, error) {
	var p Product
	var sizeJSON []byte
	err := row.Scan(&p.ID, &p.ItemID, &p.Name, &p.Category, &p.Price, &p.CostPrice, &sizeJSON, &p.TotalStock, &p.InStock, &p.IsHidden, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		return Product{}, fmt.Errorf("catalog: scan product: %w", err)
	}
	if err := unmarshalSizeStock(sizeJSON, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	products := []Product{}
	for rows.Next() {
		var p Product
		var sizeJSON []byte
		if err := rows.Scan(&p.ID, &p.ItemID, &p.Name, &p.Category, &p.Price, &p.CostPrice, &sizeJSON, &p.TotalStock, &p.InStock, &p.IsHidden, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		if err := unmarshalSizeStock(sizeJSON, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func marshalSizeStock(sizes map[string]int) ([]byte, error) {
	if sizes == nil {
		return nil, nil
	}
	data, err := json.Marshal(sizes)
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal size stock: %w", err)
	}
	return data, nil
}

func unmarshalSizeStock(data []byte, p *Product) error {
	if len(data) == 0 {
		p.SizeStock = nil
		return nil
	}
	if err := json.Unmarshal(data, &p.SizeStock); err != nil {
		return fmt.Errorf("catalog: unmarshal size stock: %w", err)
	}
	return nil
}
