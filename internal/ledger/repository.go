package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both pgxpool.Pool and pgx.Tx, so movements can be
// appended inside another module's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Append inserts one movement. There is no update or delete counterpart;
// the table is the audit trail.
func Append(ctx context.Context, q Querier, m Movement) error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMovementType, m.Type)
	}
	if !m.Consistent() {
		return fmt.Errorf("ledger: inconsistent snapshot for product %d: %d -> %d with delta %d", m.ProductID, m.PreviousStock, m.NewStock, m.Delta())
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `INSERT INTO stock_movements (product_id, product_name, movement_type, size, quantity, previous_stock, new_stock, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ProductID, m.ProductName, string(m.Type), m.Size, m.Quantity, m.PreviousStock, m.NewStock, m.Reason, m.CreatedBy, createdAt)
	if err != nil {
		return fmt.Errorf("ledger: append movement: %w", err)
	}
	return nil
}

// Repository reads the movement ledger from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `id, product_id, product_name, movement_type, size, quantity, previous_stock, new_stock, reason, created_by, created_at`

// ListRecent returns the latest movements across all products, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM stock_movements ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list recent: %w", err)
	}
	defer rows.Close()
	return scanMovements(rows)
}

// ListByProduct returns a single product's movements, newest first.
func (r *Repository) ListByProduct(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM stock_movements WHERE product_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list by product: %w", err)
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows pgx.Rows) ([]Movement, error) {
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var typ string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ProductName, &typ, &m.Size, &m.Quantity, &m.PreviousStock, &m.NewStock, &m.Reason, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(typ)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}
