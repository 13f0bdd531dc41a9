package trash

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/platform/db"
	"github.com/threadline-retail/threadline/internal/shared"
)

// Repository persists trash entries in PostgreSQL.
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
		return errors.New("trash repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

const entryColumns = `id, original_id, table_name, original_data, deleted_at, deleted_by, deletion_reason, can_restore`

// List returns all trash entries, newest first.
func (r *Repository) List(ctx context.Context) ([]TrashEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM trash_entries ORDER BY deleted_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("trash: list: %w", err)
	}
	defer rows.Close()

	entries := []TrashEntry{}
	for rows.Next() {
		var entry TrashEntry
		if err := rows.Scan(&entry.ID, &entry.OriginalID, &entry.TableName, &entry.OriginalData,
			&entry.DeletedAt, &entry.DeletedBy, &entry.DeletionReason, &entry.CanRestore); err != nil {
			return nil, fmt.Errorf("trash: scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (catalog.Product, error) {
	return catalog.GetForUpdate(ctx, r.tx, productID)
}

func (r *txRepository) DeleteProduct(ctx context.Context, productID int64) error {
	return catalog.DeleteByID(ctx, r.tx, productID)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry TrashEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO trash_entries (id, original_id, table_name, original_data, deleted_at, deleted_by, deletion_reason, can_restore)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.OriginalID, entry.TableName, entry.OriginalData,
		entry.DeletedAt, entry.DeletedBy, entry.DeletionReason, entry.CanRestore)
	if err != nil {
		return fmt.Errorf("trash: insert entry: %w", err)
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (TrashEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM trash_entries WHERE id=$1 FOR UPDATE`, id)
	var entry TrashEntry
	err := row.Scan(&entry.ID, &entry.OriginalID, &entry.TableName, &entry.OriginalData,
		&entry.DeletedAt, &entry.DeletedBy, &entry.DeletionReason, &entry.CanRestore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TrashEntry{}, fmt.Errorf("%w: %s", ErrTrashEntryNotFound, id)
		}
		return TrashEntry{}, fmt.Errorf("trash: get entry: %w", err)
	}
	return entry, nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM trash_entries WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("trash: delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTrashEntryNotFound, id)
	}
	return nil
}

func (r *txRepository) InsertProductSnapshot(ctx context.Context, p catalog.Product) error {
	return catalog.InsertSnapshot(ctx, r.tx, p)
}
