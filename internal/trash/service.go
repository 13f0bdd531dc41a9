package trash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]TrashEntry, error)
}

// TxRepository exposes transactional operations used by service. Soft
// delete snapshots then removes the product; restore re-inserts it and
// consumes the entry. Each pair runs in one transaction.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (catalog.Product, error)
	DeleteProduct(ctx context.Context, productID int64) error
	InsertEntry(ctx context.Context, entry TrashEntry) error
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (TrashEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	InsertProductSnapshot(ctx context.Context, p catalog.Product) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the soft-delete lifecycle. The active collection holds
// only live products; trashed ones exist solely as snapshots here.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	clock func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, clock: func() time.Time { return time.Now().UTC() }}
}

// SoftDelete snapshots the product into the trash and removes it from the
// active collection. Movements and bills keep their denormalized copies,
// so history stays intact.
func (s *Service) SoftDelete(ctx context.Context, productID int64, actor, reason string) (TrashEntry, error) {
	var entry TrashEntry
	run := func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		snapshot, err := json.Marshal(product)
		if err != nil {
			return fmt.Errorf("trash: snapshot product %d: %w", productID, err)
		}
		entry = TrashEntry{
			ID:             uuid.New(),
			OriginalID:     product.ID,
			TableName:      "products",
			OriginalData:   snapshot,
			DeletedAt:      s.clock(),
			DeletedBy:      actor,
			DeletionReason: reason,
			CanRestore:     true,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		return tx.DeleteProduct(ctx, product.ID)
	}
	err := s.repo.WithTx(ctx, run)
	if errors.Is(err, shared.ErrConflict) {
		err = s.repo.WithTx(ctx, run)
	}
	if err != nil {
		return TrashEntry{}, err
	}
	s.record(ctx, actor, "trash:soft_delete", entry)
	return entry, nil
}

// Restore re-materializes the product exactly as it was at deletion time
// and consumes the trash entry. No ledger movement is emitted; this is a
// catalog-visibility operation, not a stock operation.
func (s *Service) Restore(ctx context.Context, trashID uuid.UUID, actor string) (catalog.Product, error) {
	var product catalog.Product
	run := func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, trashID)
		if err != nil {
			return err
		}
		if !entry.CanRestore {
			return fmt.Errorf("%w: %s", ErrNotRestorable, trashID)
		}
		if err := json.Unmarshal(entry.OriginalData, &product); err != nil {
			return fmt.Errorf("trash: decode snapshot %s: %w", trashID, err)
		}
		if err := tx.InsertProductSnapshot(ctx, product); err != nil {
			return err
		}
		return tx.DeleteEntry(ctx, trashID)
	}
	err := s.repo.WithTx(ctx, run)
	if errors.Is(err, shared.ErrConflict) {
		err = s.repo.WithTx(ctx, run)
	}
	if err != nil {
		return catalog.Product{}, err
	}
	s.record(ctx, actor, "trash:restore", TrashEntry{ID: trashID, OriginalID: product.ID})
	return product, nil
}

// List returns every trash entry, newest first. Nothing purges entries
// automatically; they stay until restored.
func (s *Service) List(ctx context.Context) ([]TrashEntry, error) {
	return s.repo.List(ctx)
}

func (s *Service) record(ctx context.Context, actor, action string, entry TrashEntry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", entry.OriginalID),
		Meta:     map[string]any{"trash_id": entry.ID.String()},
	})
}
