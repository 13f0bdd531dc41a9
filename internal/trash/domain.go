package trash

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TrashEntry is the sole recoverable copy of a soft-deleted product. The
// snapshot holds the full product state at deletion time; restore
// re-materializes exactly that state, never a live value.
type TrashEntry struct {
	ID             uuid.UUID       `json:"id"`
	OriginalID     int64           `json:"original_id"`
	TableName      string          `json:"table_name"`
	OriginalData   json.RawMessage `json:"original_data"`
	DeletedAt      time.Time       `json:"deleted_at"`
	DeletedBy      string          `json:"deleted_by"`
	DeletionReason string          `json:"deletion_reason,omitempty"`
	CanRestore     bool            `json:"can_restore"`
}

var (
	// ErrTrashEntryNotFound indicates no entry with the given id.
	ErrTrashEntryNotFound = errors.New("trash: entry not found")
	// ErrNotRestorable indicates the entry was flagged unrestorable.
	ErrNotRestorable = errors.New("trash: entry cannot be restored")
)
