package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository stores settlement events awaiting relay.
type Repository interface {
	// Insert writes an entry, normally in the same transaction as the ledger change
	Insert(ctx context.Context, entry *Entry) error

	// ClaimPending locks up to limit pending entries for the calling transaction
	ClaimPending(ctx context.Context, limit int) ([]*Entry, error)

	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed counts a failed relay attempt; the entry is parked as failed
	// once it runs out of retries
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// PurgePublished deletes entries published before the cutoff
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}
