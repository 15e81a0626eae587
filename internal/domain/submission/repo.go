package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TxRunner runs fn atomically. The Postgres implementation opens a database
// transaction and threads it through the context; the in-memory one holds a
// store-wide lock. Either way, all repository calls made inside fn commit or
// roll back together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BatchRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Batch, error)
	// Update persists status, retry fields, references and the audit log.
	// Report membership and month are immutable after creation.
	Update(ctx context.Context, b *Batch) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Batch, int, error)
	// ListByStatus returns every batch currently in the given status.
	ListByStatus(ctx context.Context, status Status) ([]*Batch, error)
}

type QueueRepository interface {
	Create(ctx context.Context, item *QueueItem) error
	Get(ctx context.Context, id uuid.UUID) (*QueueItem, error)
	// Due returns pending items whose scheduled time has passed, ordered by
	// priority (high first) then scheduled time.
	Due(ctx context.Context, now time.Time, limit int) ([]*QueueItem, error)
	// Claim atomically moves the item from pending to processing, provided no
	// other item for the same batch is processing. Returns false when the
	// item was already claimed, finished, or the batch is busy.
	Claim(ctx context.Context, itemID, batchID uuid.UUID, now time.Time) (bool, error)
	Update(ctx context.Context, item *QueueItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	// PendingForBatch returns the pending item for a batch, or nil.
	PendingForBatch(ctx context.Context, batchID uuid.UUID) (*QueueItem, error)
	// ReclaimStale releases processing items whose lock is older than cutoff
	// back to pending and returns how many were reclaimed.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteFinishedBefore removes completed and failed items older than
	// cutoff and returns how many were removed.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ReceiptRepository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByBatch(ctx context.Context, batchID uuid.UUID) (*Receipt, error)
}

type StatsRepository interface {
	Get(ctx context.Context) (*Stats, error)
	// Apply folds one transition's delta into the rolling aggregate.
	Apply(ctx context.Context, d StatsDelta) error
}
