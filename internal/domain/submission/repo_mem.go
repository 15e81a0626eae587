package submission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory backing store for sandbox mode and tests. Its
// Batches/Queue/Receipts/Stats views implement the submission repositories
// over one shared dataset. Transactions are serialized by a store-wide lock;
// there is no rollback, which is acceptable because nothing in-memory
// survives a crash anyway.
type MemStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	batches  map[uuid.UUID]*Batch
	items    map[uuid.UUID]*QueueItem
	receipts map[uuid.UUID]*Receipt // keyed by batch ID

	stats         Stats
	submitSeconds float64
	submissions   int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		batches:  make(map[uuid.UUID]*Batch),
		items:    make(map[uuid.UUID]*QueueItem),
		receipts: make(map[uuid.UUID]*Receipt),
	}
}

func (s *MemStore) Batches() BatchRepository    { return memBatchRepo{s} }
func (s *MemStore) Queue() QueueRepository      { return memQueueRepo{s} }
func (s *MemStore) Receipts() ReceiptRepository { return memReceiptRepo{s} }
func (s *MemStore) Stats() StatsRepository      { return memStatsRepo{s} }

func (s *MemStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

// PutBatch seeds a batch. Sandbox and test setup only.
func (s *MemStore) PutBatch(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = cloneBatch(b)
}

type memBatchRepo struct{ s *MemStore }

func (r memBatchRepo) Get(_ context.Context, id uuid.UUID) (*Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

func (r memBatchRepo) Update(_ context.Context, b *Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; !ok {
		return ErrBatchNotFound
	}
	r.s.batches[b.ID] = cloneBatch(b)
	return nil
}

func (r memBatchRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Batch, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []*Batch
	for _, b := range r.s.batches {
		if f.Month != "" && b.Month != f.Month {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]*Batch, 0, end-offset)
	for _, b := range matched[offset:end] {
		out = append(out, cloneBatch(b))
	}
	return out, total, nil
}

func (r memBatchRepo) ListByStatus(_ context.Context, status Status) ([]*Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Batch
	for _, b := range r.s.batches {
		if b.Status == status {
			out = append(out, cloneBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memQueueRepo struct{ s *MemStore }

func (r memQueueRepo) Create(_ context.Context, item *QueueItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.items[item.ID] = cloneItem(item)
	return nil
}

func (r memQueueRepo) Get(_ context.Context, id uuid.UUID) (*QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return nil, ErrQueueItemNotFound
	}
	return cloneItem(it), nil
}

func (r memQueueRepo) Due(_ context.Context, now time.Time, limit int) ([]*QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var due []*QueueItem
	for _, it := range r.s.items {
		if it.Status == QueuePending && !it.ScheduledAt.After(now) {
			due = append(due, it)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		pi, pj := priorityRank(due[i].Priority), priorityRank(due[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*QueueItem, 0, len(due))
	for _, it := range due {
		out = append(out, cloneItem(it))
	}
	return out, nil
}

func (r memQueueRepo) Claim(_ context.Context, itemID, batchID uuid.UUID, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	it, ok := r.s.items[itemID]
	if !ok || it.Status != QueuePending {
		return false, nil
	}
	for _, other := range r.s.items {
		if other.BatchID == batchID && other.Status == QueueProcessing {
			return false, nil
		}
	}
	it.Status = QueueProcessing
	started := now
	it.StartedAt = &started
	it.UpdatedAt = now
	return true, nil
}

func (r memQueueRepo) Update(_ context.Context, item *QueueItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[item.ID]; !ok {
		return ErrQueueItemNotFound
	}
	r.s.items[item.ID] = cloneItem(item)
	return nil
}

func (r memQueueRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.items, id)
	return nil
}

func (r memQueueRepo) PendingForBatch(_ context.Context, batchID uuid.UUID) (*QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.items {
		if it.BatchID == batchID && it.Status == QueuePending {
			return cloneItem(it), nil
		}
	}
	return nil, nil
}

func (r memQueueRepo) ReclaimStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, it := range r.s.items {
		if it.Status == QueueProcessing && it.StartedAt != nil && it.StartedAt.Before(cutoff) {
			it.Status = QueuePending
			it.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (r memQueueRepo) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, it := range r.s.items {
		finished := it.Status == QueueCompleted || it.Status == QueueFailed
		if finished && it.UpdatedAt.Before(cutoff) {
			delete(r.s.items, id)
			n++
		}
	}
	return n, nil
}

type memReceiptRepo struct{ s *MemStore }

func (r memReceiptRepo) Create(_ context.Context, rc *Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *rc
	r.s.receipts[rc.BatchID] = &cp
	return nil
}

func (r memReceiptRepo) GetByBatch(_ context.Context, batchID uuid.UUID) (*Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc, ok := r.s.receipts[batchID]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	cp := *rc
	return &cp, nil
}

type memStatsRepo struct{ s *MemStore }

func (r memStatsRepo) Get(_ context.Context) (*Stats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.stats
	if r.s.submissions > 0 {
		st.AvgSubmitSeconds = r.s.submitSeconds / float64(r.s.submissions)
	}
	return &st, nil
}

func (r memStatsRepo) Apply(_ context.Context, d StatsDelta) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stats.TotalBatches += d.TotalBatches
	r.s.stats.Pending += d.Pending
	r.s.stats.Successful += d.Successful
	r.s.stats.Failed += d.Failed
	r.s.stats.Retrying += d.Retrying
	r.s.submitSeconds += d.SubmitSeconds
	r.s.submissions += d.Submissions
	return nil
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

func cloneBatch(b *Batch) *Batch {
	cp := *b
	cp.ReportIDs = append([]uuid.UUID(nil), b.ReportIDs...)
	cp.Log = append([]LogEntry(nil), b.Log...)
	if b.NextRetryAt != nil {
		t := *b.NextRetryAt
		cp.NextRetryAt = &t
	}
	if b.GovernmentReference != nil {
		v := *b.GovernmentReference
		cp.GovernmentReference = &v
	}
	if b.ConfirmationID != nil {
		v := *b.ConfirmationID
		cp.ConfirmationID = &v
	}
	return &cp
}

func cloneItem(it *QueueItem) *QueueItem {
	cp := *it
	if it.LastError != nil {
		v := *it.LastError
		cp.LastError = &v
	}
	if it.StartedAt != nil {
		t := *it.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}
