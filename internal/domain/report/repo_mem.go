package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepo is a thread-safe, in-memory Repository used by tests and the
// no-database sandbox mode.
type InMemoryRepo struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]*FinalizedReport
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{reports: make(map[uuid.UUID]*FinalizedReport)}
}

// Put stores a report. Test/sandbox seeding only.
func (r *InMemoryRepo) Put(fr *FinalizedReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[fr.ID] = fr
}

func (r *InMemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*FinalizedReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fr, ok := r.reports[id]
	if !ok {
		return nil, fmt.Errorf("finalized report %s not found", id)
	}
	return fr, nil
}

func (r *InMemoryRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*FinalizedReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FinalizedReport, 0, len(ids))
	for _, id := range ids {
		fr, ok := r.reports[id]
		if !ok {
			return nil, fmt.Errorf("finalized report %s not found", id)
		}
		out = append(out, fr)
	}
	return out, nil
}
