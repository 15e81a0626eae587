package report

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*FinalizedReport, error)
	// GetByIDs returns the reports for the given IDs in the given order.
	// A missing ID is an error: a batch references only finalized reports.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*FinalizedReport, error)
}
