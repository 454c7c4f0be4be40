package ports

import (
	"context"

	"geolift/domain/core"
	"geolift/domain/experiment"
)

// RunStore persists finished runs and batch summaries. The pipeline works
// without one; persistence is an optional collaborator.
type RunStore interface {
	SaveRun(ctx context.Context, run *experiment.RunRecord) error
	GetRun(ctx context.Context, id core.RunID) (*experiment.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]experiment.RunSummary, error)

	SaveBatch(ctx context.Context, summary *experiment.BatchSummary) error
	GetBatch(ctx context.Context, id core.BatchID) (*experiment.BatchSummary, error)
}

// RunFilter narrows ListRuns. Zero values mean no constraint.
type RunFilter struct {
	TestMarket     string
	Template       string
	BatchID        core.BatchID
	Recommendation experiment.Recommendation
	Limit          int
	Offset         int
}
