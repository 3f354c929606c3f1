package ports

import (
	"context"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

// BuildRepository persists pipeline runs and their job state transitions for
// monitoring. The orchestrator treats it as write-mostly; the gateway reads it
// for the build-history endpoints.
type BuildRepository interface {
	CreateRun(ctx context.Context, run *domain.BuildRun) error
	FinishRun(ctx context.Context, runID string, state domain.PipelineState, failedJob, errMsg string) error
	RecordJobTransition(ctx context.Context, runID string, tr *domain.JobTransition) error
	GetRun(ctx context.Context, runID string) (*domain.BuildRun, error)
	ListRuns(ctx context.Context, shardID string, limit int) ([]domain.BuildRun, error)
}
