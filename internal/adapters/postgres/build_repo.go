package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

// BuildRepo implements ports.BuildRepository with pgx.
type BuildRepo struct {
	db *DB
}

// NewBuildRepo creates a new BuildRepo.
func NewBuildRepo(db *DB) *BuildRepo {
	return &BuildRepo{db: db}
}

// CreateRun inserts a new pipeline run record.
func (r *BuildRepo) CreateRun(ctx context.Context, run *domain.BuildRun) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO build_runs (id, shard_id, mode, state, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.ShardID, string(run.Mode), string(run.State), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert build run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal state.
func (r *BuildRepo) FinishRun(ctx context.Context, runID string, state domain.PipelineState, failedJob, errMsg string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE build_runs
		SET state = $2, failed_job = NULLIF($3, ''), error = NULLIF($4, ''), finished_at = now()
		WHERE id = $1
	`, runID, string(state), failedJob, errMsg)
	if err != nil {
		return fmt.Errorf("finish build run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish build run: unknown run %s", runID)
	}
	return nil
}

// RecordJobTransition appends one job state change to the run's event log.
func (r *BuildRepo) RecordJobTransition(ctx context.Context, runID string, tr *domain.JobTransition) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO build_job_events (run_id, shard_id, job_id, kind, from_state, to_state, attempt, error, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`, runID, tr.ShardID, tr.JobID, string(tr.Kind), string(tr.From), string(tr.To), tr.Attempt, tr.Err, tr.At)
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

// GetRun returns one pipeline run by id.
func (r *BuildRepo) GetRun(ctx context.Context, runID string) (*domain.BuildRun, error) {
	var run domain.BuildRun
	var mode, state string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, shard_id, mode, state, started_at, finished_at,
		       COALESCE(failed_job, ''), COALESCE(error, '')
		FROM build_runs WHERE id = $1
	`, runID).Scan(
		&run.ID, &run.ShardID, &mode, &state,
		&run.StartedAt, &run.FinishedAt, &run.FailedJob, &run.Err,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("build run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query build run: %w", err)
	}
	run.Mode = domain.AlgorithmMode(mode)
	run.State = domain.PipelineState(state)
	return &run, nil
}

// ListRuns returns recent runs, newest first, optionally filtered by shard.
func (r *BuildRepo) ListRuns(ctx context.Context, shardID string, limit int) ([]domain.BuildRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, shard_id, mode, state, started_at, finished_at,
		       COALESCE(failed_job, ''), COALESCE(error, '')
		FROM build_runs
		WHERE ($1 = '' OR shard_id = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`, shardID, limit)
	if err != nil {
		return nil, fmt.Errorf("query build runs: %w", err)
	}
	defer rows.Close()

	var out []domain.BuildRun
	for rows.Next() {
		var run domain.BuildRun
		var mode, state string
		if err := rows.Scan(
			&run.ID, &run.ShardID, &mode, &state,
			&run.StartedAt, &run.FinishedAt, &run.FailedJob, &run.Err,
		); err != nil {
			return nil, fmt.Errorf("scan build run: %w", err)
		}
		run.Mode = domain.AlgorithmMode(mode)
		run.State = domain.PipelineState(state)
		out = append(out, run)
	}
	return out, rows.Err()
}
