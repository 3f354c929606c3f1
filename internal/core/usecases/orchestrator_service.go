package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/core/ports"
	"github.com/meridianlabs/meridian/internal/pkg/metrics"
)

// OrchestratorConfig tunes pipeline execution.
type OrchestratorConfig struct {
	Mode        domain.AlgorithmMode
	MaxAttempts int
	// MaxInFlight caps concurrently submitted jobs across all pipelines.
	MaxInFlight  int
	PollInitial  time.Duration
	PollMax      time.Duration
	Queue        string
	ArtifactBase string
}

// OrchestratorService drives shard build pipelines against the remote batch
// backend: it submits jobs in dependency order, polls them to completion,
// retries transient failures, and promotes shard readiness when a pipeline
// finishes. Pipelines for different shards are independent; a global in-flight
// limit is the only coupling between them.
type OrchestratorService struct {
	cfg      OrchestratorConfig
	batch    ports.BatchClient
	registry *RegistryService
	repo     ports.BuildRepository
	events   ports.EventPublisher
	logger   *slog.Logger

	// slots bounds in-flight jobs across every concurrent BuildShard call.
	slots chan struct{}
}

// NewOrchestratorService creates a new OrchestratorService.
func NewOrchestratorService(cfg OrchestratorConfig, batch ports.BatchClient, registry *RegistryService, repo ports.BuildRepository, events ports.EventPublisher, logger *slog.Logger) (*OrchestratorService, error) {
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("orchestrator: max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.MaxInFlight < 1 {
		return nil, fmt.Errorf("orchestrator: max in-flight must be at least 1, got %d", cfg.MaxInFlight)
	}
	if cfg.PollInitial <= 0 {
		cfg.PollInitial = 2 * time.Second
	}
	if cfg.PollMax < cfg.PollInitial {
		cfg.PollMax = 30 * time.Second
	}
	return &OrchestratorService{
		cfg:      cfg,
		batch:    batch,
		registry: registry,
		repo:     repo,
		events:   events,
		logger:   logger,
		slots:    make(chan struct{}, cfg.MaxInFlight),
	}, nil
}

// BuildShard runs the full build pipeline for one shard and blocks until the
// pipeline reaches a terminal state. On success the shard's registry entry is
// promoted to READY with the new artifact; on failure the registry entry is
// left untouched so the previous graph keeps serving.
func (s *OrchestratorService) BuildShard(ctx context.Context, shardID string) (*domain.BuildRun, error) {
	shard, err := s.registry.Get(shardID)
	if err != nil {
		return nil, err
	}

	pipeline, err := domain.NewPipeline(shardID, s.cfg.Mode, s.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}

	run := &domain.BuildRun{
		ID:        uuid.New().String(),
		ShardID:   shardID,
		Mode:      s.cfg.Mode,
		State:     domain.PipelineRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create build run: %w", err)
	}
	s.logger.Info("build pipeline started",
		"run_id", run.ID, "shard_id", shardID, "mode", string(s.cfg.Mode))

	err = s.executePipeline(ctx, run, pipeline)

	run.State = pipeline.State()
	if err != nil && run.State != domain.PipelineFailed {
		run.State = domain.PipelineFailed
	}
	if failed := pipeline.FailedJob(); failed != nil {
		run.FailedJob = failed.ID
		run.Err = failed.Err
	} else if err != nil {
		run.Err = err.Error()
	}
	now := time.Now().UTC()
	run.FinishedAt = &now

	if ferr := s.repo.FinishRun(ctx, run.ID, run.State, run.FailedJob, run.Err); ferr != nil {
		s.logger.Error("failed to persist build run result", "run_id", run.ID, "error", ferr)
	}
	metrics.BuildRunsTotal.WithLabelValues(string(run.State)).Inc()

	if err != nil {
		s.logger.Error("build pipeline failed",
			"run_id", run.ID, "shard_id", shardID, "failed_job", run.FailedJob, "error", err)
		return run, err
	}

	artifact := s.artifactLocation(shardID, run.ID)
	if err := s.registry.SetReadiness(shardID, domain.ReadinessReady, artifact); err != nil {
		return run, fmt.Errorf("promote shard %s: %w", shardID, err)
	}
	ev := &domain.ReadinessEvent{
		ShardID:  shardID,
		State:    domain.ReadinessReady,
		Artifact: artifact,
		At:       time.Now().UTC(),
	}
	if perr := s.events.PublishShardReadiness(ctx, ev); perr != nil {
		s.logger.Error("failed to publish readiness event", "shard_id", shardID, "error", perr)
	}
	s.logger.Info("build pipeline succeeded",
		"run_id", run.ID, "shard_id", shard.ID, "artifact", artifact)
	return run, nil
}

// executePipeline schedules ready jobs until the pipeline is terminal. Jobs
// run in their own goroutines; the scheduler loop is the only writer of
// pipeline state, applying each job's outcome as it completes.
func (s *OrchestratorService) executePipeline(ctx context.Context, run *domain.BuildRun, pipeline *domain.Pipeline) error {
	type outcome struct {
		jobID string
		err   error
	}
	done := make(chan outcome)
	launched := make(map[string]bool, len(pipeline.Order))
	inFlight := 0
	var wg sync.WaitGroup
	var firstErr error

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		if firstErr == nil {
			for _, job := range pipeline.ReadyJobs() {
				if launched[job.ID] {
					continue
				}
				launched[job.ID] = true
				inFlight++
				wg.Add(1)
				go func(job *domain.Job) {
					defer wg.Done()
					done <- outcome{jobID: job.ID, err: s.runJob(jobCtx, run, job)}
				}(job)
			}
		}
		if inFlight == 0 {
			break
		}

		out := <-done
		inFlight--
		job := pipeline.Jobs[out.jobID]
		if out.err != nil {
			job.State = domain.JobFailed
			job.Err = out.err.Error()
			if firstErr == nil {
				firstErr = out.err
				// A failed stage starves its dependents; abandon
				// anything still in flight.
				cancel()
			}
			continue
		}
		job.State = domain.JobSucceeded
	}
	wg.Wait()
	return firstErr
}

// runJob drives one job through submit and poll, retrying execution failures
// up to the job's attempt budget. Spec rejections are configuration faults
// and are never retried.
func (s *OrchestratorService) runJob(ctx context.Context, run *domain.BuildRun, job *domain.Job) error {
	spec := s.specFor(run, job)
	if err := spec.Validate(); err != nil {
		return &domain.JobSubmissionError{ShardID: job.ShardID, Kind: job.Kind, Err: err}
	}

	var lastErr string
	for attempt := 1; attempt <= job.MaxAttempts; attempt++ {
		job.AttemptCount = attempt

		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		metrics.JobsInFlight.Inc()
		err := s.runAttempt(ctx, run, job, spec)
		metrics.JobsInFlight.Dec()
		<-s.slots

		if err == nil {
			return nil
		}
		var submission *domain.JobSubmissionError
		if errors.As(err, &submission) || ctx.Err() != nil {
			return err
		}
		lastErr = err.Error()
		s.logger.Warn("job attempt failed",
			"run_id", run.ID, "job_id", job.ID, "attempt", attempt,
			"max_attempts", job.MaxAttempts, "error", err)
	}
	return &domain.JobFailedPermanentError{
		ShardID:  job.ShardID,
		Kind:     job.Kind,
		Attempts: job.MaxAttempts,
		LastErr:  lastErr,
	}
}

// runAttempt performs a single submit-and-poll cycle for a job.
func (s *OrchestratorService) runAttempt(ctx context.Context, run *domain.BuildRun, job *domain.Job, spec domain.JobSpec) error {
	remoteID, err := s.batch.Submit(ctx, spec)
	if err != nil {
		var submission *domain.JobSubmissionError
		if errors.As(err, &submission) {
			return err
		}
		return fmt.Errorf("submit %s: %w", job.ID, err)
	}
	job.RemoteID = remoteID
	s.transition(ctx, run, job, domain.JobPending, domain.JobSubmitted, "")

	// Poll with exponential backoff. A handful of consecutive describe
	// failures is tolerated so a blip at the batch API does not burn an
	// execution attempt.
	interval := s.cfg.PollInitial
	describeFailures := 0
	sawRunning := false
	for {
		select {
		case <-ctx.Done():
			// Best effort: drop the remote job so it does not keep
			// consuming batch capacity after we stop watching it.
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.batch.Cancel(cancelCtx, remoteID)
			cancel()
			return ctx.Err()
		case <-time.After(interval):
		}

		status, err := s.batch.Describe(ctx, remoteID)
		if err != nil {
			describeFailures++
			if describeFailures > 3 {
				return fmt.Errorf("describe %s: %w", job.ID, err)
			}
			continue
		}
		describeFailures = 0

		switch status.State {
		case domain.JobRunning:
			if !sawRunning {
				sawRunning = true
				s.transition(ctx, run, job, domain.JobSubmitted, domain.JobRunning, "")
			}
		case domain.JobSucceeded:
			from := domain.JobSubmitted
			if sawRunning {
				from = domain.JobRunning
			}
			s.transition(ctx, run, job, from, domain.JobSucceeded, "")
			return nil
		case domain.JobFailed:
			from := domain.JobSubmitted
			if sawRunning {
				from = domain.JobRunning
			}
			s.transition(ctx, run, job, from, domain.JobFailed, status.Reason)
			return fmt.Errorf("%s execution failed: %s", job.ID, status.Reason)
		}

		interval *= 2
		if interval > s.cfg.PollMax {
			interval = s.cfg.PollMax
		}
	}
}

// transition records one job state change in the repository, on the event
// bus, and in the metrics, tolerating sink failures.
func (s *OrchestratorService) transition(ctx context.Context, run *domain.BuildRun, job *domain.Job, from, to domain.JobState, reason string) {
	tr := &domain.JobTransition{
		ShardID: job.ShardID,
		JobID:   job.ID,
		Kind:    job.Kind,
		From:    from,
		To:      to,
		Attempt: job.AttemptCount,
		Err:     reason,
		At:      time.Now().UTC(),
	}
	if err := s.repo.RecordJobTransition(ctx, run.ID, tr); err != nil {
		s.logger.Error("failed to record job transition",
			"run_id", run.ID, "job_id", job.ID, "to", string(to), "error", err)
	}
	if err := s.events.PublishJobTransition(ctx, tr); err != nil {
		s.logger.Error("failed to publish job transition",
			"run_id", run.ID, "job_id", job.ID, "to", string(to), "error", err)
	}
	metrics.JobTransitionsTotal.WithLabelValues(string(job.Kind), string(to)).Inc()
	s.logger.Info("job transition",
		"run_id", run.ID, "job_id", job.ID,
		"from", string(from), "to", string(to), "attempt", job.AttemptCount)
}

// specFor derives the batch job spec for one stage. Stage outputs chain:
// every stage after EXTRACT reads the previous stage's output.
func (s *OrchestratorService) specFor(run *domain.BuildRun, job *domain.Job) domain.JobSpec {
	base := fmt.Sprintf("%s/%s/%s", s.cfg.ArtifactBase, job.ShardID, run.ID)
	input := fmt.Sprintf("%s/%s.osm.pbf", s.cfg.ArtifactBase, job.ShardID)
	if len(job.DependsOn) > 0 {
		prev := job.DependsOn[len(job.DependsOn)-1]
		input = fmt.Sprintf("%s/%s.graph", base, prev)
	}
	return domain.JobSpec{
		Kind:    job.Kind,
		ShardID: job.ShardID,
		Input:   input,
		Output:  fmt.Sprintf("%s/%s.graph", base, job.ID),
		Queue:   s.cfg.Queue,
		Parameters: map[string]string{
			"mode": string(s.cfg.Mode),
		},
	}
}

func (s *OrchestratorService) artifactLocation(shardID, runID string) string {
	return fmt.Sprintf("%s/%s/%s", s.cfg.ArtifactBase, shardID, runID)
}
