package usecases_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/core/usecases"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrchestratorConfig(mode domain.AlgorithmMode) usecases.OrchestratorConfig {
	return usecases.OrchestratorConfig{
		Mode:         mode,
		MaxAttempts:  3,
		MaxInFlight:  4,
		PollInitial:  time.Millisecond,
		PollMax:      2 * time.Millisecond,
		Queue:        "graph-builds",
		ArtifactBase: "s3://graphs",
	}
}

func newTestOrchestrator(t *testing.T, cfg usecases.OrchestratorConfig, batch *mockBatch) (*usecases.OrchestratorService, *usecases.RegistryService, *mockBuildRepo, *mockPublisher) {
	t.Helper()
	reg, err := usecases.NewRegistryService(testCatalog())
	if err != nil {
		t.Fatalf("NewRegistryService: %v", err)
	}
	repo := newMockBuildRepo()
	pub := &mockPublisher{}
	svc, err := usecases.NewOrchestratorService(cfg, batch, reg, repo, pub, testLogger())
	if err != nil {
		t.Fatalf("NewOrchestratorService: %v", err)
	}
	return svc, reg, repo, pub
}

func TestBuildShardCHOrdering(t *testing.T) {
	batch := &mockBatch{
		describeFunc: func(ctx context.Context, remoteID string) (domain.JobStatus, error) {
			return domain.JobStatus{State: domain.JobSucceeded}, nil
		},
	}
	svc, reg, repo, pub := newTestOrchestrator(t, testOrchestratorConfig(domain.ModeCH), batch)

	run, err := svc.BuildShard(context.Background(), "na-east")
	if err != nil {
		t.Fatalf("BuildShard: %v", err)
	}
	if run.State != domain.PipelineSucceeded {
		t.Errorf("run state = %s, want SUCCEEDED", run.State)
	}

	submits := batch.submitted()
	if len(submits) != 2 {
		t.Fatalf("submitted %d jobs, want 2: %+v", len(submits), submits)
	}
	if submits[0].Kind != domain.JobExtract || submits[1].Kind != domain.JobContract {
		t.Errorf("submission order = [%s %s], want [EXTRACT CONTRACT]", submits[0].Kind, submits[1].Kind)
	}
	// CONTRACT consumes EXTRACT's output.
	if submits[1].Input != submits[0].Output {
		t.Errorf("CONTRACT input %q does not chain from EXTRACT output %q", submits[1].Input, submits[0].Output)
	}

	shard, err := reg.Get("na-east")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if shard.Readiness != domain.ReadinessReady {
		t.Errorf("readiness = %s, want READY", shard.Readiness)
	}
	if !strings.Contains(shard.Artifact, run.ID) {
		t.Errorf("artifact %q not swapped to run %s", shard.Artifact, run.ID)
	}

	events := pub.readinessEvents()
	if len(events) != 1 || events[0].ShardID != "na-east" || events[0].State != domain.ReadinessReady {
		t.Errorf("readiness events = %+v, want one READY event for na-east", events)
	}

	// Every job passed through SUBMITTED before reaching a terminal state.
	seen := map[string][]domain.JobState{}
	for _, tr := range repo.recordedTransitions() {
		seen[tr.JobID] = append(seen[tr.JobID], tr.To)
	}
	for _, jobID := range []string{"na-east:EXTRACT", "na-east:CONTRACT"} {
		states := seen[jobID]
		if len(states) < 2 || states[0] != domain.JobSubmitted || states[len(states)-1] != domain.JobSucceeded {
			t.Errorf("transitions for %s = %v, want SUBMITTED .. SUCCEEDED", jobID, states)
		}
	}
}

func TestBuildShardMLDOrdering(t *testing.T) {
	batch := &mockBatch{
		describeFunc: func(ctx context.Context, remoteID string) (domain.JobStatus, error) {
			return domain.JobStatus{State: domain.JobSucceeded}, nil
		},
	}
	svc, _, _, _ := newTestOrchestrator(t, testOrchestratorConfig(domain.ModeMLD), batch)

	run, err := svc.BuildShard(context.Background(), "na-central")
	if err != nil {
		t.Fatalf("BuildShard: %v", err)
	}
	if run.State != domain.PipelineSucceeded {
		t.Errorf("run state = %s, want SUCCEEDED", run.State)
	}

	submits := batch.submitted()
	want := []domain.JobKind{domain.JobExtract, domain.JobPartition, domain.JobCustomize}
	if len(submits) != len(want) {
		t.Fatalf("submitted %d jobs, want %d", len(submits), len(want))
	}
	for i, kind := range want {
		if submits[i].Kind != kind {
			t.Errorf("submission %d = %s, want %s", i, submits[i].Kind, kind)
		}
	}
}

func TestBuildShardRetriesExecutionFailure(t *testing.T) {
	// The first CONTRACT execution fails; the retry succeeds.
	batch := &mockBatch{}
	batch.submitFunc = func(ctx context.Context, spec domain.JobSpec) (string, error) {
		n := 0
		for _, s := range batch.submitted() {
			if s.Kind == spec.Kind {
				n++
			}
		}
		return string(spec.Kind) + "-" + string(rune('0'+n)), nil
	}
	batch.describeFunc = func(ctx context.Context, remoteID string) (domain.JobStatus, error) {
		if remoteID == "CONTRACT-1" {
			return domain.JobStatus{State: domain.JobFailed, Reason: "spot instance reclaimed"}, nil
		}
		return domain.JobStatus{State: domain.JobSucceeded}, nil
	}
	svc, _, _, _ := newTestOrchestrator(t, testOrchestratorConfig(domain.ModeCH), batch)

	run, err := svc.BuildShard(context.Background(), "na-east")
	if err != nil {
		t.Fatalf("BuildShard: %v", err)
	}
	if run.State != domain.PipelineSucceeded {
		t.Errorf("run state = %s, want SUCCEEDED after retry", run.State)
	}

	contracts := 0
	for _, s := range batch.submitted() {
		if s.Kind == domain.JobContract {
			contracts++
		}
	}
	if contracts != 2 {
		t.Errorf("CONTRACT submitted %d times, want 2", contracts)
	}
}

func TestBuildShardFailsAfterMaxAttempts(t *testing.T) {
	batch := &mockBatch{
		describeFunc: func(ctx context.Context, remoteID string) (domain.JobStatus, error) {
			if strings.HasPrefix(remoteID, "remote-CONTRACT") {
				return domain.JobStatus{State: domain.JobFailed, Reason: "out of memory"}, nil
			}
			return domain.JobStatus{State: domain.JobSucceeded}, nil
		},
	}
	cfg := testOrchestratorConfig(domain.ModeCH)
	cfg.MaxAttempts = 2
	svc, reg, _, pub := newTestOrchestrator(t, cfg, batch)

	run, err := svc.BuildShard(context.Background(), "na-east")
	var permanent *domain.JobFailedPermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected JobFailedPermanentError, got %v", err)
	}
	if permanent.Attempts != 2 || permanent.Kind != domain.JobContract {
		t.Errorf("failure = %+v, want 2 CONTRACT attempts", permanent)
	}
	if run.State != domain.PipelineFailed {
		t.Errorf("run state = %s, want FAILED", run.State)
	}
	if run.FailedJob != "na-east:CONTRACT" {
		t.Errorf("failed job = %s, want na-east:CONTRACT", run.FailedJob)
	}

	// A failed rebuild must not disturb the serving graph.
	shard, _ := reg.Get("na-east")
	if shard.Readiness != domain.ReadinessReady || shard.Artifact != "s3://graphs/na-east/initial" {
		t.Errorf("shard disturbed by failed build: %+v", shard)
	}
	if len(pub.readinessEvents()) != 0 {
		t.Errorf("readiness events published for failed build: %+v", pub.readinessEvents())
	}
}

func TestBuildShardSubmissionRejectionHaltsPipeline(t *testing.T) {
	batch := &mockBatch{
		submitFunc: func(ctx context.Context, spec domain.JobSpec) (string, error) {
			return "", &domain.JobSubmissionError{
				ShardID: spec.ShardID,
				Kind:    spec.Kind,
				Err:     errors.New("queue graph-builds does not exist"),
			}
		},
		describeFunc: func(ctx context.Context, remoteID string) (domain.JobStatus, error) {
			return domain.JobStatus{State: domain.JobSucceeded}, nil
		},
	}
	svc, _, _, _ := newTestOrchestrator(t, testOrchestratorConfig(domain.ModeCH), batch)

	run, err := svc.BuildShard(context.Background(), "na-east")
	var rejection *domain.JobSubmissionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected JobSubmissionError, got %v", err)
	}
	if run.State != domain.PipelineFailed {
		t.Errorf("run state = %s, want FAILED", run.State)
	}
	// Rejections are never retried and dependent stages are never reached.
	if n := len(batch.submitted()); n != 1 {
		t.Errorf("submit called %d times, want 1", n)
	}
}

func TestBuildShardUnknownShard(t *testing.T) {
	svc, _, _, _ := newTestOrchestrator(t, testOrchestratorConfig(domain.ModeCH), &mockBatch{
		describeFunc: func(ctx context.Context, remoteID string) (domain.JobStatus, error) {
			return domain.JobStatus{State: domain.JobSucceeded}, nil
		},
	})
	if _, err := svc.BuildShard(context.Background(), "atlantis"); err == nil {
		t.Fatal("expected error for unknown shard")
	}
}
