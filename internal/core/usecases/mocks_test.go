package usecases_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

type mockEngine struct {
	mu    sync.Mutex
	calls []engineCall

	routeFunc func(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error)
}

type engineCall struct {
	endpoint string
	req      domain.RouteRequest
}

func (m *mockEngine) Route(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, engineCall{endpoint: endpoint, req: req})
	m.mu.Unlock()
	return m.routeFunc(ctx, endpoint, req)
}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockBatch struct {
	mu      sync.Mutex
	submits []domain.JobSpec

	submitFunc   func(ctx context.Context, spec domain.JobSpec) (string, error)
	describeFunc func(ctx context.Context, remoteID string) (domain.JobStatus, error)
	cancelFunc   func(ctx context.Context, remoteID string) error
}

func (m *mockBatch) Submit(ctx context.Context, spec domain.JobSpec) (string, error) {
	m.mu.Lock()
	m.submits = append(m.submits, spec)
	m.mu.Unlock()
	if m.submitFunc != nil {
		return m.submitFunc(ctx, spec)
	}
	return "remote-" + string(spec.Kind), nil
}

func (m *mockBatch) Describe(ctx context.Context, remoteID string) (domain.JobStatus, error) {
	return m.describeFunc(ctx, remoteID)
}

func (m *mockBatch) Cancel(ctx context.Context, remoteID string) error {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, remoteID)
	}
	return nil
}

func (m *mockBatch) submitted() []domain.JobSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.JobSpec, len(m.submits))
	copy(out, m.submits)
	return out
}

type mockPublisher struct {
	mu          sync.Mutex
	transitions []domain.JobTransition
	readiness   []domain.ReadinessEvent
}

func (m *mockPublisher) PublishJobTransition(ctx context.Context, tr *domain.JobTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, *tr)
	return nil
}

func (m *mockPublisher) PublishShardReadiness(ctx context.Context, ev *domain.ReadinessEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readiness = append(m.readiness, *ev)
	return nil
}

func (m *mockPublisher) PublishBroadcast(ctx context.Context, data []byte) error { return nil }

func (m *mockPublisher) readinessEvents() []domain.ReadinessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ReadinessEvent, len(m.readiness))
	copy(out, m.readiness)
	return out
}

type mockBuildRepo struct {
	mu          sync.Mutex
	runs        map[string]*domain.BuildRun
	transitions []domain.JobTransition
}

func newMockBuildRepo() *mockBuildRepo {
	return &mockBuildRepo{runs: make(map[string]*domain.BuildRun)}
}

func (m *mockBuildRepo) CreateRun(ctx context.Context, run *domain.BuildRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockBuildRepo) FinishRun(ctx context.Context, runID string, state domain.PipelineState, failedJob, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("unknown run %s", runID)
	}
	run.State = state
	run.FailedJob = failedJob
	run.Err = errMsg
	return nil
}

func (m *mockBuildRepo) RecordJobTransition(ctx context.Context, runID string, tr *domain.JobTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, *tr)
	return nil
}

func (m *mockBuildRepo) GetRun(ctx context.Context, runID string) (*domain.BuildRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("unknown run %s", runID)
	}
	cp := *run
	return &cp, nil
}

func (m *mockBuildRepo) ListRuns(ctx context.Context, shardID string, limit int) ([]domain.BuildRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BuildRun
	for _, run := range m.runs {
		if shardID == "" || run.ShardID == shardID {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (m *mockBuildRepo) recordedTransitions() []domain.JobTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.JobTransition, len(m.transitions))
	copy(out, m.transitions)
	return out
}

type mockCache struct {
	mu    sync.Mutex
	store map[string][]byte
	gets  int
	sets  int
}

func newMockCache() *mockCache {
	return &mockCache{store: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.store[key]
	if !ok {
		return nil, fmt.Errorf("cache miss")
	}
	return data, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.store[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}
