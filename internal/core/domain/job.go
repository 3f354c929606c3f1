package domain

import (
	"fmt"
	"time"
)

// JobKind is one stage of a shard graph build.
type JobKind string

const (
	JobExtract   JobKind = "EXTRACT"
	JobPartition JobKind = "PARTITION"
	JobContract  JobKind = "CONTRACT"
	JobCustomize JobKind = "CUSTOMIZE"
)

// JobState is the lifecycle of a single build job.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobSubmitted JobState = "SUBMITTED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// AlgorithmMode selects the graph preprocessing strategy per deployment.
type AlgorithmMode string

const (
	// ModeCH builds with Contraction Hierarchies: EXTRACT then CONTRACT.
	ModeCH AlgorithmMode = "ch"
	// ModeMLD builds with Multi-Level Dijkstra: EXTRACT, PARTITION, CUSTOMIZE.
	ModeMLD AlgorithmMode = "mld"
)

// Job is one unit of work in a shard build pipeline.
type Job struct {
	ID           string   `json:"id"`
	Kind         JobKind  `json:"kind"`
	ShardID      string   `json:"shard_id"`
	State        JobState `json:"state"`
	DependsOn    []string `json:"depends_on,omitempty"`
	AttemptCount int      `json:"attempt_count"`
	MaxAttempts  int      `json:"max_attempts"`
	// RemoteID is the batch backend's identifier for the latest submission.
	RemoteID string `json:"remote_id,omitempty"`
	Err      string `json:"error,omitempty"`
}

// JobID builds the canonical job identifier for a shard and stage.
func JobID(shardID string, kind JobKind) string {
	return shardID + ":" + string(kind)
}

// JobSpec is the typed, validated description handed to the batch backend.
type JobSpec struct {
	Kind       JobKind           `json:"operation"`
	ShardID    string            `json:"shard"`
	Input      string            `json:"input"`
	Output     string            `json:"output"`
	Queue      string            `json:"queue,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Validate rejects malformed specs before they reach the queue, so bad
// submissions fail at the boundary instead of inside the backend.
func (s JobSpec) Validate() error {
	switch s.Kind {
	case JobExtract, JobPartition, JobContract, JobCustomize:
	default:
		return fmt.Errorf("job spec: unknown operation %q", s.Kind)
	}
	if s.ShardID == "" {
		return fmt.Errorf("job spec: shard is required")
	}
	if s.Input == "" {
		return fmt.Errorf("job spec: input location is required")
	}
	if s.Output == "" {
		return fmt.Errorf("job spec: output location is required")
	}
	return nil
}

// JobStatus is the batch backend's view of a submitted job.
type JobStatus struct {
	State  JobState `json:"state"`
	Reason string   `json:"reason,omitempty"`
}

// JobTransition records a single job state change for auditing and events.
type JobTransition struct {
	ShardID string    `json:"shard_id"`
	JobID   string    `json:"job_id"`
	Kind    JobKind   `json:"kind"`
	From    JobState  `json:"from"`
	To      JobState  `json:"to"`
	Attempt int       `json:"attempt"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// PipelineState is derived from the states of a pipeline's jobs.
type PipelineState string

const (
	PipelinePending   PipelineState = "PENDING"
	PipelineRunning   PipelineState = "RUNNING"
	PipelineSucceeded PipelineState = "SUCCEEDED"
	PipelineFailed    PipelineState = "FAILED"
)

// Terminal reports whether the state is final.
func (s PipelineState) Terminal() bool {
	return s == PipelineSucceeded || s == PipelineFailed
}

// Pipeline is the dependency-ordered set of jobs for one shard build run.
type Pipeline struct {
	ShardID string          `json:"shard_id"`
	Mode    AlgorithmMode   `json:"mode"`
	Jobs    map[string]*Job `json:"jobs"`
	// Order lists job IDs in topological order for deterministic iteration.
	Order []string `json:"order"`
}

// NewPipeline builds the job DAG for one shard. EXTRACT always runs first;
// CH mode appends CONTRACT, MLD mode appends PARTITION then CUSTOMIZE.
func NewPipeline(shardID string, mode AlgorithmMode, maxAttempts int) (*Pipeline, error) {
	if shardID == "" {
		return nil, fmt.Errorf("pipeline: shard id is required")
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("pipeline: max attempts must be at least 1, got %d", maxAttempts)
	}

	var stages []struct {
		kind JobKind
		deps []JobKind
	}
	switch mode {
	case ModeCH:
		stages = []struct {
			kind JobKind
			deps []JobKind
		}{
			{JobExtract, nil},
			{JobContract, []JobKind{JobExtract}},
		}
	case ModeMLD:
		stages = []struct {
			kind JobKind
			deps []JobKind
		}{
			{JobExtract, nil},
			{JobPartition, []JobKind{JobExtract}},
			{JobCustomize, []JobKind{JobPartition}},
		}
	default:
		return nil, fmt.Errorf("pipeline: unknown algorithm mode %q", mode)
	}

	p := &Pipeline{
		ShardID: shardID,
		Mode:    mode,
		Jobs:    make(map[string]*Job, len(stages)),
	}
	for _, st := range stages {
		id := JobID(shardID, st.kind)
		deps := make([]string, 0, len(st.deps))
		for _, d := range st.deps {
			deps = append(deps, JobID(shardID, d))
		}
		p.Jobs[id] = &Job{
			ID:          id,
			Kind:        st.kind,
			ShardID:     shardID,
			State:       JobPending,
			DependsOn:   deps,
			MaxAttempts: maxAttempts,
		}
		p.Order = append(p.Order, id)
	}
	return p, nil
}

// ReadyJobs returns pending jobs whose dependencies have all succeeded,
// in topological order.
func (p *Pipeline) ReadyJobs() []*Job {
	var ready []*Job
	for _, id := range p.Order {
		j := p.Jobs[id]
		if j.State != JobPending {
			continue
		}
		ok := true
		for _, dep := range j.DependsOn {
			if p.Jobs[dep] == nil || p.Jobs[dep].State != JobSucceeded {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, j)
		}
	}
	return ready
}

// State derives the pipeline state from its jobs: FAILED as soon as any job
// is terminally failed, SUCCEEDED only when every job succeeded.
func (p *Pipeline) State() PipelineState {
	allPending := true
	allSucceeded := true
	for _, id := range p.Order {
		switch p.Jobs[id].State {
		case JobFailed:
			return PipelineFailed
		case JobPending:
			allSucceeded = false
		case JobSucceeded:
			allPending = false
		default:
			allPending = false
			allSucceeded = false
		}
	}
	if allSucceeded {
		return PipelineSucceeded
	}
	if allPending {
		return PipelinePending
	}
	return PipelineRunning
}

// FailedJob returns the first terminally failed job, if any.
func (p *Pipeline) FailedJob() *Job {
	for _, id := range p.Order {
		if p.Jobs[id].State == JobFailed {
			return p.Jobs[id]
		}
	}
	return nil
}

// BuildRun is a persisted record of one pipeline execution.
type BuildRun struct {
	ID         string        `json:"id"`
	ShardID    string        `json:"shard_id"`
	Mode       AlgorithmMode `json:"mode"`
	State      PipelineState `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	FailedJob  string        `json:"failed_job,omitempty"`
	Err        string        `json:"error,omitempty"`
}
