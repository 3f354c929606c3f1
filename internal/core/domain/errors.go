package domain

import "fmt"

// NoShardCoverageError means a query waypoint falls outside every shard's
// bounding box. This is a coverage defect, never silently defaulted.
type NoShardCoverageError struct {
	WaypointIndex int
	Waypoint      Coordinate
}

func (e *NoShardCoverageError) Error() string {
	return fmt.Sprintf("no shard covers waypoint %d (%.6f,%.6f)",
		e.WaypointIndex, e.Waypoint.Lon, e.Waypoint.Lat)
}

// UnroutableCrossShardError means no viable gateway coordinate connects two
// adjacent shards, e.g. an oceanic gap with no modeled land bridge or ferry.
type UnroutableCrossShardError struct {
	FromShard string
	ToShard   string
}

func (e *UnroutableCrossShardError) Error() string {
	return fmt.Sprintf("no routable gateway between shards %s and %s", e.FromShard, e.ToShard)
}

// BackendTimeoutError means a call to an engine or batch backend exceeded its
// deadline.
type BackendTimeoutError struct {
	Endpoint string
	Err      error
}

func (e *BackendTimeoutError) Error() string {
	return fmt.Sprintf("backend %s timed out: %v", e.Endpoint, e.Err)
}

func (e *BackendTimeoutError) Unwrap() error { return e.Err }

// BackendError is a routing-semantic error reported by an engine (no route,
// malformed input). It is passed through to the client verbatim and never
// retried.
type BackendError struct {
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine error %s", e.Code)
	}
	return fmt.Sprintf("engine error %s: %s", e.Code, e.Message)
}

// JobSubmissionError means the batch queue rejected a job spec. This is a
// configuration fault: it is never auto-retried and halts the owning pipeline.
type JobSubmissionError struct {
	ShardID string
	Kind    JobKind
	Err     error
}

func (e *JobSubmissionError) Error() string {
	return fmt.Sprintf("submission of %s job for shard %s rejected: %v", e.Kind, e.ShardID, e.Err)
}

func (e *JobSubmissionError) Unwrap() error { return e.Err }

// JobFailedPermanentError means a job exhausted its retry budget. Only the
// owning pipeline fails; sibling pipelines and serving shards are unaffected.
type JobFailedPermanentError struct {
	ShardID  string
	Kind     JobKind
	Attempts int
	LastErr  string
}

func (e *JobFailedPermanentError) Error() string {
	return fmt.Sprintf("%s job for shard %s failed permanently after %d attempts: %s",
		e.Kind, e.ShardID, e.Attempts, e.LastErr)
}
