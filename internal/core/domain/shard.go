package domain

import "time"

// ReadinessState tracks whether a shard's routing graph is servable.
type ReadinessState string

const (
	ReadinessBuilding ReadinessState = "BUILDING"
	ReadinessReady    ReadinessState = "READY"
	ReadinessStale    ReadinessState = "STALE"
	ReadinessFailed   ReadinessState = "FAILED"
)

// Shard is a geographic partition of the world served by one independent
// routing-engine instance holding only that region's road graph.
type Shard struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Bounds    BoundingBox    `json:"bounds"`
	Endpoint  string         `json:"endpoint"`
	Readiness ReadinessState `json:"readiness"`
	// Artifact is the location of the graph artifact the shard currently
	// serves. It is swapped only when a full rebuild succeeds.
	Artifact string `json:"artifact,omitempty"`
}

// ReadinessEvent announces a shard readiness transition, published by the
// builder and consumed by gateways to update their registries.
type ReadinessEvent struct {
	ShardID  string         `json:"shard_id"`
	State    ReadinessState `json:"state"`
	Artifact string         `json:"artifact,omitempty"`
	At       time.Time      `json:"at"`
}
