package usecases

import (
	"fmt"
	"sync"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

// RegistryService is the authoritative catalog of shard definitions. It is
// loaded once at startup and read-mostly afterwards: the only write path is
// SetReadiness, which mutates a single shard atomically when a pipeline
// completes or a readiness event arrives.
type RegistryService struct {
	mu     sync.RWMutex
	shards []domain.Shard
	byID   map[string]int
}

// NewRegistryService validates the catalog and builds the registry.
// Catalog order is preserved; it is the final tie-break for overlapping boxes.
func NewRegistryService(shards []domain.Shard) (*RegistryService, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("registry: shard catalog is empty")
	}

	byID := make(map[string]int, len(shards))
	for i, s := range shards {
		if s.ID == "" {
			return nil, fmt.Errorf("registry: shard %d has no id", i)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate shard id %q", s.ID)
		}
		if !s.Bounds.Valid() {
			return nil, fmt.Errorf("registry: shard %q has invalid bounds %+v", s.ID, s.Bounds)
		}
		if s.Endpoint == "" {
			return nil, fmt.Errorf("registry: shard %q has no backend endpoint", s.ID)
		}
		byID[s.ID] = i
	}

	cp := make([]domain.Shard, len(shards))
	copy(cp, shards)
	return &RegistryService{shards: cp, byID: byID}, nil
}

// Lookup returns every shard whose bounding box contains the point, in catalog
// order. An empty result is an error, not a silent default.
func (r *RegistryService) Lookup(c domain.Coordinate) ([]domain.Shard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Shard
	for _, s := range r.shards {
		if s.Bounds.Contains(c) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, &domain.NoShardCoverageError{Waypoint: c}
	}
	return out, nil
}

// Get returns a copy of one shard.
func (r *RegistryService) Get(id string) (*domain.Shard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("registry: unknown shard %q", id)
	}
	s := r.shards[i]
	return &s, nil
}

// All returns a copy of the full catalog in order.
func (r *RegistryService) All() []domain.Shard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Shard, len(r.shards))
	copy(out, r.shards)
	return out
}

// SetReadiness updates one shard's readiness state and, when the state is
// READY, records the new artifact location. The previous artifact is kept for
// every other transition so a shard keeps serving its last good graph during
// rebuilds.
func (r *RegistryService) SetReadiness(id string, state domain.ReadinessState, artifact string) error {
	switch state {
	case domain.ReadinessBuilding, domain.ReadinessReady, domain.ReadinessStale, domain.ReadinessFailed:
	default:
		return fmt.Errorf("registry: unknown readiness state %q", state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("registry: unknown shard %q", id)
	}
	r.shards[i].Readiness = state
	if state == domain.ReadinessReady && artifact != "" {
		r.shards[i].Artifact = artifact
	}
	return nil
}
