package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/core/ports"
	"github.com/meridianlabs/meridian/internal/pkg/metrics"
)

// RouterService maps query waypoints to shards and answers route requests:
// single-shard requests are proxied verbatim to that shard's engine,
// cross-shard requests are delegated to the resolver.
type RouterService struct {
	registry *RegistryService
	engine   ports.EngineClient
	resolver *ResolverService
	cache    ports.CacheService
}

// NewRouterService creates a new RouterService. cache may be nil.
func NewRouterService(registry *RegistryService, engine ports.EngineClient, resolver *ResolverService, cache ports.CacheService) *RouterService {
	return &RouterService{registry: registry, engine: engine, resolver: resolver, cache: cache}
}

// Route answers a route request. The response has the same shape whether it
// was served by pass-through or by cross-shard stitching.
func (s *RouterService) Route(ctx context.Context, req domain.RouteRequest) (*domain.RouteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cacheKey := routeCacheKey(req)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var resp domain.RouteResponse
			if err := json.Unmarshal(data, &resp); err == nil {
				return &resp, nil
			}
		}
	}

	// Resolve every waypoint to its covering shards.
	waypointShards := make([][]domain.Shard, len(req.Waypoints))
	for i, w := range req.Waypoints {
		shards, err := s.registry.Lookup(w)
		if err != nil {
			return nil, &domain.NoShardCoverageError{WaypointIndex: i, Waypoint: w}
		}
		waypointShards[i] = shards
	}

	var resp *domain.RouteResponse
	var err error
	if common := intersectShards(waypointShards); len(common) > 0 {
		// Pass-through: the whole request fits one shard. Forward it
		// verbatim and return the engine's answer unchanged.
		shard := electShard(common)
		resp, err = callEngine(ctx, s.engine, shard.Endpoint, req)
	} else {
		metrics.CrossShardQueriesTotal.Inc()
		resp, err = s.resolver.Resolve(ctx, req, waypointShards)
	}
	if err != nil {
		return nil, err
	}

	// Routes over a static graph are stable; a short TTL keeps rebuild
	// promotions visible quickly.
	if s.cache != nil {
		if data, err := json.Marshal(resp); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 120)
		}
	}
	return resp, nil
}

// callEngine performs one engine call, retrying exactly once on a transient
// transport failure or timeout. Engine-reported semantic errors are never
// retried.
func callEngine(ctx context.Context, engine ports.EngineClient, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
	resp, err := engine.Route(ctx, endpoint, req)
	if err == nil {
		return resp, nil
	}

	var semantic *domain.BackendError
	if errors.As(err, &semantic) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return engine.Route(ctx, endpoint, req)
}

// intersectShards returns the shards common to every waypoint's covering set,
// preserving the first waypoint's order.
func intersectShards(waypointShards [][]domain.Shard) []domain.Shard {
	if len(waypointShards) == 0 {
		return nil
	}

	common := waypointShards[0]
	for _, set := range waypointShards[1:] {
		ids := make(map[string]bool, len(set))
		for _, s := range set {
			ids[s.ID] = true
		}
		var next []domain.Shard
		for _, s := range common {
			if ids[s.ID] {
				next = append(next, s)
			}
		}
		common = next
		if len(common) == 0 {
			return nil
		}
	}
	return common
}

// electShard picks one shard from an overlapping candidate set: prefer READY
// shards, then the smallest (most specific) box, then catalog order.
func electShard(cands []domain.Shard) domain.Shard {
	best := cands[0]
	for _, c := range cands[1:] {
		bestReady := best.Readiness == domain.ReadinessReady
		candReady := c.Readiness == domain.ReadinessReady
		switch {
		case candReady && !bestReady:
			best = c
		case candReady == bestReady && c.Bounds.Area() < best.Bounds.Area():
			best = c
		}
	}
	return best
}

func routeCacheKey(req domain.RouteRequest) string {
	var b strings.Builder
	b.WriteString("route:")
	b.WriteString(req.Profile)
	for _, w := range req.Waypoints {
		fmt.Fprintf(&b, ":%.6f,%.6f", w.Lon, w.Lat)
	}
	return b.String()
}
