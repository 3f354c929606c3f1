package ports

import (
	"context"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

// EngineClient talks to one routing-engine backend. The engine's shortest-path
// internals are a black box: it takes ordered coordinates and returns a path.
type EngineClient interface {
	Route(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error)
}

// BatchClient is a thin abstraction over the remote batch-execution service.
type BatchClient interface {
	Submit(ctx context.Context, spec domain.JobSpec) (string, error)
	Describe(ctx context.Context, remoteID string) (domain.JobStatus, error)
	Cancel(ctx context.Context, remoteID string) error
}

// EventPublisher publishes build and shard events to a message broker.
type EventPublisher interface {
	PublishJobTransition(ctx context.Context, tr *domain.JobTransition) error
	PublishShardReadiness(ctx context.Context, ev *domain.ReadinessEvent) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// EventSubscriber subscribes to shard events from a message broker.
type EventSubscriber interface {
	SubscribeShardReadiness(ctx context.Context, handler func(ctx context.Context, ev *domain.ReadinessEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
