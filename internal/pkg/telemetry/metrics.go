package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Routing quality
	MetricCrossShardRatio = "routing.cross_shard_ratio"
	MetricSeamGapMeters   = "routing.seam_gap_meters"

	// Build pipeline
	MetricBuildDuration  = "pipeline.build_duration_seconds"
	MetricGraphFreshness = "pipeline.graph_age_seconds"

	// Availability
	MetricUptime = "service.uptime_percentage"
)
