package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/pkg/geospatial"
)

// simulatedRoute behaves like a routing engine over an empty plain: the path
// between waypoints is the straight line between them at a fixed speed.
func simulatedRoute(req domain.RouteRequest) *domain.RouteResponse {
	const speedMPS = 13.9

	resp := &domain.RouteResponse{
		Geometry:  domain.GeoLineString{Coordinates: append([]domain.Coordinate(nil), req.Waypoints...)},
		Waypoints: append([]domain.Coordinate(nil), req.Waypoints...),
	}
	for i := 1; i < len(req.Waypoints); i++ {
		a, b := req.Waypoints[i-1], req.Waypoints[i]
		dist := geospatial.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
		leg := domain.RouteLeg{
			Distance: dist,
			Duration: dist / speedMPS,
			Steps: []domain.RouteStep{
				{Instruction: "depart", Distance: dist, Duration: dist / speedMPS, Location: a},
			},
		}
		resp.Legs = append(resp.Legs, leg)
		resp.Distance += leg.Distance
		resp.Duration += leg.Duration
	}
	return resp
}

func TestCrossShardRouteStitching(t *testing.T) {
	engine := &mockEngine{
		routeFunc: func(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
			return simulatedRoute(req), nil
		},
	}
	router := newTestRouter(t, engine, testCatalog())

	// Chicago-ish to New York-ish: spans na-central and na-east with two
	// user waypoints on the central side.
	waypoints := []domain.Coordinate{
		{Lon: -95, Lat: 40},
		{Lon: -90, Lat: 41},
		{Lon: -75, Lat: 42},
	}
	resp, err := router.Route(context.Background(), domain.RouteRequest{
		Profile:   domain.ProfileCar,
		Waypoints: waypoints,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	// The stitched answer keeps exactly the user's waypoints; the gateway
	// is an implementation detail.
	if len(resp.Waypoints) != len(waypoints) {
		t.Fatalf("waypoints = %d, want %d: %+v", len(resp.Waypoints), len(waypoints), resp.Waypoints)
	}
	for i, w := range waypoints {
		if resp.Waypoints[i] != w {
			t.Errorf("waypoint %d = %+v, want %+v", i, resp.Waypoints[i], w)
		}
	}

	coords := resp.Geometry.Coordinates
	if len(coords) < 3 {
		t.Fatalf("geometry too short: %+v", coords)
	}
	if coords[0] != waypoints[0] || coords[len(coords)-1] != waypoints[2] {
		t.Errorf("geometry endpoints %+v .. %+v, want %+v .. %+v",
			coords[0], coords[len(coords)-1], waypoints[0], waypoints[2])
	}

	// The gateway sits on the overlap centerline of the two shard boxes
	// and appears exactly once in the merged geometry.
	gateways := 0
	for _, c := range coords {
		if c.Lon == -84 {
			gateways++
		}
	}
	if gateways != 1 {
		t.Errorf("gateway appears %d times in geometry, want 1", gateways)
	}

	// Total cost is the sum of the per-segment costs.
	var wantDuration float64
	for i := 1; i < len(coords); i++ {
		wantDuration += geospatial.Haversine(coords[i-1].Lat, coords[i-1].Lon, coords[i].Lat, coords[i].Lon) / 13.9
	}
	if diff := resp.Duration - wantDuration; diff > 0.001 || diff < -0.001 {
		t.Errorf("Duration = %f, want %f", resp.Duration, wantDuration)
	}

	// One leg carries the boundary marker step.
	found := false
	for _, leg := range resp.Legs {
		for _, step := range leg.Steps {
			if step.Instruction == "continue across region boundary" {
				found = true
			}
		}
	}
	if !found {
		t.Error("no boundary marker step in stitched legs")
	}

	// Leg costs must add up to the route totals.
	var legDuration float64
	for _, leg := range resp.Legs {
		legDuration += leg.Duration
	}
	if diff := resp.Duration - legDuration; diff > 0.001 || diff < -0.001 {
		t.Errorf("leg durations sum to %f, route Duration is %f", legDuration, resp.Duration)
	}
}

func TestCrossShardUnroutable(t *testing.T) {
	engine := &mockEngine{
		routeFunc: func(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
			return simulatedRoute(req), nil
		},
	}
	router := newTestRouter(t, engine, testCatalog())

	// There is no shard chain across the Atlantic.
	_, err := router.Route(context.Background(), domain.RouteRequest{
		Profile: domain.ProfileCar,
		Waypoints: []domain.Coordinate{
			{Lon: -95, Lat: 40}, // na-central
			{Lon: 2, Lat: 48},   // eu-west
		},
	})
	var unroutable *domain.UnroutableCrossShardError
	if !errors.As(err, &unroutable) {
		t.Fatalf("expected UnroutableCrossShardError, got %v", err)
	}
	if unroutable.FromShard != "na-central" || unroutable.ToShard != "eu-west" {
		t.Errorf("shards = %s -> %s, want na-central -> eu-west", unroutable.FromShard, unroutable.ToShard)
	}
}

func TestCrossShardRejectsDiscontinuousStitch(t *testing.T) {
	engine := &mockEngine{
		routeFunc: func(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
			resp := simulatedRoute(req)
			// The eastern engine snaps everything far off the query
			// point, so the seam cannot line up.
			if strings.Contains(endpoint, "na-east") && len(resp.Geometry.Coordinates) > 0 {
				resp.Geometry.Coordinates[0].Lat += 0.01
			}
			return resp, nil
		},
	}
	router := newTestRouter(t, engine, testCatalog())

	_, err := router.Route(context.Background(), domain.RouteRequest{
		Profile: domain.ProfileCar,
		Waypoints: []domain.Coordinate{
			{Lon: -95, Lat: 40},
			{Lon: -75, Lat: 42},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "discontinuous stitch") {
		t.Fatalf("expected discontinuous stitch error, got %v", err)
	}
}

func TestCrossShardGatewayPrefersCheapestCrossing(t *testing.T) {
	// Crossings north of 41N are painfully slow on the simulated network,
	// so the election must keep a southern gateway even though a northern
	// one is nearer the straight line. The penalty dwarfs any plausible
	// drive time so a penalized crossing is unmistakable in the total.
	const crossingPenalty = 1e7
	engine := &mockEngine{
		routeFunc: func(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
			resp := simulatedRoute(req)
			for _, w := range req.Waypoints {
				if w.Lon == -84 && w.Lat > 41 {
					resp.Duration += crossingPenalty
				}
			}
			return resp, nil
		},
	}
	router := newTestRouter(t, engine, testCatalog())

	resp, err := router.Route(context.Background(), domain.RouteRequest{
		Profile: domain.ProfileCar,
		Waypoints: []domain.Coordinate{
			{Lon: -95, Lat: 42},
			{Lon: -75, Lat: 42},
		},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	for _, c := range resp.Geometry.Coordinates {
		if c.Lon == -84 && c.Lat > 41 {
			t.Errorf("gateway elected at %+v despite penalized crossings", c)
		}
	}
	if resp.Duration >= crossingPenalty {
		t.Errorf("Duration = %f, a penalized crossing was used", resp.Duration)
	}
}

func TestCrossShardUnroutableWhenEnginesRejectEveryGateway(t *testing.T) {
	// The shard boxes overlap, but the engines report NoRoute for every
	// point in the boundary band: an unmodeled gap, not a backend fault.
	engine := &mockEngine{
		routeFunc: func(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
			for _, w := range req.Waypoints {
				if w.Lon == -84 {
					return nil, &domain.BackendError{Code: "NoRoute", Message: "Impossible route between points"}
				}
			}
			return simulatedRoute(req), nil
		},
	}
	router := newTestRouter(t, engine, testCatalog())

	_, err := router.Route(context.Background(), domain.RouteRequest{
		Profile: domain.ProfileCar,
		Waypoints: []domain.Coordinate{
			{Lon: -95, Lat: 40}, // na-central
			{Lon: -75, Lat: 42}, // na-east
		},
	})
	var unroutable *domain.UnroutableCrossShardError
	if !errors.As(err, &unroutable) {
		t.Fatalf("expected UnroutableCrossShardError, got %v", err)
	}
	if unroutable.FromShard != "na-central" || unroutable.ToShard != "na-east" {
		t.Errorf("shards = %s -> %s, want na-central -> na-east", unroutable.FromShard, unroutable.ToShard)
	}
}

func TestCrossShardGatewayPropagatesTransportFailure(t *testing.T) {
	// A dead engine during gateway probing is a backend problem and must
	// surface as one, not as an unroutable pair.
	engine := &mockEngine{
		routeFunc: func(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
			for _, w := range req.Waypoints {
				if w.Lon == -84 {
					return nil, &domain.BackendTimeoutError{Endpoint: endpoint, Err: context.DeadlineExceeded}
				}
			}
			return simulatedRoute(req), nil
		},
	}
	router := newTestRouter(t, engine, testCatalog())

	_, err := router.Route(context.Background(), domain.RouteRequest{
		Profile: domain.ProfileCar,
		Waypoints: []domain.Coordinate{
			{Lon: -95, Lat: 40},
			{Lon: -75, Lat: 42},
		},
	})
	var timeout *domain.BackendTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected BackendTimeoutError, got %v", err)
	}
}
