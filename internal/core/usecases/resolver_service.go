package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/core/ports"
	"github.com/meridianlabs/meridian/internal/pkg/geospatial"
)

const (
	// snapToleranceMeters bounds how far apart the two sides of a shard
	// seam may snap the same gateway point before the stitch is rejected.
	snapToleranceMeters = 30.0

	// boundaryBufferDeg is how far shard boxes are grown when electing a
	// gateway between shards that touch but do not overlap.
	boundaryBufferDeg = 0.25

	// gatewayCandidateCount is the number of points sampled along the
	// overlap centerline when probing for the cheapest crossing.
	gatewayCandidateCount = 5

	maxConcurrentProbes = 8
)

// ResolverService stitches routes whose waypoints span multiple shards. It
// splits the waypoint sequence into per-shard runs, elects a gateway point in
// each boundary region, routes every run on its own shard, and joins the
// segments into one continuous response.
type ResolverService struct {
	engine ports.EngineClient
}

// NewResolverService creates a new ResolverService.
func NewResolverService(engine ports.EngineClient) *ResolverService {
	return &ResolverService{engine: engine}
}

// waypointRun is a maximal consecutive slice of waypoints that share a shard.
type waypointRun struct {
	shard domain.Shard
	first int // inclusive waypoint index
	last  int // inclusive
}

// Resolve answers a route request whose waypoints do not all fit one shard.
// waypointShards holds the covering shard set of each waypoint, in catalog
// order; it has already been checked for empty entries.
func (s *ResolverService) Resolve(ctx context.Context, req domain.RouteRequest, waypointShards [][]domain.Shard) (*domain.RouteResponse, error) {
	runs := splitRuns(req.Waypoints, waypointShards)
	if len(runs) == 1 {
		return callEngine(ctx, s.engine, runs[0].shard.Endpoint, req)
	}

	// Elect one gateway per seam before issuing the final segment queries.
	gateways := make([]domain.Coordinate, len(runs)-1)
	for i := 0; i < len(runs)-1; i++ {
		from, to := runs[i], runs[i+1]
		gw, err := s.electGateway(ctx, req.Profile, from, to,
			req.Waypoints[from.last], req.Waypoints[to.first])
		if err != nil {
			return nil, err
		}
		gateways[i] = gw
	}

	// Each run is routed on its own shard, with the neighbouring gateways
	// spliced in as extra waypoints. Segments are independent, so query
	// them concurrently.
	segments := make([]*domain.RouteResponse, len(runs))
	errs := make([]error, len(runs))
	sem := make(chan struct{}, maxConcurrentProbes)
	var wg sync.WaitGroup
	for i, run := range runs {
		segReq := domain.RouteRequest{Profile: req.Profile}
		if i > 0 {
			segReq.Waypoints = append(segReq.Waypoints, gateways[i-1])
		}
		segReq.Waypoints = append(segReq.Waypoints, req.Waypoints[run.first:run.last+1]...)
		if i < len(runs)-1 {
			segReq.Waypoints = append(segReq.Waypoints, gateways[i])
		}

		wg.Add(1)
		go func(i int, endpoint string, segReq domain.RouteRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			segments[i], errs[i] = callEngine(ctx, s.engine, endpoint, segReq)
		}(i, run.shard.Endpoint, segReq)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return stitchSegments(segments)
}

// splitRuns partitions the waypoint sequence into maximal runs that share at
// least one covering shard, electing one shard per run.
func splitRuns(waypoints []domain.Coordinate, waypointShards [][]domain.Shard) []waypointRun {
	var runs []waypointRun
	common := waypointShards[0]
	start := 0
	for i := 1; i < len(waypoints); i++ {
		next := intersectShards([][]domain.Shard{common, waypointShards[i]})
		if len(next) == 0 {
			runs = append(runs, waypointRun{shard: electShard(common), first: start, last: i - 1})
			start = i
			common = waypointShards[i]
			continue
		}
		common = next
	}
	runs = append(runs, waypointRun{shard: electShard(common), first: start, last: len(waypoints) - 1})
	return runs
}

// electGateway picks the crossing point between two adjacent runs: candidates
// are sampled in the boundary region of the two shard boxes and each is probed
// on both engines, keeping the one with the lowest combined duration.
func (s *ResolverService) electGateway(ctx context.Context, profile string, from, to waypointRun, exit, entry domain.Coordinate) (domain.Coordinate, error) {
	overlap, ok := from.shard.Bounds.Intersection(to.shard.Bounds)
	if !ok {
		// Touching-but-disjoint boxes: grow both by the boundary buffer
		// so shards that merely abut still get a crossing region.
		overlap, ok = from.shard.Bounds.Expand(boundaryBufferDeg).
			Intersection(to.shard.Bounds.Expand(boundaryBufferDeg))
		if !ok {
			return domain.Coordinate{}, &domain.UnroutableCrossShardError{
				FromShard: from.shard.ID,
				ToShard:   to.shard.ID,
			}
		}
	}
	candidates := gatewayCandidates(overlap)

	type probe struct {
		cost float64
		gw   domain.Coordinate
		err  error
	}
	probes := make([]probe, len(candidates))
	sem := make(chan struct{}, maxConcurrentProbes)
	var wg sync.WaitGroup
	for i, g := range candidates {
		wg.Add(1)
		go func(i int, g domain.Coordinate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out, err := callEngine(ctx, s.engine, from.shard.Endpoint, domain.RouteRequest{
				Profile:   profile,
				Waypoints: []domain.Coordinate{exit, g},
			})
			if err != nil {
				probes[i] = probe{err: err}
				return
			}
			in, err := callEngine(ctx, s.engine, to.shard.Endpoint, domain.RouteRequest{
				Profile:   profile,
				Waypoints: []domain.Coordinate{g, entry},
			})
			if err != nil {
				probes[i] = probe{err: err}
				return
			}
			probes[i] = probe{cost: out.Duration + in.Duration, gw: g}
		}(i, g)
	}
	wg.Wait()

	best := -1
	var transportErr error
	for i, p := range probes {
		if p.err != nil {
			// An engine-reported NoRoute just disqualifies this
			// candidate; transport failures are kept for reporting.
			var semantic *domain.BackendError
			if !errors.As(p.err, &semantic) && transportErr == nil {
				transportErr = p.err
			}
			continue
		}
		if best < 0 || p.cost < probes[best].cost-0.5 {
			best = i
			continue
		}
		// Near-equal cost: prefer the candidate closest to the straight
		// line between the boundary waypoints.
		if math.Abs(p.cost-probes[best].cost) <= 0.5 {
			dNew := geospatial.PointToSegmentMeters(p.gw.Lat, p.gw.Lon, exit.Lat, exit.Lon, entry.Lat, entry.Lon)
			dOld := geospatial.PointToSegmentMeters(probes[best].gw.Lat, probes[best].gw.Lon, exit.Lat, exit.Lon, entry.Lat, entry.Lon)
			if dNew < dOld {
				best = i
			}
		}
	}
	if best < 0 {
		if transportErr != nil {
			return domain.Coordinate{}, transportErr
		}
		// Every candidate was rejected by the engines themselves: the
		// boundary region holds no modeled crossing between the shards.
		return domain.Coordinate{}, &domain.UnroutableCrossShardError{
			FromShard: from.shard.ID,
			ToShard:   to.shard.ID,
		}
	}
	return probes[best].gw, nil
}

// gatewayCandidates samples points along the overlap region's long centerline.
func gatewayCandidates(overlap domain.BoundingBox) []domain.Coordinate {
	center := overlap.Center()
	width := overlap.MaxLon - overlap.MinLon
	height := overlap.MaxLat - overlap.MinLat

	out := make([]domain.Coordinate, 0, gatewayCandidateCount)
	for i := 0; i < gatewayCandidateCount; i++ {
		t := (float64(i) + 0.5) / gatewayCandidateCount
		if height > width {
			out = append(out, domain.Coordinate{
				Lon: center.Lon,
				Lat: overlap.MinLat + t*height,
			})
		} else {
			out = append(out, domain.Coordinate{
				Lon: overlap.MinLon + t*width,
				Lat: center.Lat,
			})
		}
	}
	return out
}

// stitchSegments joins per-shard segments into one response. Gateway points
// were issued as waypoints on both sides of each seam, so the seam must line
// up within the snap tolerance, and the duplicated gateway entries are
// dropped from the merged geometry, legs, and waypoint list.
func stitchSegments(segments []*domain.RouteResponse) (*domain.RouteResponse, error) {
	out := &domain.RouteResponse{}
	for i, seg := range segments {
		if seg.Duration < 0 || seg.Distance < 0 {
			return nil, fmt.Errorf("segment %d reported negative cost", i)
		}
		out.Distance += seg.Distance
		out.Duration += seg.Duration

		coords := seg.Geometry.Coordinates
		if i > 0 {
			prev, ok1 := segments[i-1].EndPoint()
			next, ok2 := seg.StartPoint()
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("segment %d has empty geometry", i)
			}
			gap := geospatial.Haversine(prev.Lat, prev.Lon, next.Lat, next.Lon)
			if gap > snapToleranceMeters {
				return nil, fmt.Errorf("discontinuous stitch at segment %d: seam gap %.1fm exceeds %.0fm", i, gap, snapToleranceMeters)
			}
			coords = coords[1:]
		}
		out.Geometry.Coordinates = append(out.Geometry.Coordinates, coords...)

		legs := seg.Legs
		if i > 0 && len(legs) > 0 && len(out.Legs) > 0 {
			// The leg into the gateway and the leg out of it describe
			// one continuous stretch of road. Fold them into a single
			// seam leg with a boundary marker step between them.
			last := &out.Legs[len(out.Legs)-1]
			entry := legs[0]
			last.Distance += entry.Distance
			last.Duration += entry.Duration
			last.Steps = append(last.Steps, domain.RouteStep{
				Instruction: "continue across region boundary",
				Location:    seg.Geometry.Coordinates[0],
			})
			last.Steps = append(last.Steps, entry.Steps...)
			if last.Summary == "" {
				last.Summary = entry.Summary
			}
			legs = legs[1:]
		}
		out.Legs = append(out.Legs, legs...)

		wps := seg.Waypoints
		if i > 0 && len(wps) > 0 {
			wps = wps[1:] // leading gateway, not a user waypoint
		}
		if i < len(segments)-1 && len(wps) > 0 {
			wps = wps[:len(wps)-1] // gateway, not a user waypoint
		}
		out.Waypoints = append(out.Waypoints, wps...)
	}
	return out, nil
}
