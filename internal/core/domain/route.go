package domain

import "fmt"

// Routing profiles supported by the engine backends.
const (
	ProfileCar  = "car"
	ProfileBike = "bike"
)

// RouteRequest is an ordered sequence of waypoints to route through.
// Immutable once received.
type RouteRequest struct {
	Profile   string       `json:"profile"`
	Waypoints []Coordinate `json:"waypoints"`
}

// Validate checks the request is well-formed.
func (r RouteRequest) Validate() error {
	if len(r.Waypoints) < 2 {
		return fmt.Errorf("route request needs at least 2 waypoints, got %d", len(r.Waypoints))
	}
	switch r.Profile {
	case ProfileCar, ProfileBike:
	default:
		return fmt.Errorf("unknown routing profile %q", r.Profile)
	}
	for i, w := range r.Waypoints {
		if w.Lon < -180 || w.Lon > 180 || w.Lat < -90 || w.Lat > 90 {
			return fmt.Errorf("waypoint %d out of range: %.6f,%.6f", i, w.Lon, w.Lat)
		}
	}
	return nil
}

// RouteResponse is the answer to a route query. It has the same shape whether
// it was served by a single engine pass-through or stitched across shards, and
// two adjacent responses may be joined end-to-start.
type RouteResponse struct {
	Geometry  GeoLineString `json:"geometry"`
	Distance  float64       `json:"distance"` // meters
	Duration  float64       `json:"duration"` // seconds
	Legs      []RouteLeg    `json:"legs"`
	Waypoints []Coordinate  `json:"waypoints"` // snapped to the road network
}

// RouteLeg covers one pair of consecutive waypoints.
type RouteLeg struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Summary  string      `json:"summary,omitempty"`
	Steps    []RouteStep `json:"steps"`
}

// RouteStep is a single turn instruction.
type RouteStep struct {
	Instruction string     `json:"instruction"`
	Name        string     `json:"name,omitempty"`
	Distance    float64    `json:"distance"`
	Duration    float64    `json:"duration"`
	Location    Coordinate `json:"location"`
}

// StartPoint returns the first geometry coordinate, if any.
func (r *RouteResponse) StartPoint() (Coordinate, bool) {
	if len(r.Geometry.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return r.Geometry.Coordinates[0], true
}

// EndPoint returns the last geometry coordinate, if any.
func (r *RouteResponse) EndPoint() (Coordinate, bool) {
	if len(r.Geometry.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return r.Geometry.Coordinates[len(r.Geometry.Coordinates)-1], true
}
