package domain_test

import (
	"testing"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

func TestBoundingBoxContains(t *testing.T) {
	b := domain.BoundingBox{MinLon: -10, MinLat: 35, MaxLon: 30, MaxLat: 60}

	if !b.Contains(domain.Coordinate{Lon: 2.35, Lat: 48.85}) {
		t.Error("expected Paris inside the box")
	}
	if b.Contains(domain.Coordinate{Lon: -73.98, Lat: 40.73}) {
		t.Error("expected New York outside the box")
	}
	// Edges count as inside.
	if !b.Contains(domain.Coordinate{Lon: -10, Lat: 35}) {
		t.Error("expected corner to be contained")
	}
}

func TestBoundingBoxIntersection(t *testing.T) {
	a := domain.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 10, MaxLat: 10}
	b := domain.BoundingBox{MinLon: 8, MinLat: 8, MaxLon: 20, MaxLat: 20}

	inter, ok := a.Intersection(b)
	if !ok {
		t.Fatal("expected boxes to intersect")
	}
	want := domain.BoundingBox{MinLon: 8, MinLat: 8, MaxLon: 10, MaxLat: 10}
	if inter != want {
		t.Errorf("intersection = %+v, want %+v", inter, want)
	}

	c := domain.BoundingBox{MinLon: 50, MinLat: 50, MaxLon: 60, MaxLat: 60}
	if _, ok := a.Intersection(c); ok {
		t.Error("expected disjoint boxes not to intersect")
	}
}

func TestRouteRequestValidate(t *testing.T) {
	valid := domain.RouteRequest{
		Profile: domain.ProfileBike,
		Waypoints: []domain.Coordinate{
			{Lon: -73.989, Lat: 40.733},
			{Lon: -73.982, Lat: 40.742},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	onePoint := domain.RouteRequest{Profile: domain.ProfileCar, Waypoints: valid.Waypoints[:1]}
	if err := onePoint.Validate(); err == nil {
		t.Error("expected error for single waypoint")
	}

	badProfile := valid
	badProfile.Profile = "horse"
	if err := badProfile.Validate(); err == nil {
		t.Error("expected error for unknown profile")
	}

	outOfRange := valid
	outOfRange.Waypoints = []domain.Coordinate{{Lon: -200, Lat: 40}, {Lon: 0, Lat: 0}}
	if err := outOfRange.Validate(); err == nil {
		t.Error("expected error for out-of-range longitude")
	}
}
