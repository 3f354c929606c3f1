package usecases_test

import (
	"errors"
	"testing"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/core/usecases"
)

func testCatalog() []domain.Shard {
	return []domain.Shard{
		{
			ID:        "na-east",
			Name:      "North America East",
			Bounds:    domain.BoundingBox{MinLon: -85, MinLat: 35, MaxLon: -65, MaxLat: 48},
			Endpoint:  "http://na-east.engines.local:5000",
			Readiness: domain.ReadinessReady,
			Artifact:  "s3://graphs/na-east/initial",
		},
		{
			ID:        "na-central",
			Name:      "North America Central",
			Bounds:    domain.BoundingBox{MinLon: -105, MinLat: 30, MaxLon: -83, MaxLat: 48},
			Endpoint:  "http://na-central.engines.local:5000",
			Readiness: domain.ReadinessReady,
		},
		{
			ID:        "eu-west",
			Name:      "Western Europe",
			Bounds:    domain.BoundingBox{MinLon: -10, MinLat: 36, MaxLon: 8, MaxLat: 59},
			Endpoint:  "http://eu-west.engines.local:5000",
			Readiness: domain.ReadinessReady,
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	reg, err := usecases.NewRegistryService(testCatalog())
	if err != nil {
		t.Fatalf("NewRegistryService: %v", err)
	}

	// Manhattan sits only in na-east.
	shards, err := reg.Lookup(domain.Coordinate{Lon: -73.989, Lat: 40.733})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(shards) != 1 || shards[0].ID != "na-east" {
		t.Fatalf("expected [na-east], got %+v", shards)
	}

	// The na-east / na-central overlap strip returns both, catalog order.
	shards, err = reg.Lookup(domain.Coordinate{Lon: -84, Lat: 40})
	if err != nil {
		t.Fatalf("Lookup overlap: %v", err)
	}
	if len(shards) != 2 || shards[0].ID != "na-east" || shards[1].ID != "na-central" {
		t.Fatalf("expected [na-east na-central], got %+v", shards)
	}

	// Box edges count as inside.
	if _, err := reg.Lookup(domain.Coordinate{Lon: -65, Lat: 48}); err != nil {
		t.Fatalf("Lookup on edge: %v", err)
	}

	// Mid-Atlantic is covered by nothing.
	_, err = reg.Lookup(domain.Coordinate{Lon: -40, Lat: 45})
	var noCov *domain.NoShardCoverageError
	if !errors.As(err, &noCov) {
		t.Fatalf("expected NoShardCoverageError, got %v", err)
	}
}

func TestRegistryValidation(t *testing.T) {
	cases := []struct {
		name   string
		shards []domain.Shard
	}{
		{"empty catalog", nil},
		{"missing id", []domain.Shard{{Bounds: domain.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, Endpoint: "http://x"}}},
		{"duplicate id", []domain.Shard{
			{ID: "a", Bounds: domain.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, Endpoint: "http://x"},
			{ID: "a", Bounds: domain.BoundingBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}, Endpoint: "http://y"},
		}},
		{"inverted bounds", []domain.Shard{{ID: "a", Bounds: domain.BoundingBox{MinLon: 5, MinLat: 0, MaxLon: 1, MaxLat: 1}, Endpoint: "http://x"}}},
		{"missing endpoint", []domain.Shard{{ID: "a", Bounds: domain.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := usecases.NewRegistryService(tc.shards); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestRegistrySetReadiness(t *testing.T) {
	reg, err := usecases.NewRegistryService(testCatalog())
	if err != nil {
		t.Fatalf("NewRegistryService: %v", err)
	}

	if err := reg.SetReadiness("na-east", domain.ReadinessBuilding, ""); err != nil {
		t.Fatalf("SetReadiness: %v", err)
	}
	s, err := reg.Get("na-east")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Readiness != domain.ReadinessBuilding {
		t.Errorf("readiness = %s, want BUILDING", s.Readiness)
	}
	// The old artifact keeps serving while a rebuild is in flight.
	if s.Artifact != "s3://graphs/na-east/initial" {
		t.Errorf("artifact changed during rebuild: %s", s.Artifact)
	}

	if err := reg.SetReadiness("na-east", domain.ReadinessReady, "s3://graphs/na-east/run-2"); err != nil {
		t.Fatalf("SetReadiness READY: %v", err)
	}
	s, _ = reg.Get("na-east")
	if s.Artifact != "s3://graphs/na-east/run-2" {
		t.Errorf("artifact not swapped on READY: %s", s.Artifact)
	}

	if err := reg.SetReadiness("na-east", "DRAINING", ""); err == nil {
		t.Error("expected error for unknown readiness state")
	}
	if err := reg.SetReadiness("atlantis", domain.ReadinessReady, ""); err == nil {
		t.Error("expected error for unknown shard")
	}
}
