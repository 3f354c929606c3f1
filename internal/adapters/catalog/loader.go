// Package catalog loads the shard catalog from its YAML definition file.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

type catalogFile struct {
	// Version tracks catalog revisions for operators; the loader accepts any.
	Version int          `yaml:"version"`
	Shards  []shardEntry `yaml:"shards"`
}

type shardEntry struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Bounds struct {
		MinLon float64 `yaml:"min_lon"`
		MinLat float64 `yaml:"min_lat"`
		MaxLon float64 `yaml:"max_lon"`
		MaxLat float64 `yaml:"max_lat"`
	} `yaml:"bounds"`
	Endpoint  string `yaml:"endpoint"`
	Readiness string `yaml:"readiness"`
	Artifact  string `yaml:"artifact"`
}

// Load reads a shard catalog file. File order is preserved; it is the final
// tie-break for overlapping shard boxes. Entries without an explicit
// readiness state start as READY, since catalog entries describe deployed
// engines.
func Load(path string) ([]domain.Shard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shard catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes shard catalog YAML.
func Parse(data []byte) ([]domain.Shard, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse shard catalog: %w", err)
	}
	if len(file.Shards) == 0 {
		return nil, fmt.Errorf("shard catalog has no shards")
	}

	shards := make([]domain.Shard, 0, len(file.Shards))
	for _, e := range file.Shards {
		readiness := domain.ReadinessState(e.Readiness)
		if e.Readiness == "" {
			readiness = domain.ReadinessReady
		}
		switch readiness {
		case domain.ReadinessBuilding, domain.ReadinessReady, domain.ReadinessStale, domain.ReadinessFailed:
		default:
			return nil, fmt.Errorf("shard %q: unknown readiness state %q", e.ID, e.Readiness)
		}
		shards = append(shards, domain.Shard{
			ID:   e.ID,
			Name: e.Name,
			Bounds: domain.BoundingBox{
				MinLon: e.Bounds.MinLon,
				MinLat: e.Bounds.MinLat,
				MaxLon: e.Bounds.MaxLon,
				MaxLat: e.Bounds.MaxLat,
			},
			Endpoint:  e.Endpoint,
			Readiness: readiness,
			Artifact:  e.Artifact,
		})
	}
	return shards, nil
}
