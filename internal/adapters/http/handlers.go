package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/pkg/metrics"
)

// RouteHandler answers route queries.
// GET /v1/route?waypoints=-73.989,40.733;-73.982,40.742&profile=car
// Waypoints are semicolon-separated lon,lat pairs, at least two.
func RouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		profile := c.Query("profile", domain.ProfileCar)

		waypoints, err := parseWaypoints(c.Query("waypoints"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		req := domain.RouteRequest{Profile: profile, Waypoints: waypoints}
		if err := req.Validate(); err != nil {
			return errBadRequest(c, err.Error())
		}

		resp, err := deps.Router.Route(c.Context(), req)
		if err != nil {
			metrics.RouteQueriesTotal.WithLabelValues(profile, "error").Inc()
			return mapRoutingError(c, err)
		}
		metrics.RouteQueriesTotal.WithLabelValues(profile, "ok").Inc()

		c.Set("Cache-Control", "public, max-age=120")
		return c.JSON(resp)
	}
}

// parseWaypoints parses a semicolon-separated list of lon,lat pairs.
func parseWaypoints(raw string) ([]domain.Coordinate, error) {
	if raw == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "waypoints query parameter is required")
	}

	parts := strings.Split(raw, ";")
	if len(parts) > 50 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "maximum 50 waypoints allowed")
	}

	waypoints := make([]domain.Coordinate, 0, len(parts))
	for i, part := range parts {
		fields := strings.Split(strings.TrimSpace(part), ",")
		if len(fields) != 2 {
			return nil, fiber.NewError(fiber.StatusBadRequest,
				"waypoint "+strconv.Itoa(i)+" must be lon,lat")
		}
		lon, lonErr := strconv.ParseFloat(fields[0], 64)
		lat, latErr := strconv.ParseFloat(fields[1], 64)
		if lonErr != nil || latErr != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest,
				"waypoint "+strconv.Itoa(i)+" has non-numeric coordinates")
		}
		waypoints = append(waypoints, domain.Coordinate{Lon: lon, Lat: lat})
	}
	return waypoints, nil
}

// ListShardsHandler returns the shard catalog with live readiness states.
func ListShardsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		shards := deps.Registry.All()
		c.Set("Cache-Control", "public, max-age=30")
		return c.JSON(fiber.Map{
			"shards": shards,
			"count":  len(shards),
		})
	}
}

// GetShardHandler returns a single shard by ID.
func GetShardHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "shard id is required")
		}
		shard, err := deps.Registry.Get(id)
		if err != nil {
			return errNotFound(c, "shard not found")
		}
		return c.JSON(shard)
	}
}

// ListBuildsHandler returns recent build pipeline runs, newest first.
// GET /v1/builds?shard=na-east&offset=0&limit=50
func ListBuildsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Builds == nil {
			return errInternal(c, "build history not available")
		}

		shardID := c.Query("shard")
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		runs, err := deps.Builds.ListRuns(c.Context(), shardID, offset+limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		total := len(runs)
		if offset >= total {
			runs = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			runs = runs[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: runs, Pagination: pg})
	}
}

// GetBuildHandler returns a single build run by ID.
func GetBuildHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Builds == nil {
			return errInternal(c, "build history not available")
		}
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "build run id is required")
		}
		run, err := deps.Builds.GetRun(c.Context(), id)
		if err != nil {
			return errNotFound(c, "build run not found")
		}
		return c.JSON(run)
	}
}
