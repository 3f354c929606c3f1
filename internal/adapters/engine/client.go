// Package engine talks to per-shard routing engine backends over their HTTP
// API. The engine is a black box: ordered coordinates in, a path out.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/pkg/metrics"
)

// Client is an HTTP client for shard engine backends.
type Client struct {
	http *http.Client
}

// NewClient creates a Client. The timeout bounds each individual engine call.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Route queries one engine backend for a route through the given waypoints.
// Engine-reported routing errors come back as *domain.BackendError with the
// engine's code and message untouched; deadline overruns come back as
// *domain.BackendTimeoutError.
func (c *Client) Route(ctx context.Context, endpoint string, req domain.RouteRequest) (*domain.RouteResponse, error) {
	url := routeURL(endpoint, req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.EngineRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			metrics.EngineRequestErrors.WithLabelValues(endpoint, "timeout").Inc()
			return nil, &domain.BackendTimeoutError{Endpoint: endpoint, Err: err}
		}
		metrics.EngineRequestErrors.WithLabelValues(endpoint, "transport").Inc()
		return nil, fmt.Errorf("engine %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		metrics.EngineRequestErrors.WithLabelValues(endpoint, "transport").Inc()
		return nil, fmt.Errorf("engine %s: read response: %w", endpoint, err)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		metrics.EngineRequestErrors.WithLabelValues(endpoint, "transport").Inc()
		return nil, fmt.Errorf("engine %s: status %d with undecodable body", endpoint, resp.StatusCode)
	}

	if wire.Code != "Ok" {
		metrics.EngineRequestErrors.WithLabelValues(endpoint, "semantic").Inc()
		return nil, &domain.BackendError{Code: wire.Code, Message: wire.Message}
	}
	if len(wire.Routes) == 0 {
		metrics.EngineRequestErrors.WithLabelValues(endpoint, "semantic").Inc()
		return nil, &domain.BackendError{Code: "NoRoute", Message: "engine returned no routes"}
	}
	return wire.toDomain(), nil
}

// routeURL builds the engine query URL. Coordinates go in the path as
// lon,lat pairs separated by semicolons.
func routeURL(endpoint string, req domain.RouteRequest) string {
	var coords strings.Builder
	for i, w := range req.Waypoints {
		if i > 0 {
			coords.WriteByte(';')
		}
		fmt.Fprintf(&coords, "%f,%f", w.Lon, w.Lat)
	}
	return fmt.Sprintf("%s/route/v1/%s/%s?steps=true&geometries=geojson&overview=full",
		strings.TrimSuffix(endpoint, "/"), req.Profile, coords.String())
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Wire types for the engine's JSON response.

type wireResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message,omitempty"`
	Routes    []wireRoute    `json:"routes"`
	Waypoints []wireWaypoint `json:"waypoints"`
}

type wireRoute struct {
	Geometry wireGeometry `json:"geometry"`
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Legs     []wireLeg    `json:"legs"`
}

type wireGeometry struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type wireLeg struct {
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Summary  string     `json:"summary"`
	Steps    []wireStep `json:"steps"`
}

type wireStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Name     string       `json:"name"`
	Maneuver wireManeuver `json:"maneuver"`
}

type wireManeuver struct {
	Type     string     `json:"type"`
	Modifier string     `json:"modifier,omitempty"`
	Location [2]float64 `json:"location"`
}

type wireWaypoint struct {
	Location [2]float64 `json:"location"`
}

func (w *wireResponse) toDomain() *domain.RouteResponse {
	route := w.Routes[0]

	out := &domain.RouteResponse{
		Distance: route.Distance,
		Duration: route.Duration,
	}
	for _, c := range route.Geometry.Coordinates {
		out.Geometry.Coordinates = append(out.Geometry.Coordinates, domain.Coordinate{Lon: c[0], Lat: c[1]})
	}
	for _, leg := range route.Legs {
		l := domain.RouteLeg{
			Distance: leg.Distance,
			Duration: leg.Duration,
			Summary:  leg.Summary,
		}
		for _, step := range leg.Steps {
			instruction := step.Maneuver.Type
			if step.Maneuver.Modifier != "" {
				instruction += " " + step.Maneuver.Modifier
			}
			l.Steps = append(l.Steps, domain.RouteStep{
				Instruction: instruction,
				Name:        step.Name,
				Distance:    step.Distance,
				Duration:    step.Duration,
				Location:    domain.Coordinate{Lon: step.Maneuver.Location[0], Lat: step.Maneuver.Location[1]},
			})
		}
		out.Legs = append(out.Legs, l)
	}
	for _, wp := range w.Waypoints {
		out.Waypoints = append(out.Waypoints, domain.Coordinate{Lon: wp.Location[0], Lat: wp.Location[1]})
	}
	return out
}
