// Package batch talks to the remote batch-execution service that runs graph
// build jobs on worker fleets.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

// Client is an HTTP client for the batch job API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the batch service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type submitResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Submit enqueues one job and returns the backend's job identifier. A 4xx
// answer means the spec itself was rejected and comes back as
// *domain.JobSubmissionError, which the orchestrator treats as permanent.
func (c *Client) Submit(ctx context.Context, spec domain.JobSpec) (string, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode job spec: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out submitResponse
		if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
			return "", fmt.Errorf("submit job: undecodable response %q", truncate(body))
		}
		return out.ID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var e errorResponse
		msg := truncate(body)
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			msg = e.Message
		}
		return "", &domain.JobSubmissionError{
			ShardID: spec.ShardID,
			Kind:    spec.Kind,
			Err:     fmt.Errorf("batch API status %d: %s", resp.StatusCode, msg),
		}
	default:
		return "", fmt.Errorf("submit job: batch API status %d", resp.StatusCode)
	}
}

// Describe returns the backend's current view of a submitted job.
func (c *Client) Describe(ctx context.Context, remoteID string) (domain.JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+remoteID, nil)
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("build describe request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("describe job %s: %w", remoteID, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return domain.JobStatus{}, fmt.Errorf("describe job %s: batch API status %d", remoteID, resp.StatusCode)
	}

	var status domain.JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return domain.JobStatus{}, fmt.Errorf("describe job %s: undecodable response %q", remoteID, truncate(body))
	}
	return status, nil
}

// Cancel asks the backend to stop a job. Cancelling an already finished job
// is not an error.
func (c *Client) Cancel(ctx context.Context, remoteID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/jobs/"+remoteID, nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", remoteID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("cancel job %s: batch API status %d", remoteID, resp.StatusCode)
	}
	return nil
}

func truncate(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
