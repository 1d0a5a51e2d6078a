package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Run status values reported by the server
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusNotFound  = "not-found"
)

// RunStatus describes the server-side state of a workflow run
type RunStatus struct {
	Status     string `json:"status"`
	EventCount int    `json:"event_count"`
}

// QueryRunStatus asks the server whether a run for the session is still
// in flight and how many events it has buffered. Callers treat any error
// as not-found; that fails safe toward starting fresh.
func (c *Client) QueryRunStatus(ctx context.Context, sessionID string) (RunStatus, error) {
	url := fmt.Sprintf("%s/api/chat/stream/%s/status", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RunStatus{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.statusClient.Do(req)
	if err != nil {
		return RunStatus{}, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return RunStatus{Status: StatusNotFound}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return RunStatus{}, fmt.Errorf("status request failed with status %d", resp.StatusCode)
	}

	var status RunStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return RunStatus{}, fmt.Errorf("failed to decode status response: %w", err)
	}
	return status, nil
}
