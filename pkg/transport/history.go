package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// History is the durable record of a finished (or abandoned) run: the raw
// frames exactly as they were streamed, to be decoded one by one.
type History struct {
	Available bool     `json:"available"`
	Frames    []string `json:"messages"`
}

// FetchHistory retrieves up to limit persisted frames for a session
func (c *Client) FetchHistory(ctx context.Context, sessionID string, limit int) (History, error) {
	url := fmt.Sprintf("%s/api/chat/history/%s?limit=%d", c.baseURL, sessionID, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return History{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.statusClient.Do(req)
	if err != nil {
		return History{}, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return History{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return History{}, fmt.Errorf("history request failed with status %d", resp.StatusCode)
	}

	var history History
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return History{}, fmt.Errorf("failed to decode history response: %w", err)
	}
	return history, nil
}
