package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidewatch/tidewatch/pkg/events"
)

// OpenLiveStream starts a fresh run and returns the resulting envelope
// sequence. The channel closes when the stream ends for any reason:
// natural completion, network failure (silent end) or cancellation of ctx.
func (c *Client) OpenLiveStream(ctx context.Context, req ChatRequest) (<-chan events.Envelope, error) {
	body, err := events.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/chat/stream", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	return c.openStream(ctx, httpReq)
}

// OpenReconnectStream attaches to an already-running (or buffered) run,
// replaying from the given cursor. The server filters; the client never
// skips frames itself.
func (c *Client) OpenReconnectStream(ctx context.Context, sessionID string, fromCursor int) (<-chan events.Envelope, error) {
	url := fmt.Sprintf("%s/api/chat/stream/%s?cursor=%d", c.baseURL, sessionID, fromCursor)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	return c.openStream(ctx, httpReq)
}

func (c *Client) openStream(ctx context.Context, req *http.Request) (<-chan events.Envelope, error) {
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errorBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
		}

		var errorResp struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(errorBody, &errorResp) == nil && errorResp.Detail != "" {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errorResp.Detail)
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(errorBody))
	}

	envelopes := make(chan events.Envelope, c.bufferSize)
	go c.readStream(ctx, resp.Body, envelopes)
	return envelopes, nil
}

// readStream pumps decoded frames until the body ends or ctx is
// cancelled. All terminal failures end the sequence silently; a genuine
// abort is a clean stop, not a failure.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, envelopes chan<- events.Envelope) {
	defer close(envelopes)
	defer body.Close()

	var frames events.FrameBuffer
	buf := make([]byte, 4096)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range frames.Write(string(buf[:n])) {
				env, ok := events.DecodeFrame(frame)
				if !ok {
					c.log.Warn("Skipping malformed frame (%d bytes)", len(frame))
					continue
				}
				select {
				case envelopes <- env:
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				// A server may close without terminating the final frame;
				// deliver it if it decodes as a whole one
				if env, ok := events.DecodeFrame(frames.Pending()); ok {
					select {
					case envelopes <- env:
					case <-ctx.Done():
					}
				}
			} else if !isAbort(ctx, err) {
				c.log.Warn("Stream read ended: %v", err)
			}
			return
		}
	}
}

// isAbort distinguishes cooperative cancellation from a real network
// failure
func isAbort(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
