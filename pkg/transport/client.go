package transport

import (
	"net/http"
	"time"

	"github.com/tidewatch/tidewatch/pkg/logger"
)

// Client talks to the research server. Status and history requests run on
// a bounded-timeout client; the long-lived streaming connections have no
// fixed timeout and run until natural completion or cancellation.
type Client struct {
	baseURL      string
	statusClient *http.Client
	streamClient *http.Client
	bufferSize   int
	log          *logger.Logger
}

// NewClient creates a new client with the default status timeout
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 5*time.Second)
}

// NewClientWithTimeout creates a new client with a custom timeout for
// status and history requests
func NewClientWithTimeout(baseURL string, statusTimeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		statusClient: &http.Client{Timeout: statusTimeout},
		streamClient: &http.Client{},
		bufferSize:   100,
		log:          logger.WithPrefix("transport"),
	}
}

// ChatMessage is one turn of user-visible input sent to the server
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest starts a new run. Beyond the message list and session
// identifier the fields are run configuration the server interprets.
type ChatRequest struct {
	SessionID         string        `json:"thread_id"`
	Messages          []ChatMessage `json:"messages"`
	MaxPlanIterations int           `json:"max_plan_iterations,omitempty"`
	MaxSearchResults  int           `json:"max_search_results,omitempty"`
	AutoAcceptPlan    bool          `json:"auto_accepted_plan,omitempty"`
	InterruptFeedback string        `json:"interrupt_feedback,omitempty"`
}
