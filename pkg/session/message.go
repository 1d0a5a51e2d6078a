package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidewatch/tidewatch/pkg/events"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Agent attributions carried on assistant messages. Researcher and coder
// are delegated, non-interactive agents; their output is grouped into
// research units. The reporter synthesizes the final report for a unit.
const (
	AgentCoordinator = "coordinator"
	AgentPlanner     = "planner"
	AgentResearcher  = "researcher"
	AgentCoder       = "coder"
	AgentReporter    = "reporter"
)

// Finish reasons recorded when a message stops streaming
const (
	FinishStop      = "stop"
	FinishInterrupt = "interrupt"
	FinishToolCalls = "tool_calls"
)

// ToolInvocation is one tool call issued by a message, with its result
// once the matching tool_call_result arrives
type ToolInvocation struct {
	ID     string
	Name   string
	Args   map[string]any
	Result string
}

// Message is the client-side reconstruction of one streamed message.
// Content is always the concatenation of ContentChunks in arrival order,
// and Streaming transitions true to false exactly once.
type Message struct {
	ID              string
	SessionID       string
	Role            string
	Agent           string
	Content         string
	ContentChunks   []string
	Reasoning       string
	ReasoningChunks []string
	ToolCalls       []ToolInvocation
	Streaming       bool
	FinishReason    string
	Options         []events.InterruptOption
	Timestamp       time.Time
}

// NewUserMessage creates the optimistic local message appended before any
// server round-trip
func NewUserMessage(sessionID, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleUser,
		Content:   strings.TrimSpace(content),
		Timestamp: time.Now(),
	}
}

// IsResearchAgent reports whether the agent is a delegated, non-interactive
// agent whose messages belong to a research unit
func IsResearchAgent(agent string) bool {
	return agent == AgentResearcher || agent == AgentCoder
}

func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsInterrupted reports whether the message ended on a pause marker and
// the run is waiting for human feedback
func (m *Message) IsInterrupted() bool {
	return m.FinishReason == FinishInterrupt
}

// IsPlaceholder reports whether the message is an empty, still-streaming
// shell with nothing to show yet
func (m *Message) IsPlaceholder() bool {
	return m.Streaming && m.Content == "" && m.Reasoning == "" && len(m.ToolCalls) == 0
}

// Clone returns a deep copy so callers can diff against prior state
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.ContentChunks = append([]string(nil), m.ContentChunks...)
	clone.ReasoningChunks = append([]string(nil), m.ReasoningChunks...)
	clone.Options = append([]events.InterruptOption(nil), m.Options...)
	clone.ToolCalls = make([]ToolInvocation, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		clone.ToolCalls[i] = tc
		if tc.Args != nil {
			args := make(map[string]any, len(tc.Args))
			for k, v := range tc.Args {
				args[k] = v
			}
			clone.ToolCalls[i].Args = args
		}
	}
	return &clone
}
