package events

// Kind identifies the type of an event envelope on the wire
type Kind string

const (
	KindMessageChunk   Kind = "message_chunk"
	KindToolCall       Kind = "tool_call"
	KindToolCallResult Kind = "tool_call_result"
	KindCitations      Kind = "citations"
	KindInterrupt      Kind = "interrupt"
	KindError          Kind = "error"
)

// knownKinds is the closed set of kinds the codec will decode.
// Frames carrying anything else are skipped.
var knownKinds = map[Kind]bool{
	KindMessageChunk:   true,
	KindToolCall:       true,
	KindToolCallResult: true,
	KindCitations:      true,
	KindInterrupt:      true,
	KindError:          true,
}

// Envelope is one typed unit of the event stream. Payload holds the
// decoded per-kind struct (MessageChunk, ToolCall, ToolCallResult,
// CitationSet, Interrupt or StreamError).
type Envelope struct {
	Kind    Kind
	Payload any
}

// MessageChunk carries an incremental fragment of a streaming message.
// A non-empty FinishReason marks the message as terminated.
type MessageChunk struct {
	SessionID    string `json:"thread_id"`
	MessageID    string `json:"id"`
	Agent        string `json:"agent,omitempty"`
	Role         string `json:"role,omitempty"`
	Content      string `json:"content,omitempty"`
	Reasoning    string `json:"reasoning_content,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ToolCall announces a tool invocation issued by a message
type ToolCall struct {
	SessionID  string         `json:"thread_id"`
	MessageID  string         `json:"id"`
	Agent      string         `json:"agent,omitempty"`
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args,omitempty"`
}

// ToolCallResult carries the output of a previously announced tool call.
// It is correlated by ToolCallID, not by message id.
type ToolCallResult struct {
	SessionID  string `json:"thread_id"`
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result,omitempty"`
}

// Citation is a single source reference gathered during research
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// CitationSet replaces the citation set of the ongoing research unit
type CitationSet struct {
	SessionID string     `json:"thread_id"`
	Citations []Citation `json:"citations"`
}

// InterruptOption is one of the choices offered while a run is paused
// for human feedback
type InterruptOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Interrupt pauses the run and asks the user how to proceed
type Interrupt struct {
	SessionID    string            `json:"thread_id"`
	MessageID    string            `json:"id"`
	Agent        string            `json:"agent,omitempty"`
	Role         string            `json:"role,omitempty"`
	Content      string            `json:"content,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Options      []InterruptOption `json:"options,omitempty"`
}

// ReasonCancelled marks an upstream error caused by a user-initiated
// cancellation. It is silent downstream.
const ReasonCancelled = "cancelled"

// StreamError signals that the run failed or was cancelled upstream
type StreamError struct {
	SessionID string `json:"thread_id"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// IsCancellation reports whether the error represents a user-initiated
// stop rather than a genuine failure
func (e StreamError) IsCancellation() bool {
	return e.Reason == ReasonCancelled
}
