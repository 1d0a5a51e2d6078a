package session

import (
	"time"

	"github.com/tidewatch/tidewatch/pkg/events"
)

// Merge folds one envelope into a message, returning an updated copy.
// It never mutates prior, so callers can diff old against new. It trusts
// the transport layer for ordering and absence of replays; deduplication
// is the cursor's job, not the reducer's.
//
// Envelope kinds that are not message-scoped (tool_call_result, citations,
// error) are handled by the Store and Controller; passing them here
// returns prior unchanged.
func Merge(prior *Message, env events.Envelope) *Message {
	switch p := env.Payload.(type) {
	case events.MessageChunk:
		return mergeChunk(prior, p)
	case events.ToolCall:
		return mergeToolCall(prior, p)
	case events.Interrupt:
		return mergeInterrupt(prior, p)
	default:
		return prior.Clone()
	}
}

func mergeChunk(prior *Message, chunk events.MessageChunk) *Message {
	msg := priorOrNew(prior, chunk.MessageID, chunk.SessionID, chunk.Role, chunk.Agent)

	// A terminated message never resumes streaming; late deltas are no-ops
	if !msg.Streaming {
		return msg
	}

	if chunk.Content != "" {
		msg.ContentChunks = append(msg.ContentChunks, chunk.Content)
		msg.Content += chunk.Content
	}
	if chunk.Reasoning != "" {
		msg.ReasoningChunks = append(msg.ReasoningChunks, chunk.Reasoning)
		msg.Reasoning += chunk.Reasoning
	}
	if chunk.FinishReason != "" {
		msg.Streaming = false
		msg.FinishReason = chunk.FinishReason
	}
	return msg
}

func mergeToolCall(prior *Message, call events.ToolCall) *Message {
	msg := priorOrNew(prior, call.MessageID, call.SessionID, "", call.Agent)

	msg.ToolCalls = append(msg.ToolCalls, ToolInvocation{
		ID:   call.ToolCallID,
		Name: call.Name,
		Args: call.Args,
	})
	return msg
}

func mergeInterrupt(prior *Message, intr events.Interrupt) *Message {
	msg := priorOrNew(prior, intr.MessageID, intr.SessionID, intr.Role, intr.Agent)

	if intr.Content != "" {
		msg.ContentChunks = append(msg.ContentChunks, intr.Content)
		msg.Content += intr.Content
	}
	msg.Options = append([]events.InterruptOption(nil), intr.Options...)
	msg.Streaming = false
	msg.FinishReason = FinishInterrupt
	return msg
}

// MergeToolResult attaches a tool result to the invocation with the
// matching id, returning an updated copy, or nil when the message does
// not own that invocation.
func MergeToolResult(prior *Message, result events.ToolCallResult) *Message {
	if prior == nil {
		return nil
	}
	for i, tc := range prior.ToolCalls {
		if tc.ID == result.ToolCallID {
			msg := prior.Clone()
			msg.ToolCalls[i].Result = result.Result
			return msg
		}
	}
	return nil
}

func priorOrNew(prior *Message, id, sessionID, role, agent string) *Message {
	if prior != nil {
		return prior.Clone()
	}
	if role == "" {
		role = RoleAssistant
	}
	return &Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Agent:     agent,
		Streaming: true,
		Timestamp: time.Now(),
	}
}
