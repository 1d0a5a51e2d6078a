package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeFrame parses one SSE frame of the form
//
//	event: <kind>
//	data: <json>
//
// into an Envelope. CRLF line endings are tolerated. Malformed frames
// (missing data line, invalid JSON, unknown kind) return ok=false so the
// caller can skip them without tearing down the stream.
func DecodeFrame(frame string) (Envelope, bool) {
	var kind Kind
	var data string
	var hasData bool

	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			kind = Kind(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			hasData = true
		}
	}

	if !hasData || !knownKinds[kind] {
		return Envelope{}, false
	}

	payload := newPayload(kind)
	if err := json.Unmarshal([]byte(data), payload); err != nil {
		return Envelope{}, false
	}

	return Envelope{Kind: kind, Payload: deref(kind, payload)}, true
}

// EncodeFrame renders an envelope back into its wire form, used for
// history fixtures and tests
func EncodeFrame(env Envelope) (string, error) {
	data, err := json.Marshal(env.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", env.Kind, err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", env.Kind, data), nil
}

// EncodeRequest marshals a request payload into a wire body
func EncodeRequest(payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func newPayload(kind Kind) any {
	switch kind {
	case KindMessageChunk:
		return &MessageChunk{}
	case KindToolCall:
		return &ToolCall{}
	case KindToolCallResult:
		return &ToolCallResult{}
	case KindCitations:
		return &CitationSet{}
	case KindInterrupt:
		return &Interrupt{}
	case KindError:
		return &StreamError{}
	default:
		return nil
	}
}

// deref returns the payload by value so envelopes can be passed around
// and compared without sharing pointers
func deref(kind Kind, payload any) any {
	switch p := payload.(type) {
	case *MessageChunk:
		return *p
	case *ToolCall:
		return *p
	case *ToolCallResult:
		return *p
	case *CitationSet:
		return *p
	case *Interrupt:
		return *p
	case *StreamError:
		return *p
	default:
		return payload
	}
}

// FrameBuffer assembles complete frames from arbitrarily chunked stream
// reads. Frames are terminated by a blank line.
type FrameBuffer struct {
	buf strings.Builder
}

// Write appends a raw chunk and returns any frames completed by it,
// in order
func (fb *FrameBuffer) Write(chunk string) []string {
	fb.buf.WriteString(chunk)

	text := fb.buf.String()
	var frames []string
	for {
		idx := frameBreak(text)
		if idx.start < 0 {
			break
		}
		frame := text[:idx.start]
		if strings.TrimSpace(frame) != "" {
			frames = append(frames, frame)
		}
		text = text[idx.end:]
	}

	fb.buf.Reset()
	fb.buf.WriteString(text)
	return frames
}

// Pending returns any buffered text that never completed a frame
func (fb *FrameBuffer) Pending() string {
	return fb.buf.String()
}

type breakIndex struct {
	start, end int
}

// frameBreak locates the earliest blank-line separator, accepting both
// \n\n and \r\n\r\n
func frameBreak(text string) breakIndex {
	lf := strings.Index(text, "\n\n")
	crlf := strings.Index(text, "\r\n\r\n")

	switch {
	case lf < 0 && crlf < 0:
		return breakIndex{-1, -1}
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return breakIndex{crlf, crlf + 4}
	default:
		return breakIndex{lf, lf + 2}
	}
}
