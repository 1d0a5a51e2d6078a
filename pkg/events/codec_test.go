package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/tidewatch/pkg/events"
)

func TestDecodeFrame_MessageChunk(t *testing.T) {
	frame := "event: message_chunk\ndata: {\"thread_id\":\"t1\",\"id\":\"m1\",\"agent\":\"planner\",\"role\":\"assistant\",\"content\":\"Hello\"}"

	env, ok := events.DecodeFrame(frame)
	require.True(t, ok)
	assert.Equal(t, events.KindMessageChunk, env.Kind)

	chunk, ok := env.Payload.(events.MessageChunk)
	require.True(t, ok)
	assert.Equal(t, "t1", chunk.SessionID)
	assert.Equal(t, "m1", chunk.MessageID)
	assert.Equal(t, "planner", chunk.Agent)
	assert.Equal(t, "Hello", chunk.Content)
	assert.Empty(t, chunk.FinishReason)
}

func TestDecodeFrame_CRLF(t *testing.T) {
	frame := "event: message_chunk\r\ndata: {\"thread_id\":\"t1\",\"id\":\"m1\",\"content\":\"hi\"}\r\n"

	env, ok := events.DecodeFrame(frame)
	require.True(t, ok)

	chunk := env.Payload.(events.MessageChunk)
	assert.Equal(t, "hi", chunk.Content)
}

func TestDecodeFrame_MalformedJSON(t *testing.T) {
	_, ok := events.DecodeFrame("event: message_chunk\ndata: {not json")
	assert.False(t, ok)
}

func TestDecodeFrame_MissingDataLine(t *testing.T) {
	_, ok := events.DecodeFrame("event: message_chunk")
	assert.False(t, ok)
}

func TestDecodeFrame_UnknownKind(t *testing.T) {
	_, ok := events.DecodeFrame("event: telemetry\ndata: {}")
	assert.False(t, ok)
}

func TestDecodeFrame_ErrorPayload(t *testing.T) {
	env, ok := events.DecodeFrame("event: error\ndata: {\"thread_id\":\"t1\",\"reason\":\"cancelled\"}")
	require.True(t, ok)

	streamErr := env.Payload.(events.StreamError)
	assert.True(t, streamErr.IsCancellation())

	env, ok = events.DecodeFrame("event: error\ndata: {\"thread_id\":\"t1\",\"reason\":\"boom\",\"detail\":\"model unavailable\"}")
	require.True(t, ok)
	assert.False(t, env.Payload.(events.StreamError).IsCancellation())
}

func TestDecodeFrame_Citations(t *testing.T) {
	env, ok := events.DecodeFrame("event: citations\ndata: {\"thread_id\":\"t1\",\"citations\":[{\"url\":\"https://a\",\"title\":\"A\"}]}")
	require.True(t, ok)

	set := env.Payload.(events.CitationSet)
	require.Len(t, set.Citations, 1)
	assert.Equal(t, "https://a", set.Citations[0].URL)
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	original := events.Envelope{
		Kind: events.KindMessageChunk,
		Payload: events.MessageChunk{
			SessionID: "t1",
			MessageID: "m1",
			Content:   "chunked text",
		},
	}

	frame, err := events.EncodeFrame(original)
	require.NoError(t, err)

	decoded, ok := events.DecodeFrame(frame)
	require.True(t, ok)
	assert.Equal(t, original, decoded)
}

func TestFrameBuffer_SplitAcrossChunks(t *testing.T) {
	var fb events.FrameBuffer

	frames := fb.Write("event: message_chunk\nda")
	assert.Empty(t, frames)

	frames = fb.Write("ta: {\"id\":\"m1\"}\n\nevent: message_chunk\n")
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], "\"m1\"")

	frames = fb.Write("data: {\"id\":\"m2\"}\n\n")
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], "\"m2\"")
	assert.Empty(t, fb.Pending())
}

func TestFrameBuffer_MultipleFramesInOneChunk(t *testing.T) {
	var fb events.FrameBuffer

	frames := fb.Write("event: a\ndata: {}\n\nevent: b\ndata: {}\n\nevent: c\n")
	require.Len(t, frames, 2)
	assert.Equal(t, "event: c\n", fb.Pending())
}

func TestFrameBuffer_CRLFSeparators(t *testing.T) {
	var fb events.FrameBuffer

	frames := fb.Write("event: message_chunk\r\ndata: {\"id\":\"m1\"}\r\n\r\n")
	require.Len(t, frames, 1)

	env, ok := events.DecodeFrame(frames[0])
	require.True(t, ok)
	assert.Equal(t, "m1", env.Payload.(events.MessageChunk).MessageID)
}
