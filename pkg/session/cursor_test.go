package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/tidewatch/pkg/session"
)

func TestCursorFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")

	cf := session.NewCursorFile(path)
	assert.Equal(t, session.CursorState{}, cf.Load())

	cf.Set("sess-1", 42)

	reloaded := session.NewCursorFile(path)
	assert.Equal(t, session.CursorState{SessionID: "sess-1", Cursor: 42}, reloaded.Load())
}

func TestCursorFile_SessionAndCursorChangeTogether(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	cf := session.NewCursorFile(path)
	cf.Set("sess-1", 7)
	cf.Set("sess-2", 0)

	state := session.NewCursorFile(path).Load()
	assert.Equal(t, "sess-2", state.SessionID)
	assert.Zero(t, state.Cursor)
}

func TestCursorFile_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	cf := session.NewCursorFile(path)
	assert.Equal(t, session.CursorState{}, cf.Load())
}

func TestCursorFile_DegradesToMemoryWhenUnwritable(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes every write fail
	path := filepath.Join(dir, "session.json")
	require.NoError(t, os.MkdirAll(path, 0755))

	cf := session.NewCursorFile(path)
	cf.Set("sess-1", 3)
	cf.Set("sess-1", 4)

	// State survives in memory for this process even though persisting failed
	assert.Equal(t, session.CursorState{SessionID: "sess-1", Cursor: 4}, cf.Load())
}
