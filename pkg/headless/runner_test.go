package headless_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/tidewatch/pkg/config"
	"github.com/tidewatch/tidewatch/pkg/headless"
	"github.com/tidewatch/tidewatch/pkg/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{URL: "http://localhost:0", StatusTimeout: time.Second},
		Stream: config.StreamConfig{FlushInterval: time.Millisecond, BufferSize: 10},
		Session: config.SessionConfig{
			StateFile:    filepath.Join(t.TempDir(), "session.json"),
			HistoryLimit: 100,
		},
	}
}

func TestRunner_SwitchSessionActivatesExistingConversation(t *testing.T) {
	cfg := testConfig(t)
	config.Set(cfg)

	runner, err := headless.NewRunner()
	require.NoError(t, err)

	runner.SwitchSession("sess-elsewhere")

	assert.Equal(t, "sess-elsewhere", runner.Controller().SessionID())

	// The switch is durable: a later cold start resumes the chosen session
	state := session.NewCursorFile(cfg.Session.StateFile).Load()
	assert.Equal(t, session.CursorState{SessionID: "sess-elsewhere", Cursor: 0}, state)
}

func TestRunner_NewSessionAbandonsPersistedOne(t *testing.T) {
	cfg := testConfig(t)
	session.NewCursorFile(cfg.Session.StateFile).Set("sess-old", 9)
	config.Set(cfg)

	runner, err := headless.NewRunner()
	require.NoError(t, err)
	require.Equal(t, "sess-old", runner.Controller().SessionID())

	id := runner.NewSession()
	assert.NotEmpty(t, id)
	assert.NotEqual(t, "sess-old", id)
	assert.Equal(t, id, runner.Controller().SessionID())
	assert.Zero(t, runner.Controller().Cursor())
}
