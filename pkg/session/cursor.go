package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidewatch/tidewatch/pkg/logger"
)

// CursorState is the locally persisted resume point: the active session
// identifier and the count of events already durably applied for it.
// The two always change together; persisting one without the other would
// let a reconnect replay or skip events.
type CursorState struct {
	SessionID string `json:"session_id"`
	Cursor    int    `json:"cursor"`
}

// CursorFile persists CursorState as a single JSON document. When the
// file cannot be written it degrades to in-memory-only cursoring for the
// life of the process instead of failing the session.
type CursorFile struct {
	mu       sync.Mutex
	path     string
	state    CursorState
	memOnly  bool
	warnOnce sync.Once
	log      *logger.Logger
}

// NewCursorFile loads persisted state from path, starting empty when the
// file is missing or unreadable
func NewCursorFile(path string) *CursorFile {
	cf := &CursorFile{path: path, log: logger.WithPrefix("cursor")}

	data, err := os.ReadFile(path)
	if err != nil {
		return cf
	}
	if err := json.Unmarshal(data, &cf.state); err != nil {
		cf.log.Warn("Ignoring unreadable session state file %s: %v", path, err)
		cf.state = CursorState{}
	}
	return cf
}

// Load returns the current state
func (cf *CursorFile) Load() CursorState {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.state
}

// Set records the session id and cursor together and persists immediately.
// A crash between apply and persist re-delivers at most one event, which
// the store's duplicate-append guard absorbs.
func (cf *CursorFile) Set(sessionID string, cursor int) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	cf.state = CursorState{SessionID: sessionID, Cursor: cursor}
	if cf.memOnly {
		return
	}

	if err := cf.write(); err != nil {
		cf.memOnly = true
		cf.warnOnce.Do(func() {
			cf.log.Warn("Session state not persistable, falling back to in-memory cursor: %v", err)
		})
	}
}

func (cf *CursorFile) write() error {
	if err := os.MkdirAll(filepath.Dir(cf.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(cf.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := os.WriteFile(cf.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}
