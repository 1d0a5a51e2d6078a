package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidewatch/tidewatch/pkg/events"
	"github.com/tidewatch/tidewatch/pkg/logger"
	"github.com/tidewatch/tidewatch/pkg/transport"
)

// State is the controller's lifecycle position
type State int

const (
	StateIdle State = iota
	StateDeciding
	StateLiveRun
	StateReconnecting
	StateReplaying
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeciding:
		return "deciding"
	case StateLiveRun:
		return "live-run"
	case StateReconnecting:
		return "reconnecting"
	case StateReplaying:
		return "replaying"
	default:
		return "unknown"
	}
}

// Transport is the stream-producing surface the controller drives.
// *transport.Client satisfies it; tests substitute fakes.
type Transport interface {
	OpenLiveStream(ctx context.Context, req transport.ChatRequest) (<-chan events.Envelope, error)
	OpenReconnectStream(ctx context.Context, sessionID string, fromCursor int) (<-chan events.Envelope, error)
	QueryRunStatus(ctx context.Context, sessionID string) (transport.RunStatus, error)
	FetchHistory(ctx context.Context, sessionID string, limit int) (transport.History, error)
}

// Options tunes the controller. Zero values fall back to sane defaults.
type Options struct {
	StatusTimeout     time.Duration
	FlushInterval     time.Duration
	HistoryLimit      int
	MaxPlanIterations int
	MaxSearchResults  int
	AutoAcceptPlan    bool

	// OnNotice receives user-visible failure notices. User-initiated
	// cancellations never produce one.
	OnNotice func(string)
	// OnFlush fires after each batched store write, for rendering
	OnFlush func()
}

// Controller orchestrates the session lifecycle: deciding whether a turn
// starts a fresh run, reconnects to one already in flight, or replays a
// finished one, and owning the local cursor bookkeeping while a stream is
// consumed. The store is mutated only by the controller's consumer loop
// and the optimistic append inside Send.
type Controller struct {
	transport Transport
	store     *Store
	cursor    *CursorFile
	batcher   *Batcher
	opts      Options
	log       *logger.Logger

	mu           sync.Mutex
	state        State
	responding   bool
	sessionID    string
	count        int
	cancelStream context.CancelFunc
	streamDone   chan struct{}
}

// NewController wires a controller over a transport, store and persisted
// cursor. The previously active session, if any, is picked up from the
// cursor file.
func NewController(t Transport, store *Store, cursor *CursorFile, opts Options) *Controller {
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 5 * time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 33 * time.Millisecond
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 1000
	}

	done := make(chan struct{})
	close(done)

	c := &Controller{
		transport:  t,
		store:      store,
		cursor:     cursor,
		opts:       opts,
		log:        logger.WithPrefix("controller"),
		sessionID:  cursor.Load().SessionID,
		count:      cursor.Load().Cursor,
		streamDone: done,
	}
	c.batcher = NewBatcher(opts.FlushInterval, c.flushBatch)
	return c
}

// SessionID returns the active session identifier
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the controller's current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Responding reports whether a stream is being consumed
func (c *Controller) Responding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responding
}

// Cursor returns the count of events applied for the active session
func (c *Controller) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// SendOptions carries per-turn overrides
type SendOptions struct {
	// InterruptFeedback resumes a paused plan with the chosen option
	InterruptFeedback string
}

// Send submits a new user turn. The user message appears in the store
// immediately, before any network round-trip. If a run is already in
// flight for the session the controller reconnects to it instead of
// starting a duplicate; otherwise it opens a fresh run from cursor zero.
// Send blocks until the stream ends; Stop cancels it from elsewhere.
func (c *Controller) Send(ctx context.Context, text string, opts SendOptions) error {
	c.mu.Lock()
	if c.responding {
		c.mu.Unlock()
		return fmt.Errorf("already responding on session %s", c.sessionID)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
		c.count = 0
		c.cursor.Set(c.sessionID, 0)
	}
	sessionID := c.sessionID
	c.state = StateDeciding
	c.responding = true
	c.mu.Unlock()

	if text != "" {
		c.store.AppendMessage(NewUserMessage(sessionID, text))
		c.notifyFlush()
	}

	status := c.queryStatus(ctx, sessionID)

	var envelopes <-chan events.Envelope
	var err error
	streamCtx, finish := c.beginStream(ctx)

	if status.Status == transport.StatusRunning {
		// A run is already in flight: attach to it rather than starting a
		// duplicate. After a reload the store is empty and the replay has
		// to start from zero regardless of what was persisted.
		from := c.reconcileCursor(sessionID)
		c.setState(StateReconnecting)
		c.log.Info("Reconnecting session %s from cursor %d", sessionID, from)
		envelopes, err = c.transport.OpenReconnectStream(streamCtx, sessionID, from)
	} else {
		c.resetCursor(sessionID)
		c.setState(StateLiveRun)
		c.log.Info("Starting live run for session %s", sessionID)
		envelopes, err = c.transport.OpenLiveStream(streamCtx, c.chatRequest(sessionID, text, opts))
	}

	if err != nil {
		finish()
		c.log.Error("Failed to open stream: %v", err)
		return err
	}

	c.consume(streamCtx, envelopes, finish)
	return nil
}

// Resume rebuilds local state for the persisted session after a cold
// start. A still-running workflow is reconnected from cursor zero and
// consumed live; a finished one is replayed from the server's in-memory
// tail, falling back to durable history only when that yields nothing.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.responding {
		c.mu.Unlock()
		return fmt.Errorf("already responding on session %s", c.sessionID)
	}
	sessionID := c.sessionID
	if sessionID == "" {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDeciding
	c.responding = true
	c.mu.Unlock()

	status := c.queryStatus(ctx, sessionID)

	if status.Status == transport.StatusNotFound {
		return c.replayHistory(ctx, sessionID)
	}

	c.resetCursor(sessionID)
	streamCtx, finish := c.beginStream(ctx)

	if status.Status == transport.StatusRunning {
		c.setState(StateReconnecting)
		c.log.Info("Resuming running session %s (%d events buffered)", sessionID, status.EventCount)
	} else {
		c.setState(StateReplaying)
		c.log.Info("Replaying %s session %s from server buffer", status.Status, sessionID)
	}

	envelopes, err := c.transport.OpenReconnectStream(streamCtx, sessionID, 0)
	if err != nil {
		finish()
		c.log.Warn("Reconnect failed, trying durable history: %v", err)
		return c.replayHistoryRestarted(ctx, sessionID)
	}

	c.consume(streamCtx, envelopes, finish)

	if c.store.MessageCount() == 0 && status.Status != transport.StatusRunning {
		return c.replayHistoryRestarted(ctx, sessionID)
	}
	return nil
}

// SwitchSession makes a different conversation active: the in-flight
// stream is cancelled and fully drained before any new-session state is
// touched, then messages, research units, citations and the cursor are
// cleared together.
func (c *Controller) SwitchSession(sessionID string) {
	c.mu.Lock()
	cancel := c.cancelStream
	done := c.streamDone
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done

	c.batcher.Stop()
	c.store.Reset()

	c.mu.Lock()
	c.sessionID = sessionID
	c.count = 0
	c.state = StateIdle
	c.responding = false
	c.mu.Unlock()

	c.cursor.Set(sessionID, 0)
	c.log.Info("Switched active session to %s", sessionID)
}

// NewSession starts a brand-new conversation and returns its identifier
func (c *Controller) NewSession() string {
	sessionID := uuid.NewString()
	c.SwitchSession(sessionID)
	return sessionID
}

// Stop cancels the in-flight stream, if any. Stopping is cooperative and
// idempotent: safe to call repeatedly and after the stream already ended.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancelStream
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// queryStatus maps every status failure to not-found, the conservative
// default: it falls through to history or a fresh run instead of risking
// a duplicate one.
func (c *Controller) queryStatus(ctx context.Context, sessionID string) transport.RunStatus {
	statusCtx, cancel := context.WithTimeout(ctx, c.opts.StatusTimeout)
	defer cancel()

	status, err := c.transport.QueryRunStatus(statusCtx, sessionID)
	if err != nil {
		c.log.Warn("Status query failed, assuming not-found: %v", err)
		return transport.RunStatus{Status: transport.StatusNotFound}
	}
	return status
}

// beginStream installs the cancellation plumbing for one stream and
// returns its context plus the finish func that tears the stream state
// down and releases anyone waiting on streamDone
func (c *Controller) beginStream(ctx context.Context) (context.Context, func()) {
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancelStream = cancel
	c.streamDone = done
	c.mu.Unlock()

	var once sync.Once
	finish := func() {
		once.Do(func() {
			cancel()
			c.batcher.Flush()
			c.mu.Lock()
			c.state = StateIdle
			c.responding = false
			c.cancelStream = nil
			c.mu.Unlock()
			close(done)
		})
	}
	return streamCtx, finish
}

// consume drains the envelope sequence, applying each event in arrival
// order and advancing the cursor only after an event has actually been
// applied. It always returns through finish, so the controller can never
// get stuck outside Idle.
func (c *Controller) consume(ctx context.Context, envelopes <-chan events.Envelope, finish func()) {
	defer finish()

	for env := range envelopes {
		if env.Kind == events.KindError {
			c.handleStreamError(env)
			return
		}

		c.apply(env, false)

		c.mu.Lock()
		c.count++
		count := c.count
		sessionID := c.sessionID
		c.mu.Unlock()
		c.cursor.Set(sessionID, count)
	}
}

func (c *Controller) handleStreamError(env events.Envelope) {
	streamErr, ok := env.Payload.(events.StreamError)
	if !ok {
		return
	}
	if streamErr.IsCancellation() {
		c.log.Info("Run cancelled upstream for session %s", streamErr.SessionID)
		return
	}
	c.log.Error("Run failed for session %s: %s", streamErr.SessionID, streamErr.Detail)
	if c.opts.OnNotice != nil {
		notice := streamErr.Detail
		if notice == "" {
			notice = "research run failed"
		}
		c.opts.OnNotice(notice)
	}
}

// apply folds one envelope into the store via the batcher. New messages
// are appended immediately so insertion order is settled at creation;
// subsequent updates coalesce through the batcher. forceFinished is the
// history-replay mode: nothing from history is ever left streaming.
func (c *Controller) apply(env events.Envelope, forceFinished bool) {
	switch payload := env.Payload.(type) {
	case events.MessageChunk:
		c.applyMessageScoped(env, payload.MessageID, forceFinished)
	case events.ToolCall:
		c.applyMessageScoped(env, payload.MessageID, forceFinished)
	case events.Interrupt:
		c.applyMessageScoped(env, payload.MessageID, forceFinished)
	case events.ToolCallResult:
		// Results are rare; settle the pending batch so the scan sees the
		// freshest invocation lists
		c.batcher.Flush()
		c.store.ApplyToolResult(payload)
		c.notifyFlush()
	case events.CitationSet:
		c.store.SetCitations(payload.Citations)
		c.notifyFlush()
	}
}

func (c *Controller) applyMessageScoped(env events.Envelope, messageID string, forceFinished bool) {
	prior, ok := c.batcher.Get(messageID)
	if !ok {
		prior, _ = c.store.Message(messageID)
	}

	merged := Merge(prior, env)
	if forceFinished && merged.Streaming {
		merged.Streaming = false
		merged.FinishReason = FinishStop
	}

	if prior == nil {
		c.store.AppendMessage(merged)
		c.notifyFlush()
		return
	}
	c.batcher.Put(merged)
}

// replayHistoryRestarted clears the responding flag bookkeeping left by a
// failed replay attempt before falling back to durable history
func (c *Controller) replayHistoryRestarted(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	c.responding = true
	c.mu.Unlock()
	return c.replayHistory(ctx, sessionID)
}

// replayHistory rebuilds the session from persisted frames. Each frame is
// folded through the same merge path as a live envelope, except that
// error envelopes are skipped entirely and no resulting message may be
// left in a streaming state: history is never in progress.
func (c *Controller) replayHistory(ctx context.Context, sessionID string) error {
	defer func() {
		c.batcher.Flush()
		c.mu.Lock()
		c.state = StateIdle
		c.responding = false
		c.mu.Unlock()
	}()

	c.setState(StateReplaying)

	historyCtx, cancel := context.WithTimeout(ctx, c.opts.StatusTimeout)
	defer cancel()

	history, err := c.transport.FetchHistory(historyCtx, sessionID, c.opts.HistoryLimit)
	if err != nil {
		c.log.Warn("History fetch failed for session %s: %v", sessionID, err)
		return nil
	}
	if !history.Available {
		c.log.Info("No durable history for session %s", sessionID)
		return nil
	}

	applied := 0
	for _, frame := range history.Frames {
		env, ok := events.DecodeFrame(frame)
		if !ok || env.Kind == events.KindError {
			continue
		}
		c.apply(env, true)
		applied++
	}
	c.log.Info("Replayed %d history events for session %s", applied, sessionID)
	return nil
}

func (c *Controller) chatRequest(sessionID, text string, opts SendOptions) transport.ChatRequest {
	req := transport.ChatRequest{
		SessionID:         sessionID,
		MaxPlanIterations: c.opts.MaxPlanIterations,
		MaxSearchResults:  c.opts.MaxSearchResults,
		AutoAcceptPlan:    c.opts.AutoAcceptPlan,
		InterruptFeedback: opts.InterruptFeedback,
	}
	if text != "" {
		req.Messages = []transport.ChatMessage{{Role: RoleUser, Content: text}}
	}
	return req
}

// reconcileCursor returns the cursor a reconnect should start from and
// realigns local bookkeeping when the store turned out to be empty
func (c *Controller) reconcileCursor(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.MessageCount() == 0 {
		c.count = 0
	}
	c.cursor.Set(sessionID, c.count)
	return c.count
}

func (c *Controller) resetCursor(sessionID string) {
	c.mu.Lock()
	c.count = 0
	c.mu.Unlock()
	c.cursor.Set(sessionID, 0)
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) flushBatch(batch []*Message) {
	for _, msg := range batch {
		c.store.UpdateMessage(msg)
	}
	c.notifyFlush()
}

func (c *Controller) notifyFlush() {
	if c.opts.OnFlush != nil {
		c.opts.OnFlush()
	}
}
