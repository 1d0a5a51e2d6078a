package headless

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tidewatch/tidewatch/pkg/config"
	"github.com/tidewatch/tidewatch/pkg/logger"
	"github.com/tidewatch/tidewatch/pkg/render"
	"github.com/tidewatch/tidewatch/pkg/session"
	"github.com/tidewatch/tidewatch/pkg/transport"
)

// Runner drives one turn (or a resume) of a research session and prints
// the transcript as messages finish streaming
type Runner struct {
	controller *session.Controller
	store      *session.Store
	formatter  *render.Formatter

	mu      sync.Mutex
	out     io.Writer
	printed map[string]bool
}

// NewRunner builds a runner from the global config
func NewRunner() (*Runner, error) {
	settings := config.Get()

	client := transport.NewClientWithTimeout(settings.Server.URL, settings.Server.StatusTimeout)
	store := session.NewStore()
	cursor := session.NewCursorFile(settings.Session.StateFile)

	r := &Runner{
		store:     store,
		formatter: render.NewFormatter(100),
		out:       os.Stdout,
		printed:   make(map[string]bool),
	}

	r.controller = session.NewController(client, store, cursor, session.Options{
		StatusTimeout:     settings.Server.StatusTimeout,
		FlushInterval:     settings.Stream.FlushInterval,
		HistoryLimit:      settings.Session.HistoryLimit,
		MaxPlanIterations: settings.Research.MaxPlanIterations,
		MaxSearchResults:  settings.Research.MaxSearchResults,
		AutoAcceptPlan:    settings.Research.AutoAcceptPlan,
		OnNotice:          r.printNotice,
		OnFlush:           r.printFinished,
	})

	return r, nil
}

// SetOutput redirects transcript output (useful for testing)
func (r *Runner) SetOutput(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = w
}

// Controller exposes the underlying lifecycle controller
func (r *Runner) Controller() *session.Controller {
	return r.controller
}

// Run submits a prompt, or resumes a paused plan when feedback is set
func (r *Runner) Run(ctx context.Context, prompt, feedback string) error {
	if err := r.controller.Send(ctx, prompt, session.SendOptions{InterruptFeedback: feedback}); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	r.finishTranscript()
	return nil
}

// Resume rebuilds and prints the persisted session
func (r *Runner) Resume(ctx context.Context) error {
	if r.controller.SessionID() == "" {
		fmt.Fprintln(r.out, "No session to resume.")
		return nil
	}
	if err := r.controller.Resume(ctx); err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}
	r.finishTranscript()
	return nil
}

// NewSession abandons the persisted session and starts fresh
func (r *Runner) NewSession() string {
	id := r.controller.NewSession()
	r.resetTranscript()
	return id
}

// SwitchSession makes an existing conversation active; the next Resume or
// Send operates on it instead of the persisted one
func (r *Runner) SwitchSession(sessionID string) {
	r.controller.SwitchSession(sessionID)
	r.resetTranscript()
}

func (r *Runner) resetTranscript() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = make(map[string]bool)
}

// printFinished emits, in order, every visible message that has finished
// streaming and was not printed yet. Called on each batched flush, so the
// transcript grows as the run progresses.
func (r *Runner) printFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.store.VisibleMessageIDs() {
		if r.printed[id] {
			continue
		}
		msg, ok := r.store.Message(id)
		if !ok || msg.Streaming {
			continue
		}
		fmt.Fprintln(r.out, r.formatter.FormatMessage(msg, true))
		r.printed[id] = true
	}
}

// finishTranscript flushes any stragglers and prints citations plus the
// paused-plan hint once the stream has ended
func (r *Runner) finishTranscript() {
	r.printFinished()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, unit := range r.store.ResearchUnits() {
		if text := r.formatter.FormatCitations(unit.Citations); text != "" {
			fmt.Fprintln(r.out, text)
		}
	}

	if r.store.LastInterrupted() {
		fmt.Fprintln(r.out, "Run is paused for feedback. Re-run with --feedback to continue.")
	}
}

func (r *Runner) printNotice(notice string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "Error: %s\n", notice)
}

// Cleanup closes resources owned by the runner
func (r *Runner) Cleanup() error {
	return logger.Close()
}
