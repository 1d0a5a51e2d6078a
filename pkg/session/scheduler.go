package session

import (
	"sync"
	"time"
)

// Batcher coalesces rapid-fire merge results into one store write per
// message id per interval, last write wins within the window. It is a
// small explicit state machine: a pending batch plus at most one
// scheduled flush. Flush is the synchronous path used at stream end so
// nothing waits on a dead timer.
type Batcher struct {
	mu       sync.Mutex
	interval time.Duration
	pending  map[string]*Message
	order    []string
	timer    *time.Timer
	sink     func([]*Message)
}

// NewBatcher creates a batcher that delivers coalesced messages to sink
func NewBatcher(interval time.Duration, sink func([]*Message)) *Batcher {
	return &Batcher{
		interval: interval,
		pending:  make(map[string]*Message),
		sink:     sink,
	}
}

// Put queues an updated message, replacing any pending version with the
// same id, and schedules a flush if none is pending
func (b *Batcher) Put(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.pending[msg.ID]; !exists {
		b.order = append(b.order, msg.ID)
	}
	b.pending[msg.ID] = msg

	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.Flush)
	}
}

// Get returns the pending version of a message, letting callers merge
// against the freshest copy before the batch lands in the store
func (b *Batcher) Get(id string) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := b.pending[id]
	return msg, ok
}

// Flush delivers the pending batch immediately. Safe to call at any time,
// including when nothing is pending or after Stop.
//
// The sink runs under the lock: between clearing pending and the sink
// returning there must be no window where a message version is invisible
// to Get, or a concurrent merge would build on a stale base and later
// overwrite the delivered one. The sink must not call back into the
// batcher.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.order) == 0 {
		return
	}

	batch := make([]*Message, 0, len(b.order))
	for _, id := range b.order {
		batch = append(batch, b.pending[id])
	}
	b.pending = make(map[string]*Message)
	b.order = nil

	b.sink(batch)
}

// Stop cancels any scheduled flush without delivering it
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
