package session

import (
	"sync"

	"github.com/tidewatch/tidewatch/pkg/events"
	"github.com/tidewatch/tidewatch/pkg/logger"
)

// Store is the authoritative in-memory state for the active session: the
// ordered message list, per-message streaming status, derived research
// units and their citations. Messages are held in an id-keyed map plus an
// insertion-ordered id slice so lookup is O(1) and iteration order is
// stable regardless of map semantics.
type Store struct {
	mu sync.RWMutex

	messageIDs []string
	messages   map[string]*Message

	researchIDs []string
	research    map[string]*ResearchUnit
	ongoingID   string

	log *logger.Logger
}

// NewStore creates an empty session store
func NewStore() *Store {
	s := &Store{log: logger.WithPrefix("store")}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.messageIDs = nil
	s.messages = make(map[string]*Message)
	s.researchIDs = nil
	s.research = make(map[string]*ResearchUnit)
	s.ongoingID = ""
}

// Reset clears all per-session state. Called when the active session
// switches.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// AppendMessage inserts a message at the end of the ordered list. A
// message whose id is already present is left untouched; this guards
// against the duplicate-creation race between live and reconnect paths
// and against re-delivery after a crash between apply and cursor persist.
func (s *Store) AppendMessage(msg *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		s.log.Debug("Ignoring duplicate append for message %s", msg.ID)
		return false
	}

	s.messages[msg.ID] = msg.Clone()
	s.messageIDs = append(s.messageIDs, msg.ID)
	s.trackResearch(msg)
	// A synthesis message can arrive already finished (single terminal
	// chunk, or history replay); it still has to close its unit
	s.closeResearchIfReported(msg)
	return true
}

// UpdateMessage upserts by id without reordering
func (s *Store) UpdateMessage(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; !exists {
		s.messages[msg.ID] = msg.Clone()
		s.messageIDs = append(s.messageIDs, msg.ID)
		s.trackResearch(msg)
		return
	}

	s.messages[msg.ID] = msg.Clone()
	s.closeResearchIfReported(msg)
}

// ApplyToolResult attaches a tool result to the message that issued the
// matching tool call, scanning most-recently-first. An unmatched result
// is dropped; it never creates a message of its own.
func (s *Store) ApplyToolResult(result events.ToolCallResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messageIDs) - 1; i >= 0; i-- {
		msg := s.messages[s.messageIDs[i]]
		if updated := MergeToolResult(msg, result); updated != nil {
			s.messages[updated.ID] = updated
			return true
		}
	}

	s.log.Warn("Dropping tool result with no matching invocation %s", result.ToolCallID)
	return false
}

// SetCitations replaces (not merges) the citation set of the ongoing
// research unit. Ignored when no unit is ongoing.
func (s *Store) SetCitations(citations []events.Citation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.research[s.ongoingID]
	if !ok {
		s.log.Debug("Ignoring citations with no ongoing research unit")
		return false
	}
	unit.Citations = append([]events.Citation(nil), citations...)
	return true
}

// Message returns a copy of the message with the given id
func (s *Store) Message(id string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	return msg.Clone(), true
}

// Messages returns copies of all messages in insertion order
func (s *Store) Messages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Message, 0, len(s.messageIDs))
	for _, id := range s.messageIDs {
		out = append(out, s.messages[id].Clone())
	}
	return out
}

// MessageCount returns the number of messages in the store
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messageIDs)
}

// VisibleMessageIDs returns the ids worth rendering: empty still-streaming
// placeholders from interactive (non-delegated) agents are hidden until
// they have content.
func (s *Store) VisibleMessageIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.messageIDs))
	for _, id := range s.messageIDs {
		msg := s.messages[id]
		if msg.IsPlaceholder() && !IsResearchAgent(msg.Agent) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// LastInterrupted reports whether the most recent message carries a pause
// marker, meaning the run is waiting for human feedback
func (s *Store) LastInterrupted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messageIDs) == 0 {
		return false
	}
	return s.messages[s.messageIDs[len(s.messageIDs)-1]].IsInterrupted()
}

// AwaitingFeedback returns the message the user is being asked to review:
// the second-to-last message when the last one is a pause marker
func (s *Store) AwaitingFeedback() (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.messageIDs)
	if n < 2 || !s.messages[s.messageIDs[n-1]].IsInterrupted() {
		return nil, false
	}
	return s.messages[s.messageIDs[n-2]].Clone(), true
}

// ResearchUnits returns copies of all research units, oldest first
func (s *Store) ResearchUnits() []*ResearchUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ResearchUnit, 0, len(s.researchIDs))
	for _, id := range s.researchIDs {
		out = append(out, s.research[id].clone())
	}
	return out
}

// OngoingResearch returns the currently open research unit, if any
func (s *Store) OngoingResearch() (*ResearchUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.research[s.ongoingID]
	if !ok {
		return nil, false
	}
	return unit.clone(), true
}

// trackResearch opens or extends a research unit for a newly appended
// message. Caller holds the write lock.
func (s *Store) trackResearch(msg *Message) {
	if msg.Role != RoleAssistant {
		return
	}

	if unit, ok := s.research[s.ongoingID]; ok {
		// Reporter and delegated-agent messages join the open unit
		if IsResearchAgent(msg.Agent) || msg.Agent == AgentReporter {
			if !unit.hasMember(msg.ID) {
				unit.MemberIDs = append(unit.MemberIDs, msg.ID)
			}
			if msg.Agent == AgentReporter {
				unit.ReportID = msg.ID
			}
		}
		return
	}

	if !IsResearchAgent(msg.Agent) {
		return
	}

	// First delegated-agent message with no open unit starts one, seeded
	// by scanning backward for the plan that triggered it and the user
	// query it answers. A missing plan leaves PlanID empty rather than
	// rejecting the message.
	unit := &ResearchUnit{
		ID:        msg.ID,
		MemberIDs: []string{msg.ID},
		Ongoing:   true,
	}
	for i := len(s.messageIDs) - 2; i >= 0; i-- {
		prior := s.messages[s.messageIDs[i]]
		if unit.PlanID == "" && prior.Agent == AgentPlanner {
			unit.PlanID = prior.ID
		}
		if unit.Query == "" && prior.IsUser() {
			unit.Query = prior.Content
		}
		if unit.PlanID != "" && unit.Query != "" {
			break
		}
	}
	if unit.PlanID == "" {
		s.log.Debug("Research unit %s opened without a planning message", unit.ID)
	}

	s.research[unit.ID] = unit
	s.researchIDs = append(s.researchIDs, unit.ID)
	s.ongoingID = unit.ID
}

// closeResearchIfReported closes the ongoing unit once its synthesis
// message stops streaming. Caller holds the write lock.
func (s *Store) closeResearchIfReported(msg *Message) {
	unit, ok := s.research[s.ongoingID]
	if !ok || unit.ReportID != msg.ID || msg.Streaming {
		return
	}
	unit.Ongoing = false
	s.ongoingID = ""
}
