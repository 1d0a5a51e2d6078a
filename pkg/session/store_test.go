package session_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tidewatch/tidewatch/pkg/events"
	"github.com/tidewatch/tidewatch/pkg/session"
)

func streamingMessage(id, agent string) *session.Message {
	return &session.Message{
		ID:        id,
		SessionID: "t1",
		Role:      session.RoleAssistant,
		Agent:     agent,
		Streaming: true,
	}
}

func finishedMessage(id, agent, content string) *session.Message {
	return &session.Message{
		ID:           id,
		SessionID:    "t1",
		Role:         session.RoleAssistant,
		Agent:        agent,
		Content:      content,
		FinishReason: session.FinishStop,
	}
}

var _ = Describe("Store", func() {
	var store *session.Store

	BeforeEach(func() {
		store = session.NewStore()
	})

	Describe("AppendMessage", func() {
		It("keeps insertion order", func() {
			store.AppendMessage(session.NewUserMessage("t1", "first"))
			store.AppendMessage(finishedMessage("m1", session.AgentCoordinator, "second"))

			msgs := store.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Content).To(Equal("first"))
			Expect(msgs[1].Content).To(Equal("second"))
		})

		It("ignores a duplicate id without reordering or duplicating", func() {
			Expect(store.AppendMessage(finishedMessage("m1", "", "original"))).To(BeTrue())
			store.AppendMessage(finishedMessage("m2", "", "next"))
			Expect(store.AppendMessage(finishedMessage("m1", "", "imposter"))).To(BeFalse())

			msgs := store.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Content).To(Equal("original"))
		})

		It("stores a copy, not the caller's pointer", func() {
			msg := finishedMessage("m1", "", "before")
			store.AppendMessage(msg)
			msg.Content = "after"

			stored, _ := store.Message("m1")
			Expect(stored.Content).To(Equal("before"))
		})
	})

	Describe("UpdateMessage", func() {
		It("upserts by id without reordering", func() {
			store.AppendMessage(finishedMessage("m1", "", "one"))
			store.AppendMessage(finishedMessage("m2", "", "two"))

			store.UpdateMessage(finishedMessage("m1", "", "one updated"))

			msgs := store.Messages()
			Expect(msgs[0].Content).To(Equal("one updated"))
			Expect(msgs[1].Content).To(Equal("two"))
		})

		It("appends when the id is unknown", func() {
			store.UpdateMessage(finishedMessage("m1", "", "new"))
			Expect(store.MessageCount()).To(Equal(1))
		})
	})

	Describe("ApplyToolResult", func() {
		It("correlates to the most recent message owning the invocation", func() {
			early := finishedMessage("m1", session.AgentResearcher, "")
			early.ToolCalls = []session.ToolInvocation{{ID: "tc1", Name: "search"}}
			late := finishedMessage("m2", session.AgentResearcher, "")
			late.ToolCalls = []session.ToolInvocation{{ID: "tc2", Name: "crawl"}}

			store.AppendMessage(early)
			store.AppendMessage(late)

			Expect(store.ApplyToolResult(events.ToolCallResult{ToolCallID: "tc1", Result: "hits"})).To(BeTrue())

			msg, _ := store.Message("m1")
			Expect(msg.ToolCalls[0].Result).To(Equal("hits"))
		})

		It("drops results with no matching invocation", func() {
			store.AppendMessage(finishedMessage("m1", "", "text"))

			Expect(store.ApplyToolResult(events.ToolCallResult{ToolCallID: "tc9", Result: "orphan"})).To(BeFalse())
			Expect(store.MessageCount()).To(Equal(1))

			msg, _ := store.Message("m1")
			Expect(msg.Content).To(Equal("text"))
			Expect(msg.ToolCalls).To(BeEmpty())
		})
	})

	Describe("research units", func() {
		openResearch := func() {
			store.AppendMessage(session.NewUserMessage("t1", "compare quantum frameworks"))
			store.AppendMessage(finishedMessage("plan1", session.AgentPlanner, "the plan"))
			store.AppendMessage(streamingMessage("r1", session.AgentResearcher))
		}

		It("opens a unit on the first delegated-agent message", func() {
			openResearch()

			unit, ok := store.OngoingResearch()
			Expect(ok).To(BeTrue())
			Expect(unit.ID).To(Equal("r1"))
			Expect(unit.PlanID).To(Equal("plan1"))
			Expect(unit.Query).To(Equal("compare quantum frameworks"))
			Expect(unit.MemberIDs).To(Equal([]string{"r1"}))
		})

		It("opens at most one unit at a time", func() {
			openResearch()
			store.AppendMessage(streamingMessage("r2", session.AgentCoder))

			units := store.ResearchUnits()
			Expect(units).To(HaveLen(1))
			Expect(units[0].MemberIDs).To(Equal([]string{"r1", "r2"}))
		})

		It("accepts a delegated message with no preceding plan, leaving the link empty", func() {
			store.AppendMessage(session.NewUserMessage("t1", "just dig in"))
			store.AppendMessage(streamingMessage("r1", session.AgentResearcher))

			unit, ok := store.OngoingResearch()
			Expect(ok).To(BeTrue())
			Expect(unit.PlanID).To(BeEmpty())
			Expect(unit.Query).To(Equal("just dig in"))
		})

		It("closes the unit when the synthesis message finishes streaming", func() {
			openResearch()
			store.AppendMessage(streamingMessage("rep1", session.AgentReporter))

			unit, _ := store.OngoingResearch()
			Expect(unit.ReportID).To(Equal("rep1"))

			store.UpdateMessage(finishedMessage("rep1", session.AgentReporter, "final report"))

			_, ok := store.OngoingResearch()
			Expect(ok).To(BeFalse())

			units := store.ResearchUnits()
			Expect(units[0].Ongoing).To(BeFalse())
			Expect(units[0].ReportID).To(Equal("rep1"))
		})

		It("keeps completed units queryable after a new one opens", func() {
			openResearch()
			store.AppendMessage(streamingMessage("rep1", session.AgentReporter))
			store.UpdateMessage(finishedMessage("rep1", session.AgentReporter, "report"))

			store.AppendMessage(session.NewUserMessage("t1", "now something else"))
			store.AppendMessage(streamingMessage("r9", session.AgentCoder))

			Expect(store.ResearchUnits()).To(HaveLen(2))
		})
	})

	Describe("citations", func() {
		It("replaces, not merges, the ongoing unit's citation set", func() {
			store.AppendMessage(session.NewUserMessage("t1", "query"))
			store.AppendMessage(streamingMessage("r1", session.AgentResearcher))

			Expect(store.SetCitations([]events.Citation{{URL: "a"}})).To(BeTrue())
			Expect(store.SetCitations([]events.Citation{{URL: "b"}})).To(BeTrue())

			unit, _ := store.OngoingResearch()
			Expect(unit.Citations).To(Equal([]events.Citation{{URL: "b"}}))
		})

		It("ignores citations when no unit is ongoing", func() {
			Expect(store.SetCitations([]events.Citation{{URL: "a"}})).To(BeFalse())
		})
	})

	Describe("projections", func() {
		It("hides empty still-streaming placeholders from interactive agents", func() {
			store.AppendMessage(session.NewUserMessage("t1", "hi"))
			store.AppendMessage(streamingMessage("m1", session.AgentCoordinator))
			store.AppendMessage(streamingMessage("r1", session.AgentResearcher))

			ids := store.VisibleMessageIDs()
			Expect(ids).To(HaveLen(2))
			Expect(ids[1]).To(Equal("r1"))
		})

		It("exposes the awaiting-feedback message behind a pause marker", func() {
			store.AppendMessage(finishedMessage("plan1", session.AgentPlanner, "the plan"))
			paused := finishedMessage("m2", session.AgentCoordinator, "approve?")
			paused.FinishReason = session.FinishInterrupt
			store.AppendMessage(paused)

			Expect(store.LastInterrupted()).To(BeTrue())

			awaiting, ok := store.AwaitingFeedback()
			Expect(ok).To(BeTrue())
			Expect(awaiting.ID).To(Equal("plan1"))
		})

		It("reports no pause when the last message finished normally", func() {
			store.AppendMessage(finishedMessage("m1", "", "done"))
			Expect(store.LastInterrupted()).To(BeFalse())

			_, ok := store.AwaitingFeedback()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Reset", func() {
		It("empties messages, research units and citations", func() {
			store.AppendMessage(session.NewUserMessage("t1", "query"))
			store.AppendMessage(streamingMessage("r1", session.AgentResearcher))
			store.SetCitations([]events.Citation{{URL: "a"}})

			store.Reset()

			Expect(store.MessageCount()).To(BeZero())
			Expect(store.ResearchUnits()).To(BeEmpty())
			_, ok := store.OngoingResearch()
			Expect(ok).To(BeFalse())
		})
	})
})
