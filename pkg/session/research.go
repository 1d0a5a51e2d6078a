package session

import "github.com/tidewatch/tidewatch/pkg/events"

// ResearchUnit groups the messages produced by one delegated research
// run. It is keyed by the id of the message that opened it, linked back
// to the planning message that triggered it (when one exists) and the
// user query it answers, and closed once the reporter's synthesis message
// finishes streaming.
type ResearchUnit struct {
	ID        string
	PlanID    string
	ReportID  string
	Query     string
	MemberIDs []string
	Citations []events.Citation
	Ongoing   bool
}

func (u *ResearchUnit) clone() *ResearchUnit {
	clone := *u
	clone.MemberIDs = append([]string(nil), u.MemberIDs...)
	clone.Citations = append([]events.Citation(nil), u.Citations...)
	return &clone
}

func (u *ResearchUnit) hasMember(id string) bool {
	for _, member := range u.MemberIDs {
		if member == id {
			return true
		}
	}
	return false
}
