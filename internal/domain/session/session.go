// Package session reconstructs per-session timelines from a flat,
// window-scoped event list. Reconstruction is a pure in-memory
// transform: one grouping pass plus one sort per session, no storage
// access. Sessions are request-scoped and never persisted.
package session

import (
	"sort"
	"time"

	"github.com/steplens/steplens/internal/domain/model"
)

// Session is one reconstructed user journey: an id plus its events
// ordered by (step number, timestamp).
type Session struct {
	ID     string
	Events []model.Event
}

// First returns the session's entry event in traversal order, which is
// not necessarily at step 0 when the window clips the journey.
func (s *Session) First() model.Event {
	return s.Events[0]
}

// Last returns the session's final event in traversal order.
func (s *Session) Last() model.Event {
	return s.Events[len(s.Events)-1]
}

// MaxStep returns the highest step number the session reached.
func (s *Session) MaxStep() int {
	maxStep := -1
	for _, e := range s.Events {
		if e.StepNumber > maxStep {
			maxStep = e.StepNumber
		}
	}
	return maxStep
}

// HasStep reports whether any event in the session is at the given
// step number. Duplicate events at a step count as a single visit.
func (s *Session) HasStep(order int) bool {
	for _, e := range s.Events {
		if e.StepNumber == order {
			return true
		}
	}
	return false
}

// FirstAtStep returns the timestamp of the session's first event at
// the given step number.
func (s *Session) FirstAtStep(order int) (time.Time, bool) {
	var (
		found bool
		first time.Time
	)
	for _, e := range s.Events {
		if e.StepNumber != order {
			continue
		}
		if !found || e.Timestamp.Before(first) {
			first = e.Timestamp
			found = true
		}
	}
	return first, found
}

// Completed reports whether the session reached the funnel's last step
// index. Completion is defined purely by reaching that index,
// regardless of how many events the session produced.
func (s *Session) Completed(lastStepOrder int) bool {
	return s.MaxStep() >= lastStepOrder
}

// Duration is the span between the session's first and last event.
func (s *Session) Duration() time.Duration {
	return s.Last().Timestamp.Sub(s.First().Timestamp)
}

// Map holds reconstructed sessions keyed by session id. Sessions with
// no events in the window are simply absent.
type Map map[string]*Session

// Reconstruct groups events by session id and orders each group by
// (step number ascending, timestamp ascending). The input is the batch
// fetch for one funnel and one time window; callers must not issue one
// query per session.
func Reconstruct(events []model.Event) Map {
	sessions := make(Map)
	for _, e := range events {
		s, ok := sessions[e.SessionID]
		if !ok {
			s = &Session{ID: e.SessionID}
			sessions[e.SessionID] = s
		}
		s.Events = append(s.Events, e)
	}
	for _, s := range sessions {
		events := s.Events
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].StepNumber != events[j].StepNumber {
				return events[i].StepNumber < events[j].StepNumber
			}
			return events[i].Timestamp.Before(events[j].Timestamp)
		})
	}
	return sessions
}

// SortedIDs returns the session ids in lexicographic order. Analysis
// output must not depend on map iteration order.
func (m Map) SortedIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
