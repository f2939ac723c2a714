// Package segment buckets sessions by an arbitrary metadata dimension
// taken from each session's first event and computes per-segment
// completion metrics.
package segment

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
)

// ErrMissingField rejects empty segment_by values before any data access.
var ErrMissingField = errors.New("segment field is required")

const (
	// UnknownSegment collects sessions whose first event carries no
	// value for the requested field. Such sessions are never dropped.
	UnknownSegment = "Unknown"

	// NoDropOff is reported when every session in a segment completed.
	NoDropOff = "None"
)

// Result is one segment bucket.
type Result struct {
	Segment           string  `json:"segment"`
	TotalUsers        int     `json:"totalUsers"`
	CompletedUsers    int     `json:"completedUsers"`
	CompletionRate    float64 `json:"completionRate"`
	AvgCompletionTime float64 `json:"avgCompletionTime"`
	TopDropOffStep    string  `json:"topDropOffStep"`
}

// keyFor renders the segment value of a session's first event.
// Non-string metadata values stringify so numeric or boolean
// dimensions still segment sensibly.
func keyFor(s *session.Session, field string) string {
	md := s.First().Metadata
	if md == nil {
		return UnknownSegment
	}
	v, ok := md[field]
	if !ok || v == nil {
		return UnknownSegment
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// Analyze buckets sessions by the value of field on each session's
// first event. Output sorts descending by TotalUsers, largest segment
// first; equal sizes fall back to segment name so results stay stable.
func Analyze(funnel *model.Funnel, sessions session.Map, field string) ([]Result, error) {
	if field == "" {
		return nil, ErrMissingField
	}
	lastOrder := -1
	if last, ok := funnel.LastStep(); ok {
		lastOrder = last.Order
	}

	type bucket struct {
		total       int
		completed   int
		completeSum time.Duration
		dropTally   map[string]int
		dropOrder   []string
	}
	buckets := make(map[string]*bucket)
	for _, id := range sessions.SortedIDs() {
		s := sessions[id]
		key := keyFor(s, field)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{dropTally: make(map[string]int)}
			buckets[key] = b
		}
		b.total++
		if lastOrder >= 0 && s.Completed(lastOrder) {
			b.completed++
			b.completeSum += s.Duration()
			continue
		}
		// A non-completed session drops off at the step right after the
		// highest one it reached.
		dropStep, ok := funnel.StepByOrder(s.MaxStep() + 1)
		if !ok {
			continue
		}
		if _, seen := b.dropTally[dropStep.Name]; !seen {
			b.dropOrder = append(b.dropOrder, dropStep.Name)
		}
		b.dropTally[dropStep.Name]++
	}

	results := make([]Result, 0, len(buckets))
	for key, b := range buckets {
		r := Result{
			Segment:        key,
			TotalUsers:     b.total,
			CompletedUsers: b.completed,
			TopDropOffStep: topDropOff(b.dropTally, b.dropOrder),
		}
		if b.total > 0 {
			r.CompletionRate = 100 * float64(b.completed) / float64(b.total)
		}
		if b.completed > 0 {
			r.AvgCompletionTime = b.completeSum.Seconds() / float64(b.completed)
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TotalUsers != results[j].TotalUsers {
			return results[i].TotalUsers > results[j].TotalUsers
		}
		return results[i].Segment < results[j].Segment
	})
	return results, nil
}

// topDropOff picks the step with the highest attribution tally, ties
// broken by first encounter.
func topDropOff(tally map[string]int, order []string) string {
	top := NoDropOff
	best := 0
	for _, name := range order {
		if tally[name] > best {
			best = tally[name]
			top = name
		}
	}
	return top
}
