// Package cohort buckets sessions by their entry-time window and
// computes per-cohort completion metrics.
package cohort

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
)

// ErrUnknownGranularity rejects cohort_by values outside day/week/month.
var ErrUnknownGranularity = errors.New("unknown cohort granularity")

// Granularity selects how entry timestamps map to cohort keys.
type Granularity string

const (
	ByDay   Granularity = "day"
	ByWeek  Granularity = "week"
	ByMonth Granularity = "month"

	// DefaultGranularity applies when the caller leaves cohort_by empty.
	DefaultGranularity = ByDay
)

// ParseGranularity validates a caller-supplied cohort_by value. The
// empty string maps to the default; anything else unknown is rejected
// before any data access.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return DefaultGranularity, nil
	case ByDay, ByWeek, ByMonth:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

// Result is one observed cohort bucket. Buckets with zero sessions are
// never emitted.
type Result struct {
	Cohort            string  `json:"cohort"`
	TotalUsers        int     `json:"totalUsers"`
	CompletedUsers    int     `json:"completedUsers"`
	CompletionRate    float64 `json:"completionRate"`
	AvgCompletionTime float64 `json:"avgCompletionTime"`
}

// Key derives the cohort key for an entry timestamp. All three formats
// sort chronologically as strings: ISO date, YYYY-Www ISO week, and
// YYYY-MM. Keys are computed in UTC so bucket boundaries do not depend
// on the server's zone.
func Key(t time.Time, g Granularity) string {
	t = t.UTC()
	switch g {
	case ByWeek:
		return isoWeekKey(t)
	case ByMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// isoWeekKey renders the ISO-8601 week identifier. time.ISOWeek
// already applies the Thursday-anchored rule, so days around a year
// boundary land in the correct week-year (e.g. 2024-12-31 is 2025-W01
// and 2027-01-01 is 2026-W53).
func isoWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Analyze buckets sessions by entry cohort and computes completion
// metrics per bucket. The buckets partition the session map: every
// session lands in exactly one cohort. Results sort ascending by
// cohort key, which is chronological for every granularity.
func Analyze(funnel *model.Funnel, sessions session.Map, g Granularity) []Result {
	lastOrder := -1
	if last, ok := funnel.LastStep(); ok {
		lastOrder = last.Order
	}

	type bucket struct {
		total       int
		completed   int
		completeSum time.Duration
	}
	buckets := make(map[string]*bucket)
	for _, id := range sessions.SortedIDs() {
		s := sessions[id]
		key := Key(s.First().Timestamp, g)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.total++
		if lastOrder >= 0 && s.Completed(lastOrder) {
			b.completed++
			b.completeSum += s.Duration()
		}
	}

	results := make([]Result, 0, len(buckets))
	for key, b := range buckets {
		r := Result{
			Cohort:         key,
			TotalUsers:     b.total,
			CompletedUsers: b.completed,
		}
		if b.total > 0 {
			r.CompletionRate = 100 * float64(b.completed) / float64(b.total)
		}
		if b.completed > 0 {
			r.AvgCompletionTime = b.completeSum.Seconds() / float64(b.completed)
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Cohort < results[j].Cohort })
	return results
}
