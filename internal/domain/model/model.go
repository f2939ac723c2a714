// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds shared across the engine. Callers match with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
)

// Metadata is an arbitrary JSON-like map attached to events and step
// conditions. Values are restricted to strings, numbers, booleans, nil,
// and nested maps/lists of the same; Validate enforces this at ingestion
// so read paths can trust the shape.
type Metadata map[string]any

// Validate walks the map and rejects values outside the allowed kinds.
func (m Metadata) Validate() error {
	for k, v := range m {
		if err := validateValue(v); err != nil {
			return fmt.Errorf("metadata key %q: %w", k, err)
		}
	}
	return nil
}

func validateValue(v any) error {
	switch val := v.(type) {
	case nil, string, bool,
		float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case map[string]any:
		return Metadata(val).Validate()
	case []any:
		for i, item := range val {
			if err := validateValue(item); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported metadata value type %T", ErrInvalidInput, v)
	}
}

// Step is one ordered stage of a funnel. Order values are contiguous
// integers 0..N-1; the definition CRUD upstream enforces that before a
// funnel ever reaches this engine.
type Step struct {
	Name       string   `json:"name"`
	Order      int      `json:"order"`
	Conditions Metadata `json:"conditions,omitempty"`
}

// Funnel is a stored funnel definition. Read-only to the engine.
type Funnel struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"accountId"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Steps           []Step    `json:"steps"`
	TrackingEnabled bool      `json:"trackingEnabled"`
	Metadata        Metadata  `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// LastStep returns the final step of the funnel and false when the
// funnel has no steps.
func (f *Funnel) LastStep() (Step, bool) {
	if len(f.Steps) == 0 {
		return Step{}, false
	}
	return f.Steps[len(f.Steps)-1], true
}

// StepByOrder looks a step up by its order index.
func (f *Funnel) StepByOrder(order int) (Step, bool) {
	for _, s := range f.Steps {
		if s.Order == order {
			return s, true
		}
	}
	return Step{}, false
}

// Event is a single funnel event. Append-only: the engine never mutates
// or deletes stored events.
type Event struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"accountId"`
	FunnelID   string    `json:"funnelId"`
	SessionID  string    `json:"sessionId"`
	Step       string    `json:"step"`
	StepNumber int       `json:"stepNumber"`
	Timestamp  time.Time `json:"timestamp"`
	Metadata   Metadata  `json:"metadata,omitempty"`
}

// MetricsRow is one materialized per-step aggregate, keyed by
// (FunnelID, StepNumber, Period). AvgTimeToNext is nil when no session
// advanced past the step inside the window, and for the last step.
type MetricsRow struct {
	FunnelID       string    `json:"funnelId"`
	Step           string    `json:"step"`
	StepNumber     int       `json:"stepNumber"`
	Period         string    `json:"period"`
	TotalCount     int       `json:"totalCount"`
	ConversionRate float64   `json:"conversionRate"`
	DropOffRate    float64   `json:"dropOffRate"`
	AvgTimeToNext  *float64  `json:"avgTimeToNext,omitempty"`
	WindowStart    time.Time `json:"windowStart"`
	WindowEnd      time.Time `json:"windowEnd"`
}

// PeriodKey formats a window start as the canonical YYYY-MM-DD period
// identifier, in UTC.
func PeriodKey(windowStart time.Time) string {
	return windowStart.UTC().Format("2006-01-02")
}

// TimeWindow is a closed [Start, End] interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastNDays returns a window covering the n days ending at now.
func LastNDays(now time.Time, n int) TimeWindow {
	return TimeWindow{Start: now.AddDate(0, 0, -n), End: now}
}

// Validate rejects windows whose end precedes their start.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: time window must have both start and end", ErrInvalidInput)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: time window end %s before start %s", ErrInvalidInput, w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls inside the closed interval.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
