package seed

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Segment values sprinkled over first events so segment analysis has
// something to chew on.
var channels = []string{"organic", "paid", "email", "social"}

// Device mix for a second metadata dimension.
var devices = []string{"desktop", "mobile", "tablet"}

const (
	minStepGap = 10 * time.Second
	maxStepGap = 5 * time.Minute
)

type seedEvent struct {
	SessionID  string
	StepNumber int
	Timestamp  time.Time
	Metadata   map[string]any
}

type seedSession struct {
	id     string
	events []seedEvent
}

// generateSessions walks each synthetic session through the funnel,
// flipping a continue coin at every step. Entry times spread over the
// preceding week so cohort buckets vary.
func generateSessions(cfg *Config) []seedSession {
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // synthetic data only
	now := time.Now().UTC()

	sessions := make([]seedSession, 0, cfg.Sessions)
	for i := 0; i < cfg.Sessions; i++ {
		s := seedSession{id: uuid.NewString()}
		ts := now.Add(-time.Duration(rng.Intn(7*24)) * time.Hour)
		md := map[string]any{
			"channel": channels[rng.Intn(len(channels))],
			"device":  devices[rng.Intn(len(devices))],
		}
		for step := 0; step < cfg.StepCount; step++ {
			s.events = append(s.events, seedEvent{
				SessionID:  s.id,
				StepNumber: step,
				Timestamp:  ts,
				Metadata:   md,
			})
			if rng.Float64() > cfg.ContinueProbability {
				break
			}
			gap := minStepGap + time.Duration(rng.Int63n(int64(maxStepGap-minStepGap)))
			ts = ts.Add(gap)
		}
		sessions = append(sessions, s)
	}
	return sessions
}
