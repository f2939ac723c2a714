// Package seed generates synthetic funnel traffic against a running
// service, for local smoke testing of the analytics endpoints.
package seed

import (
	"context"
	"fmt"
	"time"
)

// Config controls a seeding run.
type Config struct {
	// BaseURL of the running service, e.g. http://localhost:9090.
	BaseURL string

	// AccountID and FunnelID scope the generated events. The funnel
	// must already exist with tracking enabled.
	AccountID string
	FunnelID  string

	// StepCount is the number of steps in the target funnel.
	StepCount int

	// Sessions is how many synthetic sessions to walk.
	Sessions int

	// ContinueProbability is the chance a session advances past each
	// step; lower values produce steeper funnels.
	ContinueProbability float64

	// Workers is the number of concurrent posting goroutines.
	Workers int

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Validate rejects unusable configurations.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base url is required")
	case c.AccountID == "":
		return fmt.Errorf("account id is required")
	case c.FunnelID == "":
		return fmt.Errorf("funnel id is required")
	case c.StepCount <= 0:
		return fmt.Errorf("step count must be positive")
	case c.Sessions <= 0:
		return fmt.Errorf("session count must be positive")
	case c.ContinueProbability <= 0 || c.ContinueProbability > 1:
		return fmt.Errorf("continue probability must be in (0, 1]")
	case c.Workers <= 0:
		return fmt.Errorf("worker count must be positive")
	}
	return nil
}

// Summary reports what a run produced.
type Summary struct {
	Sessions     int
	Events       int
	Posted       int
	Failed       int
	PerStepCount []int
	Elapsed      time.Duration
}

// Run generates sessions and posts their events.
func Run(ctx context.Context, cfg *Config) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	sessions := generateSessions(cfg)
	summary := &Summary{
		Sessions:     len(sessions),
		PerStepCount: make([]int, cfg.StepCount),
	}
	for _, s := range sessions {
		summary.Events += len(s.events)
		for _, e := range s.events {
			summary.PerStepCount[e.StepNumber]++
		}
	}

	posted, failed, err := postAll(ctx, cfg, sessions)
	summary.Posted = posted
	summary.Failed = failed
	summary.Elapsed = time.Since(start)
	return summary, err
}
