// Command seed-events posts synthetic funnel traffic to a running
// service instance so the analysis endpoints have data to report on.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/steplens/steplens/internal/seed"
)

const (
	defaultSessions    = 500
	defaultStepCount   = 4
	defaultProbability = 0.7
	defaultTimeout     = 10 * time.Second
	defaultRunTimeout  = 5 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9090", "Base URL of the service")
		accountID = flag.String("account", "acct-local", "Account ID sent in the X-Account-ID header")
		funnelID  = flag.String("funnel", "", "Funnel ID to post events against (required)")
		steps     = flag.Int("steps", defaultStepCount, "Number of steps in the target funnel")
		sessions  = flag.Int("sessions", defaultSessions, "Number of synthetic sessions to generate")
		prob      = flag.Float64("p", defaultProbability, "Probability a session advances past each step")
		workers   = flag.Int("workers", runtime.NumCPU(), "Number of concurrent posting workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:             *baseURL,
		AccountID:           *accountID,
		FunnelID:            *funnelID,
		StepCount:           *steps,
		Sessions:            *sessions,
		ContinueProbability: *prob,
		Workers:             *workers,
		Timeout:             *timeout,
	}

	summary, err := seed.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "seed run failed:", err)
		os.Exit(1)
	}

	fmt.Printf("seeded %d sessions (%d events) in %s: %d posted, %d failed\n",
		summary.Sessions, summary.Events, summary.Elapsed.Round(time.Millisecond),
		summary.Posted, summary.Failed)
	for i, n := range summary.PerStepCount {
		fmt.Printf("  step %d: %d events\n", i, n)
	}
}
