package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const accountHeader = "X-Account-ID"

// eventBody mirrors the ingestion request schema.
type eventBody struct {
	FunnelID   string         `json:"funnel_id"`
	SessionID  string         `json:"session_id"`
	StepNumber int            `json:"step_number"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// postAll fans sessions out over a worker pool. Events within a
// session are posted sequentially; sessions are independent.
func postAll(ctx context.Context, cfg *Config, sessions []seedSession) (posted, failed int, err error) {
	client := &http.Client{Timeout: cfg.Timeout}
	url := cfg.BaseURL + "/api/events"

	var (
		ok   int64
		bad  int64
		wg   sync.WaitGroup
		work = make(chan seedSession, cfg.Workers*2)
	)

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				for _, e := range s.events {
					if ctx.Err() != nil {
						return
					}
					if perr := postOne(ctx, client, url, cfg, e); perr != nil {
						atomic.AddInt64(&bad, 1)
						continue
					}
					atomic.AddInt64(&ok, 1)
				}
			}
		}()
	}

feed:
	for _, s := range sessions {
		select {
		case work <- s:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	posted = int(atomic.LoadInt64(&ok))
	failed = int(atomic.LoadInt64(&bad))
	if cerr := ctx.Err(); cerr != nil {
		return posted, failed, cerr
	}
	return posted, failed, nil
}

func postOne(ctx context.Context, client *http.Client, url string, cfg *Config, e seedEvent) error {
	body, err := json.Marshal(eventBody{
		FunnelID:   cfg.FunnelID,
		SessionID:  e.SessionID,
		StepNumber: e.StepNumber,
		Timestamp:  e.Timestamp,
		Metadata:   e.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accountHeader, cfg.AccountID)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
