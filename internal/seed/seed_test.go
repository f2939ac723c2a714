package seed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func validConfig(baseURL string) *Config {
	return &Config{
		BaseURL:             baseURL,
		AccountID:           "acct-test",
		FunnelID:            "fn-test",
		StepCount:           3,
		Sessions:            20,
		ContinueProbability: 1.0,
		Workers:             4,
		Timeout:             5 * time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	Convey("Given a seeding configuration", t, func() {
		Convey("Then a complete configuration validates", func() {
			So(validConfig("http://localhost:9090").Validate(), ShouldBeNil)
		})

		Convey("Then each missing or bad field is rejected", func() {
			mutations := []func(*Config){
				func(c *Config) { c.BaseURL = "" },
				func(c *Config) { c.AccountID = "" },
				func(c *Config) { c.FunnelID = "" },
				func(c *Config) { c.StepCount = 0 },
				func(c *Config) { c.Sessions = -1 },
				func(c *Config) { c.ContinueProbability = 0 },
				func(c *Config) { c.ContinueProbability = 1.5 },
				func(c *Config) { c.Workers = 0 },
			}
			for _, mutate := range mutations {
				cfg := validConfig("http://localhost:9090")
				mutate(cfg)
				So(cfg.Validate(), ShouldNotBeNil)
			}
		})
	})
}

func TestGenerateSessions(t *testing.T) {
	Convey("Given a generator that always continues", t, func() {
		cfg := validConfig("http://localhost:9090")
		sessions := generateSessions(cfg)

		Convey("Then every session walks all steps", func() {
			So(sessions, ShouldHaveLength, cfg.Sessions)
			for _, s := range sessions {
				So(s.events, ShouldHaveLength, cfg.StepCount)
			}
		})

		Convey("Then step numbers ascend with timestamps", func() {
			for _, s := range sessions {
				for i, e := range s.events {
					So(e.StepNumber, ShouldEqual, i)
					So(e.SessionID, ShouldEqual, s.id)
					if i > 0 {
						So(e.Timestamp.After(s.events[i-1].Timestamp), ShouldBeTrue)
					}
				}
			}
		})

		Convey("Then first events carry segmentation metadata", func() {
			for _, s := range sessions {
				So(s.events[0].Metadata["channel"], ShouldNotBeEmpty)
				So(s.events[0].Metadata["device"], ShouldNotBeEmpty)
			}
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a fake ingestion endpoint", t, func() {
		var posted atomic.Int64
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/events" || r.Header.Get(accountHeader) == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var body eventBody
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FunnelID == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			posted.Add(1)
			w.WriteHeader(http.StatusCreated)
		}))
		defer ts.Close()

		Convey("When running a full-completion seed", func() {
			cfg := validConfig(ts.URL)
			summary, err := Run(context.Background(), cfg)

			Convey("Then every generated event is posted", func() {
				So(err, ShouldBeNil)
				So(summary.Sessions, ShouldEqual, cfg.Sessions)
				So(summary.Events, ShouldEqual, cfg.Sessions*cfg.StepCount)
				So(summary.Posted, ShouldEqual, summary.Events)
				So(summary.Failed, ShouldEqual, 0)
				So(int(posted.Load()), ShouldEqual, summary.Events)
				So(summary.PerStepCount[0], ShouldEqual, cfg.Sessions)
			})
		})

		Convey("When the configuration is invalid", func() {
			cfg := validConfig(ts.URL)
			cfg.Sessions = 0
			_, err := Run(context.Background(), cfg)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a server that rejects everything", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer ts.Close()

		Convey("When running against it", func() {
			cfg := validConfig(ts.URL)
			cfg.Sessions = 5
			summary, err := Run(context.Background(), cfg)

			Convey("Then failures are counted, not fatal", func() {
				So(err, ShouldBeNil)
				So(summary.Posted, ShouldEqual, 0)
				So(summary.Failed, ShouldEqual, summary.Events)
			})
		})
	})
}
