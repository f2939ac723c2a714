package cohort_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/steplens/steplens/internal/domain/cohort"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
)

func twoStepFunnel() *model.Funnel {
	return &model.Funnel{
		ID:   "fn",
		Name: "Two",
		Steps: []model.Step{
			{Name: "enter", Order: 0},
			{Name: "finish", Order: 1},
		},
	}
}

// journey emits events for one session entering at entry and reaching
// maxStep, with a 90s gap per step.
func journey(id string, entry time.Time, maxStep int) []model.Event {
	var events []model.Event
	for step := 0; step <= maxStep; step++ {
		events = append(events, model.Event{
			ID:         fmt.Sprintf("%s-%d", id, step),
			SessionID:  id,
			StepNumber: step,
			Timestamp:  entry.Add(time.Duration(step) * 90 * time.Second),
		})
	}
	return events
}

func TestParseGranularity(t *testing.T) {
	Convey("Given caller-supplied cohort_by values", t, func() {
		Convey("Then the empty string maps to the default", func() {
			g, err := cohort.ParseGranularity("")
			So(err, ShouldBeNil)
			So(g, ShouldEqual, cohort.ByDay)
		})

		Convey("Then day, week and month are accepted", func() {
			for _, s := range []string{"day", "week", "month"} {
				g, err := cohort.ParseGranularity(s)
				So(err, ShouldBeNil)
				So(string(g), ShouldEqual, s)
			}
		})

		Convey("Then anything else is rejected before data access", func() {
			_, err := cohort.ParseGranularity("fortnight")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "fortnight")
		})
	})
}

func TestKey(t *testing.T) {
	Convey("Given entry timestamps", t, func() {
		at := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

		Convey("Then day keys are ISO dates", func() {
			So(cohort.Key(at, cohort.ByDay), ShouldEqual, "2024-01-02")
		})

		Convey("Then month keys are year-month", func() {
			So(cohort.Key(at, cohort.ByMonth), ShouldEqual, "2024-01")
		})

		Convey("Then week keys follow the ISO week-year", func() {
			So(cohort.Key(at, cohort.ByWeek), ShouldEqual, "2024-W01")
			// Dec 31 2024 is a Tuesday in a week whose Thursday falls
			// in 2025, so it belongs to 2025-W01.
			dec31 := time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC)
			So(cohort.Key(dec31, cohort.ByWeek), ShouldEqual, "2025-W01")
			// Jan 1 2027 is a Friday trailing a 53-week ISO year.
			jan1 := time.Date(2027, 1, 1, 10, 0, 0, 0, time.UTC)
			So(cohort.Key(jan1, cohort.ByWeek), ShouldEqual, "2026-W53")
			// Jan 4 always lands in week 1 of its own year.
			jan4 := time.Date(2027, 1, 4, 10, 0, 0, 0, time.UTC)
			So(cohort.Key(jan4, cohort.ByWeek), ShouldEqual, "2027-W01")
			// Dec 29 2025 is a Monday opening 2026-W01.
			dec29 := time.Date(2025, 12, 29, 10, 0, 0, 0, time.UTC)
			So(cohort.Key(dec29, cohort.ByWeek), ShouldEqual, "2026-W01")
		})

		Convey("Then keys normalize to UTC", func() {
			zone := time.FixedZone("UTC+9", 9*3600)
			late := time.Date(2024, 1, 3, 2, 0, 0, 0, zone) // 2024-01-02T17:00Z
			So(cohort.Key(late, cohort.ByDay), ShouldEqual, "2024-01-02")
		})
	})
}

func TestAnalyze(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	Convey("Given sessions entering on two different days", t, func() {
		funnel := twoStepFunnel()
		var events []model.Event
		events = append(events, journey("a", day1, 1)...) // completes
		events = append(events, journey("b", day1, 0)...) // drops
		events = append(events, journey("c", day2, 1)...) // completes
		sessions := session.Reconstruct(events)

		Convey("When bucketing by day", func() {
			results := cohort.Analyze(funnel, sessions, cohort.ByDay)

			Convey("Then cohorts come back in chronological order", func() {
				So(results, ShouldHaveLength, 2)
				So(results[0].Cohort, ShouldEqual, "2024-01-01")
				So(results[1].Cohort, ShouldEqual, "2024-01-02")
			})

			Convey("Then each bucket carries its own completion figures", func() {
				So(results[0].TotalUsers, ShouldEqual, 2)
				So(results[0].CompletedUsers, ShouldEqual, 1)
				So(results[0].CompletionRate, ShouldAlmostEqual, 50)
				So(results[0].AvgCompletionTime, ShouldAlmostEqual, 90)

				So(results[1].TotalUsers, ShouldEqual, 1)
				So(results[1].CompletedUsers, ShouldEqual, 1)
				So(results[1].CompletionRate, ShouldAlmostEqual, 100)
			})
		})

		Convey("When bucketing by month", func() {
			results := cohort.Analyze(funnel, sessions, cohort.ByMonth)

			Convey("Then both days collapse into one bucket", func() {
				So(results, ShouldHaveLength, 1)
				So(results[0].Cohort, ShouldEqual, "2024-01")
				So(results[0].TotalUsers, ShouldEqual, 3)
				So(results[0].CompletedUsers, ShouldEqual, 2)
			})
		})
	})

	Convey("Given no sessions", t, func() {
		results := cohort.Analyze(twoStepFunnel(), session.Map{}, cohort.ByDay)

		Convey("Then no empty buckets are fabricated", func() {
			So(results, ShouldBeEmpty)
		})
	})
}
