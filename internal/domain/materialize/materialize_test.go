package materialize_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/steplens/steplens/internal/domain/materialize"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
)

func TestCompute(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	window := model.TimeWindow{Start: start, End: start.AddDate(0, 0, 1)}
	funnel := &model.Funnel{
		ID:   "fn-1",
		Name: "Onboarding",
		Steps: []model.Step{
			{Name: "open", Order: 0},
			{Name: "done", Order: 1},
		},
	}

	events := func() []model.Event {
		var out []model.Event
		for i, maxStep := range []int{1, 0, 0} {
			id := fmt.Sprintf("s%d", i)
			for step := 0; step <= maxStep; step++ {
				out = append(out, model.Event{
					ID:         fmt.Sprintf("%s-%d", id, step),
					SessionID:  id,
					StepNumber: step,
					Timestamp:  start.Add(time.Duration(i*10+step) * time.Minute),
				})
			}
		}
		return out
	}()

	Convey("Given three sessions where one completes", t, func() {
		sessions := session.Reconstruct(events)

		Convey("When computing metric rows", func() {
			rows := materialize.Compute(funnel, sessions, window)

			Convey("Then one row per step carries the step figures", func() {
				So(rows, ShouldHaveLength, 2)
				So(rows[0].Step, ShouldEqual, "open")
				So(rows[0].TotalCount, ShouldEqual, 3)
				So(rows[0].ConversionRate, ShouldAlmostEqual, 100.0/3)
				So(rows[1].Step, ShouldEqual, "done")
				So(rows[1].TotalCount, ShouldEqual, 1)
				So(rows[1].ConversionRate, ShouldEqual, 100)
			})

			Convey("Then rows share the window's period key", func() {
				for _, r := range rows {
					So(r.FunnelID, ShouldEqual, "fn-1")
					So(r.Period, ShouldEqual, "2024-05-01")
					So(r.WindowStart, ShouldEqual, window.Start)
					So(r.WindowEnd, ShouldEqual, window.End)
				}
			})
		})

		Convey("When computing the same window twice", func() {
			first := materialize.Compute(funnel, sessions, window)
			second := materialize.Compute(funnel, sessions, window)

			Convey("Then the output is identical", func() {
				So(second, ShouldResemble, first)
			})
		})
	})

	Convey("Given an empty window", t, func() {
		rows := materialize.Compute(funnel, session.Map{}, window)

		Convey("Then rows still cover every step with zero counts", func() {
			So(rows, ShouldHaveLength, 2)
			So(rows[0].TotalCount, ShouldEqual, 0)
			So(rows[0].ConversionRate, ShouldEqual, 0)
		})
	})
}
