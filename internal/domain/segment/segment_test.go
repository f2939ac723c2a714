package segment_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/segment"
	"github.com/steplens/steplens/internal/domain/session"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func threeStepFunnel() *model.Funnel {
	return &model.Funnel{
		ID:   "fn",
		Name: "Three",
		Steps: []model.Step{
			{Name: "landing", Order: 0},
			{Name: "cart", Order: 1},
			{Name: "payment", Order: 2},
		},
	}
}

// journey emits one session's events; md is attached to the first
// event only, matching how attribution metadata usually arrives.
func journey(id string, maxStep int, md model.Metadata) []model.Event {
	var events []model.Event
	for step := 0; step <= maxStep; step++ {
		e := model.Event{
			ID:         fmt.Sprintf("%s-%d", id, step),
			SessionID:  id,
			StepNumber: step,
			Timestamp:  base.Add(time.Duration(step) * time.Minute),
		}
		if step == 0 {
			e.Metadata = md
		}
		events = append(events, e)
	}
	return events
}

func TestAnalyze(t *testing.T) {
	Convey("Given sessions tagged with a channel dimension", t, func() {
		funnel := threeStepFunnel()
		var events []model.Event
		// organic: 3 sessions, 2 complete, 1 stops at cart.
		events = append(events, journey("o1", 2, model.Metadata{"channel": "organic"})...)
		events = append(events, journey("o2", 2, model.Metadata{"channel": "organic"})...)
		events = append(events, journey("o3", 1, model.Metadata{"channel": "organic"})...)
		// paid: 2 sessions, both stop at landing.
		events = append(events, journey("p1", 0, model.Metadata{"channel": "paid"})...)
		events = append(events, journey("p2", 0, model.Metadata{"channel": "paid"})...)
		// untagged: 1 session without the field.
		events = append(events, journey("u1", 0, nil)...)
		sessions := session.Reconstruct(events)

		Convey("When segmenting by channel", func() {
			results, err := segment.Analyze(funnel, sessions, "channel")
			So(err, ShouldBeNil)

			Convey("Then segments sort largest first", func() {
				So(results, ShouldHaveLength, 3)
				So(results[0].Segment, ShouldEqual, "organic")
				So(results[1].Segment, ShouldEqual, "paid")
				So(results[2].Segment, ShouldEqual, segment.UnknownSegment)
			})

			Convey("Then completion figures are per segment", func() {
				So(results[0].TotalUsers, ShouldEqual, 3)
				So(results[0].CompletedUsers, ShouldEqual, 2)
				So(results[0].CompletionRate, ShouldAlmostEqual, 100.0*2/3)
				So(results[0].AvgCompletionTime, ShouldAlmostEqual, 120)
			})

			Convey("Then the top drop-off is the step after the furthest reached", func() {
				So(results[0].TopDropOffStep, ShouldEqual, "payment")
				So(results[1].TopDropOffStep, ShouldEqual, "cart")
			})

			Convey("Then sessions without the field land in Unknown", func() {
				So(results[2].TotalUsers, ShouldEqual, 1)
				So(results[2].CompletedUsers, ShouldEqual, 0)
			})
		})

		Convey("When the segment field is empty", func() {
			_, err := segment.Analyze(funnel, sessions, "")
			So(err, ShouldEqual, segment.ErrMissingField)
		})
	})

	Convey("Given a fully converting segment", t, func() {
		funnel := threeStepFunnel()
		sessions := session.Reconstruct(journey("x", 2, model.Metadata{"channel": "email"}))
		results, err := segment.Analyze(funnel, sessions, "channel")
		So(err, ShouldBeNil)

		Convey("Then it reports no drop-off step", func() {
			So(results[0].TopDropOffStep, ShouldEqual, segment.NoDropOff)
		})
	})

	Convey("Given non-string metadata values", t, func() {
		funnel := threeStepFunnel()
		var events []model.Event
		events = append(events, journey("n1", 0, model.Metadata{"plan_tier": 3})...)
		events = append(events, journey("n2", 0, model.Metadata{"plan_tier": true})...)
		events = append(events, journey("n3", 0, model.Metadata{"plan_tier": nil})...)
		sessions := session.Reconstruct(events)
		results, err := segment.Analyze(funnel, sessions, "plan_tier")
		So(err, ShouldBeNil)

		Convey("Then values stringify and nil counts as Unknown", func() {
			segments := make([]string, 0, len(results))
			for _, r := range results {
				segments = append(segments, r.Segment)
			}
			So(segments, ShouldContain, "3")
			So(segments, ShouldContain, "true")
			So(segments, ShouldContain, segment.UnknownSegment)
		})
	})

	Convey("Given equal-sized segments", t, func() {
		funnel := threeStepFunnel()
		var events []model.Event
		events = append(events, journey("a1", 0, model.Metadata{"channel": "zulu"})...)
		events = append(events, journey("a2", 0, model.Metadata{"channel": "alpha"})...)
		sessions := session.Reconstruct(events)
		results, err := segment.Analyze(funnel, sessions, "channel")
		So(err, ShouldBeNil)

		Convey("Then ties break by segment name", func() {
			So(results[0].Segment, ShouldEqual, "alpha")
			So(results[1].Segment, ShouldEqual, "zulu")
		})
	})
}
