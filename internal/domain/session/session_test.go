package session_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
)

func ev(sessionID string, step int, at time.Time) model.Event {
	return model.Event{
		ID:         fmt.Sprintf("%s-%d-%d", sessionID, step, at.Unix()),
		SessionID:  sessionID,
		StepNumber: step,
		Timestamp:  at,
	}
}

func TestReconstruct(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a flat event list spanning several sessions", t, func() {
		events := []model.Event{
			ev("s2", 1, base.Add(3*time.Minute)),
			ev("s1", 0, base),
			ev("s1", 2, base.Add(10*time.Minute)),
			ev("s1", 1, base.Add(5*time.Minute)),
			ev("s2", 0, base.Add(time.Minute)),
		}

		Convey("When reconstructing sessions", func() {
			sessions := session.Reconstruct(events)

			Convey("Then events are grouped by session id", func() {
				So(sessions, ShouldHaveLength, 2)
				So(sessions["s1"].Events, ShouldHaveLength, 3)
				So(sessions["s2"].Events, ShouldHaveLength, 2)
			})

			Convey("Then each session is ordered by step then timestamp", func() {
				s1 := sessions["s1"]
				So(s1.Events[0].StepNumber, ShouldEqual, 0)
				So(s1.Events[1].StepNumber, ShouldEqual, 1)
				So(s1.Events[2].StepNumber, ShouldEqual, 2)
			})

			Convey("Then sorted ids are deterministic", func() {
				So(sessions.SortedIDs(), ShouldResemble, []string{"s1", "s2"})
			})
		})

		Convey("When a session has duplicate events at one step", func() {
			dup := []model.Event{
				ev("s3", 1, base.Add(2*time.Minute)),
				ev("s3", 1, base.Add(time.Minute)),
				ev("s3", 0, base),
			}
			sessions := session.Reconstruct(dup)
			s := sessions["s3"]

			Convey("Then duplicates order by timestamp within the step", func() {
				So(s.Events[1].Timestamp, ShouldEqual, base.Add(time.Minute))
				So(s.Events[2].Timestamp, ShouldEqual, base.Add(2*time.Minute))
			})

			Convey("Then HasStep counts the step once", func() {
				So(s.HasStep(1), ShouldBeTrue)
				So(s.HasStep(2), ShouldBeFalse)
			})

			Convey("Then FirstAtStep picks the earliest occurrence", func() {
				first, ok := s.FirstAtStep(1)
				So(ok, ShouldBeTrue)
				So(first, ShouldEqual, base.Add(time.Minute))
			})
		})

		Convey("When reconstructing an empty list", func() {
			So(session.Reconstruct(nil), ShouldHaveLength, 0)
		})
	})
}

func TestSessionAccessors(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a reconstructed session", t, func() {
		sessions := session.Reconstruct([]model.Event{
			ev("s1", 2, base.Add(8*time.Minute)),
			ev("s1", 0, base),
			ev("s1", 1, base.Add(3*time.Minute)),
		})
		s := sessions["s1"]

		Convey("Then First and Last follow traversal order", func() {
			So(s.First().StepNumber, ShouldEqual, 0)
			So(s.Last().StepNumber, ShouldEqual, 2)
		})

		Convey("Then MaxStep is the highest step reached", func() {
			So(s.MaxStep(), ShouldEqual, 2)
		})

		Convey("Then Duration spans first to last event", func() {
			So(s.Duration(), ShouldEqual, 8*time.Minute)
		})

		Convey("Then completion depends on the funnel's last index", func() {
			So(s.Completed(2), ShouldBeTrue)
			So(s.Completed(3), ShouldBeFalse)
		})
	})

	Convey("Given a session clipped by the query window", t, func() {
		sessions := session.Reconstruct([]model.Event{
			ev("s1", 3, base.Add(time.Minute)),
			ev("s1", 2, base),
		})
		s := sessions["s1"]

		Convey("Then the entry event is not at step zero", func() {
			So(s.First().StepNumber, ShouldEqual, 2)
			So(s.Completed(3), ShouldBeTrue)
		})
	})
}
