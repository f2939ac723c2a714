// Package analyze computes per-step and whole-funnel conversion
// statistics from reconstructed sessions. All computations are pure:
// they read a session map and a funnel definition and return report
// structs, so they are safe to run concurrently and trivial to test.
package analyze

import (
	"math"
	"sort"
	"time"

	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
)

// StepResult is the per-step breakdown. Rates are percentages in
// [0, 100]. For the final step ConversionRate is 100 and DropOffRate 0
// by definition: there is nowhere left to drop off to.
type StepResult struct {
	Step             string   `json:"step"`
	StepNumber       int      `json:"stepNumber"`
	TotalUsers       int      `json:"totalUsers"`
	ConversionRate   float64  `json:"conversionRate"`
	DropOffRate      float64  `json:"dropOffRate"`
	AvgTimeToNext    *float64 `json:"avgTimeToNext,omitempty"`
	AvgTimeFromStart float64  `json:"avgTimeFromStart"`
}

// DropOffPoint annotates a leaking step with an estimated session
// count lost between it and the next step.
type DropOffPoint struct {
	Step         string  `json:"step"`
	StepNumber   int     `json:"stepNumber"`
	DropOffRate  float64 `json:"dropOffRate"`
	DropOffCount int     `json:"dropOffCount"`
}

// Report is the combined funnel analysis: totals, per-step breakdown,
// and drop-off points ranked worst first.
type Report struct {
	FunnelID              string           `json:"funnelId"`
	FunnelName            string           `json:"funnelName"`
	Window                model.TimeWindow `json:"window"`
	TotalSessions         int              `json:"totalSessions"`
	CompletedSessions     int              `json:"completedSessions"`
	CompletionRate        float64          `json:"completionRate"`
	AverageTimeToComplete float64          `json:"averageTimeToComplete"`
	Steps                 []StepResult     `json:"steps"`
	DropOffPoints         []DropOffPoint   `json:"dropOffPoints"`
}

// Steps computes the ordered per-step results for a funnel. Missing
// data never errors: zero-population cases degrade to 0 rates.
func Steps(funnel *model.Funnel, sessions session.Map) []StepResult {
	results := make([]StepResult, 0, len(funnel.Steps))
	ids := sessions.SortedIDs()

	for i, step := range funnel.Steps {
		res := StepResult{Step: step.Name, StepNumber: step.Order}
		last := i == len(funnel.Steps)-1

		var (
			converted     int
			timeToNextSum time.Duration
			timeToNextN   int
			fromStartSum  time.Duration
			fromStartN    int
		)
		for _, id := range ids {
			s := sessions[id]
			if !s.HasStep(step.Order) {
				continue
			}
			res.TotalUsers++

			atStep, _ := s.FirstAtStep(step.Order)
			fromStartSum += atStep.Sub(s.First().Timestamp)
			fromStartN++

			if last {
				continue
			}
			next := funnel.Steps[i+1]
			if !s.HasStep(next.Order) {
				continue
			}
			converted++
			if atNext, ok := s.FirstAtStep(next.Order); ok {
				timeToNextSum += atNext.Sub(atStep)
				timeToNextN++
			}
		}

		switch {
		case last:
			res.ConversionRate = 100
			res.DropOffRate = 0
		case res.TotalUsers > 0:
			res.ConversionRate = 100 * float64(converted) / float64(res.TotalUsers)
			res.DropOffRate = 100 - res.ConversionRate
		default:
			res.ConversionRate = 0
			res.DropOffRate = 0
		}
		if timeToNextN > 0 {
			avg := timeToNextSum.Seconds() / float64(timeToNextN)
			res.AvgTimeToNext = &avg
		}
		if fromStartN > 0 {
			res.AvgTimeFromStart = fromStartSum.Seconds() / float64(fromStartN)
		}
		results = append(results, res)
	}
	return results
}

// Funnel aggregates step results and whole-funnel completion figures
// into a single report. Completion means the session's maximum step
// number equals the funnel's last step order; the completion instant
// is the session's last event in the window.
func Funnel(funnel *model.Funnel, sessions session.Map, steps []StepResult, window model.TimeWindow) Report {
	report := Report{
		FunnelID:      funnel.ID,
		FunnelName:    funnel.Name,
		Window:        window,
		TotalSessions: len(sessions),
		Steps:         steps,
		DropOffPoints: dropOffPoints(steps),
	}

	lastStep, ok := funnel.LastStep()
	if !ok || len(sessions) == 0 {
		return report
	}

	var completeSum time.Duration
	for _, id := range sessions.SortedIDs() {
		s := sessions[id]
		if !s.Completed(lastStep.Order) {
			continue
		}
		report.CompletedSessions++
		completeSum += s.Duration()
	}
	report.CompletionRate = 100 * float64(report.CompletedSessions) / float64(report.TotalSessions)
	if report.CompletedSessions > 0 {
		report.AverageTimeToComplete = completeSum.Seconds() / float64(report.CompletedSessions)
	}
	return report
}

// dropOffPoints ranks leaking steps worst first. Zero-rate steps are
// excluded; equal rates retain step-list encounter order.
func dropOffPoints(steps []StepResult) []DropOffPoint {
	points := make([]DropOffPoint, 0, len(steps))
	for _, s := range steps {
		if s.DropOffRate <= 0 {
			continue
		}
		points = append(points, DropOffPoint{
			Step:         s.Step,
			StepNumber:   s.StepNumber,
			DropOffRate:  s.DropOffRate,
			DropOffCount: int(math.Floor(float64(s.TotalUsers) * s.DropOffRate / 100)),
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].DropOffRate > points[j].DropOffRate
	})
	return points
}
