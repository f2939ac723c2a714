// Package materialize turns window-scoped sessions into persistable
// per-step metric rows. Compute is a pure function of its inputs so
// re-running a period against unchanged events yields identical rows;
// the storage upsert downstream supplies the idempotent write.
package materialize

import (
	"github.com/steplens/steplens/internal/domain/analyze"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
)

// Compute derives one MetricsRow per funnel step for the given window.
// Rates follow the step analyzer exactly; period is the canonical
// YYYY-MM-DD key of the window start.
func Compute(funnel *model.Funnel, sessions session.Map, window model.TimeWindow) []model.MetricsRow {
	period := model.PeriodKey(window.Start)
	steps := analyze.Steps(funnel, sessions)
	rows := make([]model.MetricsRow, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, model.MetricsRow{
			FunnelID:       funnel.ID,
			Step:           s.Step,
			StepNumber:     s.StepNumber,
			Period:         period,
			TotalCount:     s.TotalUsers,
			ConversionRate: s.ConversionRate,
			DropOffRate:    s.DropOffRate,
			AvgTimeToNext:  s.AvgTimeToNext,
			WindowStart:    window.Start,
			WindowEnd:      window.End,
		})
	}
	return rows
}
