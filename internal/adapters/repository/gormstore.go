package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	gpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	glogger "gorm.io/gorm/logger"

	"github.com/steplens/steplens/internal/domain/model"
)

// funnelRecord is the stored shape of a funnel definition. Steps
// persist as a JSON document since the engine never queries inside
// them; metadata as a JSON map.
type funnelRecord struct {
	ID              string `gorm:"primaryKey"`
	AccountID       string `gorm:"index:idx_funnels_account"`
	Name            string
	Description     string
	Steps           datatypes.JSON
	TrackingEnabled bool `gorm:"index:idx_funnels_tracked"`
	Metadata        datatypes.JSONMap
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (funnelRecord) TableName() string { return "funnels" }

// eventRecord is one appended funnel event. The composite index serves
// the one-query-per-window fetch.
type eventRecord struct {
	ID         string `gorm:"primaryKey"`
	AccountID  string `gorm:"index:idx_events_account"`
	FunnelID   string `gorm:"index:idx_events_funnel_ts,priority:1"`
	SessionID  string `gorm:"index:idx_events_session"`
	Step       string
	StepNumber int
	Timestamp  time.Time `gorm:"index:idx_events_funnel_ts,priority:2"`
	Metadata   datatypes.JSONMap
}

func (eventRecord) TableName() string { return "funnel_events" }

// metricRecord is one materialized aggregate. The unique index is the
// upsert's business key.
type metricRecord struct {
	ID             uint   `gorm:"primaryKey"`
	FunnelID       string `gorm:"uniqueIndex:idx_metrics_key,priority:1"`
	StepNumber     int    `gorm:"uniqueIndex:idx_metrics_key,priority:2"`
	Period         string `gorm:"uniqueIndex:idx_metrics_key,priority:3"`
	Step           string
	TotalCount     int
	ConversionRate float64
	DropOffRate    float64
	AvgTimeToNext  *float64
	WindowStart    time.Time
	WindowEnd      time.Time
	UpdatedAt      time.Time
}

func (metricRecord) TableName() string { return "funnel_metrics" }

// Open opens a gorm.DB for the given DSN. Postgres DSNs are detected
// by scheme; anything else (including the empty string and :memory:)
// falls through to the pure-Go sqlite driver.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: glogger.Default.LogMode(glogger.Silent)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(gpostgres.Open(dsn), cfg)
	}
	if dsn == "" {
		dsn = "file:steplens.db"
	}
	if strings.HasPrefix(dsn, "sqlite:///") {
		dsn = "file:" + strings.TrimPrefix(dsn, "sqlite:///")
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// Store implements DefinitionStore, EventStore, and MetricsStore on a
// single relational database.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns a ready Store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&funnelRecord{}, &eventRecord{}, &metricRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", errs(err))
	}
	return &Store{db: db}, nil
}

// GetFunnel fetches a funnel scoped to its owning account.
func (s *Store) GetFunnel(ctx context.Context, funnelID, accountID string) (*model.Funnel, error) {
	var rec funnelRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", funnelID, accountID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("funnel %s: %w", funnelID, ErrFunnelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get funnel: %w", errs(err))
	}
	return rec.toModel()
}

// ListTracked returns every tracking-enabled funnel.
func (s *Store) ListTracked(ctx context.Context) ([]model.Funnel, error) {
	var recs []funnelRecord
	if err := s.db.WithContext(ctx).Where("tracking_enabled = ?", true).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list tracked funnels: %w", errs(err))
	}
	funnels := make([]model.Funnel, 0, len(recs))
	for _, rec := range recs {
		f, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		funnels = append(funnels, *f)
	}
	return funnels, nil
}

// SeedFunnel inserts a funnel definition. The engine proper never
// writes definitions; this exists for tests and the event seeder.
func (s *Store) SeedFunnel(ctx context.Context, f *model.Funnel) error {
	rec, err := funnelToRecord(f)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("seed funnel: %w", errs(err))
	}
	return nil
}

// QueryEvents batch-fetches a funnel's events inside the closed window.
func (s *Store) QueryEvents(ctx context.Context, funnelID string, window model.TimeWindow) ([]model.Event, error) {
	return s.queryEvents(ctx, funnelID, "", window)
}

// QuerySessionEvents narrows QueryEvents to one session.
func (s *Store) QuerySessionEvents(ctx context.Context, funnelID, sessionID string, window model.TimeWindow) ([]model.Event, error) {
	return s.queryEvents(ctx, funnelID, sessionID, window)
}

func (s *Store) queryEvents(ctx context.Context, funnelID, sessionID string, window model.TimeWindow) ([]model.Event, error) {
	q := s.db.WithContext(ctx).
		Where("funnel_id = ? AND timestamp >= ? AND timestamp <= ?", funnelID, window.Start, window.End)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	var recs []eventRecord
	if err := q.Order("timestamp asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", errs(err))
	}
	events := make([]model.Event, len(recs))
	for i, rec := range recs {
		events[i] = rec.toModel()
	}
	return events, nil
}

// AppendEvent stores a new event. Events are immutable once written.
func (s *Store) AppendEvent(ctx context.Context, e *model.Event) error {
	rec := eventRecord{
		ID:         e.ID,
		AccountID:  e.AccountID,
		FunnelID:   e.FunnelID,
		SessionID:  e.SessionID,
		Step:       e.Step,
		StepNumber: e.StepNumber,
		Timestamp:  e.Timestamp,
		Metadata:   datatypes.JSONMap(e.Metadata),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append event: %w", errs(err))
	}
	return nil
}

// onConflictByMetricKey upserts by the business key, not auto ID.
func onConflictByMetricKey() clause.Expression {
	return clause.OnConflict{
		Columns: []clause.Column{
			{Name: "funnel_id"}, {Name: "step_number"}, {Name: "period"},
		},
		UpdateAll: true,
	}
}

// UpsertMetrics writes rows keyed by (funnelID, stepNumber, period),
// overwriting any prior row per key. The database resolves concurrent
// writers; results are deterministic for identical event data.
func (s *Store) UpsertMetrics(ctx context.Context, rows []model.MetricsRow) error {
	if len(rows) == 0 {
		return nil
	}
	recs := make([]metricRecord, len(rows))
	for i, r := range rows {
		recs[i] = metricRecord{
			FunnelID:       r.FunnelID,
			StepNumber:     r.StepNumber,
			Period:         r.Period,
			Step:           r.Step,
			TotalCount:     r.TotalCount,
			ConversionRate: r.ConversionRate,
			DropOffRate:    r.DropOffRate,
			AvgTimeToNext:  r.AvgTimeToNext,
			WindowStart:    r.WindowStart,
			WindowEnd:      r.WindowEnd,
		}
	}
	if err := s.db.WithContext(ctx).Clauses(onConflictByMetricKey()).Create(&recs).Error; err != nil {
		return fmt.Errorf("upsert metrics: %w", errs(err))
	}
	return nil
}

// GetMetrics returns materialized rows for a funnel, optionally
// filtered to one period.
func (s *Store) GetMetrics(ctx context.Context, funnelID, period string) ([]model.MetricsRow, error) {
	q := s.db.WithContext(ctx).Where("funnel_id = ?", funnelID)
	if period != "" {
		q = q.Where("period = ?", period)
	}
	var recs []metricRecord
	if err := q.Order("period asc, step_number asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get metrics: %w", errs(err))
	}
	rows := make([]model.MetricsRow, len(recs))
	for i, rec := range recs {
		rows[i] = model.MetricsRow{
			FunnelID:       rec.FunnelID,
			Step:           rec.Step,
			StepNumber:     rec.StepNumber,
			Period:         rec.Period,
			TotalCount:     rec.TotalCount,
			ConversionRate: rec.ConversionRate,
			DropOffRate:    rec.DropOffRate,
			AvgTimeToNext:  rec.AvgTimeToNext,
			WindowStart:    rec.WindowStart,
			WindowEnd:      rec.WindowEnd,
		}
	}
	return rows, nil
}

func (r *funnelRecord) toModel() (*model.Funnel, error) {
	var steps []model.Step
	if len(r.Steps) > 0 {
		if err := json.Unmarshal(r.Steps, &steps); err != nil {
			return nil, fmt.Errorf("decode funnel steps: %w", errs(err))
		}
	}
	return &model.Funnel{
		ID:              r.ID,
		AccountID:       r.AccountID,
		Name:            r.Name,
		Description:     r.Description,
		Steps:           steps,
		TrackingEnabled: r.TrackingEnabled,
		Metadata:        model.Metadata(r.Metadata),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func funnelToRecord(f *model.Funnel) (*funnelRecord, error) {
	steps, err := json.Marshal(f.Steps)
	if err != nil {
		return nil, fmt.Errorf("encode funnel steps: %w", err)
	}
	return &funnelRecord{
		ID:              f.ID,
		AccountID:       f.AccountID,
		Name:            f.Name,
		Description:     f.Description,
		Steps:           steps,
		TrackingEnabled: f.TrackingEnabled,
		Metadata:        datatypes.JSONMap(f.Metadata),
	}, nil
}

func (r *eventRecord) toModel() model.Event {
	return model.Event{
		ID:         r.ID,
		AccountID:  r.AccountID,
		FunnelID:   r.FunnelID,
		SessionID:  r.SessionID,
		Step:       r.Step,
		StepNumber: r.StepNumber,
		Timestamp:  r.Timestamp,
		Metadata:   model.Metadata(r.Metadata),
	}
}

// errs tags driver errors with the storage sentinel so callers can
// classify transient failures without importing gorm.
func errs(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
