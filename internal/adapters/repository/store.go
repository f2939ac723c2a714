// Package repository provides relational access to funnel definitions,
// funnel events, and materialized metrics.
package repository

import (
	"context"

	"github.com/steplens/steplens/internal/domain/model"
)

// DefinitionStore reads funnel definitions. Definitions are created and
// updated by the CRUD layer upstream; the engine only consumes them.
type DefinitionStore interface {
	// GetFunnel fetches a funnel scoped to its owning account.
	// Returns ErrFunnelNotFound when no such funnel exists for the account.
	GetFunnel(ctx context.Context, funnelID, accountID string) (*model.Funnel, error)

	// ListTracked returns every funnel with tracking enabled, across
	// accounts. Used by batch materialization.
	ListTracked(ctx context.Context) ([]model.Funnel, error)
}

// EventStore reads and appends funnel events. Events are immutable;
// there is no update or delete.
type EventStore interface {
	// QueryEvents batch-fetches all events for a funnel inside the
	// closed window, ordered by timestamp ascending. One query per
	// window, never one per session.
	QueryEvents(ctx context.Context, funnelID string, window model.TimeWindow) ([]model.Event, error)

	// QuerySessionEvents narrows QueryEvents to a single session.
	QuerySessionEvents(ctx context.Context, funnelID, sessionID string, window model.TimeWindow) ([]model.Event, error)

	// AppendEvent stores a new event.
	AppendEvent(ctx context.Context, e *model.Event) error
}

// MetricsStore persists materialized per-step aggregates.
type MetricsStore interface {
	// UpsertMetrics writes rows keyed by (funnelID, stepNumber, period).
	// An existing row for a key is overwritten in full; recomputing a
	// period must never duplicate it. Conflict resolution is the
	// database's, not an in-process lock.
	UpsertMetrics(ctx context.Context, rows []model.MetricsRow) error

	// GetMetrics returns rows for a funnel, optionally filtered to one
	// period, ordered by (period, step number).
	GetMetrics(ctx context.Context, funnelID, period string) ([]model.MetricsRow, error)
}
