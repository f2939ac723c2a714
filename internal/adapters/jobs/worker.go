package jobs

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/steplens/steplens/internal/adapters/repository"
	"github.com/steplens/steplens/internal/domain/materialize"
	"github.com/steplens/steplens/internal/domain/model"
	"github.com/steplens/steplens/internal/domain/session"
	"github.com/steplens/steplens/pkg/logger"
	"github.com/steplens/steplens/pkg/metrics"
)

// Definitions narrows the definition store to what workers need.
type Definitions interface {
	GetFunnel(ctx context.Context, funnelID, accountID string) (*model.Funnel, error)
}

// Pool runs a fixed set of workers draining the materialization queue.
// Each job is a pure recomputation followed by an idempotent upsert, so
// a job that races another run of the same (funnel, period) resolves in
// the database, not here.
type Pool struct {
	queue       Queue
	definitions Definitions
	events      repository.EventStore
	sink        repository.MetricsStore

	workerCount int
	logger      logger.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool wires a worker pool over the queue and stores.
func NewPool(queue Queue, definitions Definitions, events repository.EventStore, sink repository.MetricsStore, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:       queue,
		definitions: definitions,
		events:      events,
		sink:        sink,
		workerCount: runtime.NumCPU(),
		logger:      logger.Get().Named("materialize"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Workers exit when the queue closes or
// ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	jobs := p.queue.Dequeue(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range jobs {
				p.run(ctx, j)
			}
		}()
	}
	metrics.UpdateWorkerCount(p.workerCount)
}

// Wait blocks until all workers have drained the queue and exited.
// Callers close the queue first.
func (p *Pool) Wait() {
	p.wg.Wait()
	metrics.UpdateWorkerCount(0)
}

// run executes one materialization job end to end.
func (p *Pool) run(ctx context.Context, j Job) {
	start := time.Now()
	rows, err := p.materialize(ctx, j)
	metrics.RecordMaterializeRun(rows, float64(time.Since(start).Milliseconds()), err)
	if err != nil {
		p.logger.Error(ctx, "materialization failed",
			logger.String("funnel_id", j.FunnelID),
			logger.String("period", model.PeriodKey(j.Window.Start)),
			logger.Error(err))
		return
	}
	p.logger.Debug(ctx, "materialized funnel metrics",
		logger.String("funnel_id", j.FunnelID),
		logger.String("period", model.PeriodKey(j.Window.Start)),
		logger.Int("rows", rows))
}

func (p *Pool) materialize(ctx context.Context, j Job) (int, error) {
	funnel, err := p.definitions.GetFunnel(ctx, j.FunnelID, j.AccountID)
	if err != nil {
		return 0, err
	}
	events, err := p.events.QueryEvents(ctx, j.FunnelID, j.Window)
	if err != nil {
		return 0, err
	}
	rows := materialize.Compute(funnel, session.Reconstruct(events), j.Window)
	if err := p.sink.UpsertMetrics(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
