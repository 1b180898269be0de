// Package worker runs one diagnostics pipeline per equipment unit. Samples
// from a single ingest source are routed by equipment ID to a per-unit queue,
// so each unit sees its samples serially and in arrival order while units
// run concurrently.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"aircx/internal/ingest"
	"aircx/internal/types"
)

// DefaultQueueSize is the per-equipment buffer between the source and the
// unit's pipeline. A full queue blocks the source.
const DefaultQueueSize = 64

// Processor is one equipment unit's pipeline (*diagnostics.Application).
type Processor interface {
	ID() string
	Process(ctx context.Context, set types.SampleSet) error
}

// Metrics receives per-sample telemetry (*metrics.CloudWatchRecorder).
type Metrics interface {
	RecordIngestLag(ctx context.Context, equipmentID string, lag time.Duration)
	RecordSinkFailure(ctx context.Context, equipmentID string)
}

// Stats counts samples seen by a Runner.
type Stats struct {
	Received  int64 `json:"received"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Unknown   int64 `json:"unknown"`
}

// Runner dispatches samples to processors.
type Runner struct {
	processors map[string]Processor
	order      []string
	logger     *slog.Logger
	metrics    Metrics
	queueSize  int
	runID      string
	now        func() time.Time

	received  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	unknown   atomic.Int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics sets the telemetry receiver.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner creates a Runner over processors. Equipment IDs must be unique.
func NewRunner(processors []Processor, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		processors: make(map[string]Processor, len(processors)),
		logger:     logger,
		queueSize:  DefaultQueueSize,
		runID:      uuid.NewString(),
		now:        time.Now,
	}
	for _, p := range processors {
		id := p.ID()
		if _, dup := r.processors[id]; dup {
			return nil, types.NewAppError(types.ErrCodeConfigInvalidSource,
				fmt.Sprintf("duplicate equipment id %q", id), nil)
		}
		r.processors[id] = p
		r.order = append(r.order, id)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID identifies this engine run in logs and commands.
func (r *Runner) RunID() string { return r.runID }

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Processed: r.processed.Load(),
		Failed:    r.failed.Load(),
		Unknown:   r.unknown.Load(),
	}
}

// Run consumes src until it is exhausted or ctx is done. Samples already
// queued when the source stops are still processed. Cancellation is not an
// error.
func (r *Runner) Run(ctx context.Context, src ingest.Source) error {
	ctx = types.WithRunID(ctx, r.runID)
	queues := make(map[string]chan types.SampleSet, len(r.processors))
	for _, id := range r.order {
		queues[id] = make(chan types.SampleSet, r.queueSize)
	}

	r.logger.InfoContext(ctx, "engine run started", "run_id", r.runID, "equipment", len(r.order))

	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range r.order {
		p, q := r.processors[id], queues[id]
		g.Go(func() error {
			// Drain with a context that survives shutdown so a unit never
			// stops halfway through its queue.
			pctx := context.WithoutCancel(gCtx)
			for set := range q {
				r.process(pctx, p, set)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		return src.Run(gCtx, func(ctx context.Context, set types.SampleSet) error {
			return r.dispatch(ctx, queues, set)
		})
	})

	err := g.Wait()
	stats := r.Stats()
	r.logger.InfoContext(ctx, "engine run finished",
		"run_id", r.runID,
		"received", stats.Received,
		"processed", stats.Processed,
		"failed", stats.Failed,
		"unknown", stats.Unknown,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("engine run %s: %w", r.runID, err)
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, queues map[string]chan types.SampleSet, set types.SampleSet) error {
	r.received.Add(1)
	q, ok := queues[set.EquipmentID]
	if !ok {
		r.unknown.Add(1)
		r.logger.WarnContext(ctx, "sample for unknown equipment dropped", "equipment_id", set.EquipmentID)
		return nil
	}
	select {
	case q <- set:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) process(ctx context.Context, p Processor, set types.SampleSet) {
	id := p.ID()
	if r.metrics != nil && !set.Timestamp.IsZero() {
		r.metrics.RecordIngestLag(ctx, id, r.now().Sub(set.Timestamp))
	}
	if err := p.Process(ctx, set); err != nil {
		r.failed.Add(1)
		if r.metrics != nil {
			r.metrics.RecordSinkFailure(ctx, id)
		}
		r.logger.ErrorContext(ctx, "sample processing failed",
			"equipment_id", id,
			"timestamp", set.Timestamp,
			"error", err,
		)
		return
	}
	r.processed.Add(1)
}
