package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vogtb/sheetd/packages/cell"
	"github.com/vogtb/sheetd/packages/formula"
	"github.com/vogtb/sheetd/packages/metrics"
)

// enqueue hands an event to the worker, blocking while the queue is full
func (e *Engine) enqueue(ctx context.Context, ev event) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	metrics.QueueDepth.Inc()
	select {
	case e.queue <- ev:
		return nil
	case <-e.closed:
		metrics.QueueDepth.Dec()
		return ErrClosed
	case <-ctx.Done():
		metrics.QueueDepth.Dec()
		return ctx.Err()
	}
}

// Run is the recompute worker. it processes events one at a time in the
// order they were queued until ctx is cancelled or the engine is closed.
// only one Run may be active.
func (e *Engine) Run(ctx context.Context) error {
	defer e.runOnce.Do(func() { close(e.stopped) })
	e.logger.Debug("recompute worker started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("recompute worker stopped", "reason", ctx.Err())
			return nil
		case <-e.closed:
			e.logger.Debug("recompute worker stopped", "reason", ErrClosed)
			return nil
		case ev := <-e.queue:
			metrics.QueueDepth.Dec()
			if ev.done != nil {
				close(ev.done)
				continue
			}
			e.propagate(ctx, ev.origin)
		}
	}
}

// Flush waits until every event queued before the call has been processed
func (e *Engine) Flush(ctx context.Context) error {
	barrier := event{done: make(chan struct{})}
	if err := e.enqueue(ctx, barrier); err != nil {
		return err
	}

	select {
	case <-barrier.done:
		return nil
	case <-e.stopped:
		return ErrClosed
	case <-e.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker and rejects further sets. it does not wait for
// queued events.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

// propagate recomputes origin and everything that transitively reads it.
// origin is evaluated again first: its set may have read a precedent that
// changed before origin's edges were recorded, and that change's event could
// not reach it. cells on a cycle are stamped with a circular reference error
// before the rest so that cells downstream of the cycle read the error.
func (e *Engine) propagate(ctx context.Context, origin string) {
	_, span := tracer.Start(ctx, "engine.propagate", trace.WithAttributes(
		attribute.String("cell", origin),
	))
	defer span.End()
	start := time.Now()

	e.recompute(origin)
	plan := e.graph.Plan(origin)
	if plan.Empty() {
		return
	}

	if len(plan.Cyclic) > 0 {
		circular := formula.NewSpreadsheetError(formula.ErrorCodeCircular, "").Value()
		for _, name := range plan.Cyclic {
			e.store.Update(name, circular, plan.Generations[name])
		}
		metrics.CyclesTotal.Add(float64(len(plan.Cyclic)))
		e.logger.Warn("circular reference", "cell", origin, "cycle", plan.Cyclic)
	}

	for _, name := range plan.Order {
		e.recompute(name)
	}

	cells := len(plan.Order) + len(plan.Cyclic)
	span.SetAttributes(
		attribute.Int("cells", cells),
		attribute.Int("cyclic", len(plan.Cyclic)),
	)
	metrics.PropagationCells.Observe(float64(cells))
	metrics.PropagationDuration.Observe(time.Since(start).Seconds())
	e.logger.Debug("propagated change", "cell", origin, "recomputed", len(plan.Order), "cyclic", len(plan.Cyclic))
}

// recompute evaluates the recorded definition of name against the current
// store. the result is dropped if name was redefined in the meantime; the
// set that redefined it stored a value of its own.
func (e *Engine) recompute(name string) {
	rec, ok := e.graph.RecordOf(name)
	if !ok {
		return
	}
	addr, err := cell.ParseName(name)
	if err != nil {
		return
	}
	value, _ := e.evaluate(name, addr, rec.Expression, rec.Variables)
	if !e.store.Update(name, value, rec.Generation) {
		e.logger.Debug("dropped stale recompute", "cell", name, "generation", rec.Generation)
	}
}
