// Package engine handles protocol commands against the shared cell store and
// dependency graph, and runs the worker that recomputes dependents after a
// change.
//
// A set is handled synchronously up to the point where the new value and
// definition of the target are committed; recomputing the cells that read
// the target happens later on the worker goroutine. A get never waits for
// that to finish.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vogtb/sheetd/packages/cell"
	"github.com/vogtb/sheetd/packages/formula"
	"github.com/vogtb/sheetd/packages/graph"
	"github.com/vogtb/sheetd/packages/logging"
	"github.com/vogtb/sheetd/packages/metrics"
	"github.com/vogtb/sheetd/packages/ranges"
	"github.com/vogtb/sheetd/packages/store"
	"github.com/vogtb/sheetd/packages/transport"
)

// DefaultQueueSize is the number of change events that may wait for the
// worker before set starts blocking
const DefaultQueueSize = 1024

var tracer = otel.Tracer("github.com/vogtb/sheetd/packages/engine")

// Evaluator finds the references of an expression and evaluates it
type Evaluator interface {
	FindVariables(expr string) []string
	Run(expr string, bindings map[string]formula.Argument) cell.Value
}

type Options struct {
	QueueSize int
	Evaluator Evaluator
	Logger    *logging.Logger
}

// event asks the worker to recompute the dependents of origin. an event
// with a done channel is a barrier and only signals that everything queued
// before it has been processed.
type event struct {
	origin string
	done   chan struct{}
}

// Engine is shared by every connection and by the recompute worker
type Engine struct {
	store  *store.Store
	graph  *graph.Graph
	eval   Evaluator
	logger *logging.Logger

	// generation numbers every definition so that the store and graph
	// agree on which one is current
	generation atomic.Uint64

	queue     chan event
	closed    chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
	runOnce   sync.Once
}

func New(st *store.Store, g *graph.Graph, opts Options) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Evaluator == nil {
		opts.Evaluator = formula.NewEvaluator()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Engine{
		store:   st,
		graph:   g,
		eval:    opts.Evaluator,
		logger:  opts.Logger.With("component", "engine"),
		queue:   make(chan event, opts.QueueSize),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Get returns the committed value of a cell
func (e *Engine) Get(name string) (string, cell.Value, error) {
	addr, err := cell.ParseName(name)
	if err != nil {
		return "", cell.Value{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	name = addr.Name()
	return name, e.store.Get(name), nil
}

// Snapshot returns every committed cell value
func (e *Engine) Snapshot() map[string]cell.Value {
	return e.store.Snapshot()
}

// Handle processes one protocol message. the reply is only valid when the
// second result is true; a successful set produces no reply.
func (e *Engine) Handle(ctx context.Context, msg string) (transport.Reply, bool) {
	fields := strings.Fields(msg)
	command := "unknown"
	if len(fields) > 0 {
		command = fields[0]
	}

	switch {
	case command == "get" && len(fields) == 2:
		name, value, err := e.Get(fields[1])
		if err != nil {
			metrics.CommandsTotal.WithLabelValues("get", "invalid").Inc()
			return transport.ErrorReply(ErrProtocol.Error()), true
		}
		metrics.CommandsTotal.WithLabelValues("get", "ok").Inc()
		return transport.ValueReply(name, value), true

	case command == "set" && len(fields) >= 3:
		err := e.Set(ctx, fields[1], strings.Join(fields[2:], " "))
		metrics.CommandsTotal.WithLabelValues("set", resultLabel(err)).Inc()
		if errors.Is(err, ErrProtocol) {
			return transport.ErrorReply(ErrProtocol.Error()), true
		}
		if err != nil {
			e.logger.Debug("set stored an error", "cell", fields[1], "error", err)
		}
		return transport.Reply{}, false

	default:
		metrics.CommandsTotal.WithLabelValues("unknown", "invalid").Inc()
		return transport.ErrorReply(ErrProtocol.Error()), true
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProtocol):
		return "invalid"
	case errors.Is(err, ErrSelfReference):
		return "self_reference"
	case errors.Is(err, cell.ErrAddressFormat), errors.Is(err, ranges.ErrRangeTooLarge):
		return "address_format"
	case errors.Is(err, ErrEvaluation):
		return "evaluation_error"
	default:
		return "error"
	}
}

// Set defines target by expr, stores its new value and queues the
// recomputation of its dependents. failures that concern the expression
// are stored in the cell as error values and also returned; only an
// invalid target name, a closed engine or a cancelled context leave the
// cell untouched.
func (e *Engine) Set(ctx context.Context, target, expr string) error {
	addr, err := cell.ParseName(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	target = addr.Name()

	ctx, span := tracer.Start(ctx, "engine.set", trace.WithAttributes(
		attribute.String("cell", target),
		attribute.String("expression", expr),
	))
	defer span.End()

	start := time.Now()
	generation := e.generation.Add(1)
	variables := e.eval.FindVariables(expr)

	value, evalErr := e.evaluate(target, addr, expr, variables)
	e.store.Commit(target, value, generation)
	e.graph.RecordDependency(target, graph.Record{
		Expression: expr,
		Variables:  variables,
		Generation: generation,
	})
	metrics.SetDuration.Observe(time.Since(start).Seconds())

	if evalErr != nil {
		span.RecordError(evalErr)
		span.SetStatus(codes.Error, evalErr.Error())
	}

	if err := e.enqueue(ctx, event{origin: target}); err != nil {
		span.RecordError(err)
		return err
	}
	return evalErr
}

// evaluate computes the value of target from the current store. the error
// classifies an error value; the value is always the one to store.
func (e *Engine) evaluate(target string, addr cell.Address, expr string, variables []string) (cell.Value, error) {
	if err := checkSelfReference(target, addr, variables); err != nil {
		return formula.NewSpreadsheetError(formula.ErrorCodeCircular, err.Error()).Value(), err
	}

	bindings, err := e.bind(variables)
	if err != nil {
		return formula.NewSpreadsheetError(formula.ErrorCodeRef, err.Error()).Value(), err
	}

	value := e.eval.Run(expr, bindings)
	if value.IsError() {
		return value, fmt.Errorf("%w: %s", ErrEvaluation, value.Text)
	}
	return value, nil
}

// checkSelfReference fails if any variable names target or is a range
// covering it
func checkSelfReference(target string, addr cell.Address, variables []string) error {
	for _, v := range variables {
		if v == target {
			return fmt.Errorf("%w: %s reads itself", ErrSelfReference, target)
		}
		if !ranges.IsRange(v) {
			continue
		}
		r, err := ranges.Parse(v)
		if err != nil {
			continue
		}
		if r.Contains(addr) {
			return fmt.Errorf("%w: %s is inside %s", ErrSelfReference, target, v)
		}
	}
	return nil
}

// bind reads the current value of every variable. ranges resolve to a
// sequence or matrix; plain cells to a scalar.
func (e *Engine) bind(variables []string) (map[string]formula.Argument, error) {
	bindings := make(map[string]formula.Argument, len(variables))
	for _, v := range variables {
		if ranges.IsRange(v) {
			arg, err := ranges.Resolve(v, e.store.Get)
			if err != nil {
				return nil, err
			}
			bindings[v] = arg
			continue
		}
		bindings[v] = formula.Scalar(e.store.Get(v))
	}
	return bindings, nil
}
