package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/logging"
	"github.com/mohammad-safakhou/wsorch/internal/plan"
)

var (
	// ErrCircularOrMissingDependency indicates a round started with no ready
	// nodes while incomplete nodes remained.
	ErrCircularOrMissingDependency = errors.New("circular or missing dependency")
	// ErrPlanAlreadyExecuted indicates the plan already carries node results.
	ErrPlanAlreadyExecuted = errors.New("plan already executed")
)

// StepError wraps the hard failure of a single step.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.StepID, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Dispatcher runs a single step against the shared execution context.
type Dispatcher interface {
	Dispatch(ctx context.Context, stepID string, ec *agent.Context) (agent.StepResult, error)
}

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	StepDuration func(ctx context.Context, stepID string, status agent.Status, d time.Duration)
	StepFailure  func(ctx context.Context, stepID string)
	Waves        func(ctx context.Context, waves int)
}

// Engine drives a plan to completion one wave at a time.
type Engine struct {
	checkpoints CheckpointManager
	metrics     Metrics
	stepTimeout time.Duration
	log         *logrus.Entry
	tracer      trace.Tracer
}

// Option configures engine behaviour.
type Option func(*Engine)

// WithCheckpointManager sets the checkpoint manager implementation.
func WithCheckpointManager(mgr CheckpointManager) Option {
	return func(e *Engine) {
		e.checkpoints = mgr
	}
}

// WithMetrics sets engine metrics callbacks.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStepTimeout bounds every step invocation. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.stepTimeout = d
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithTracer sets the tracer used for run, wave and step spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates a new Engine instance.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.checkpoints == nil {
		e.checkpoints = NewNoopCheckpointManager()
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("wsorch/executor")
	}
	return e
}

type outcome struct {
	node   *plan.Node
	result agent.StepResult
	took   time.Duration
}

// Execute runs every node of p, dispatching each ready wave concurrently and
// joining it before the next wave starts. A step error cancels its siblings
// and aborts the run; results of the failed wave are not merged.
func (e *Engine) Execute(ctx context.Context, runID string, p *plan.Plan, ec *agent.Context, d Dispatcher) (map[string]agent.StepResult, error) {
	for _, n := range p.Nodes() {
		if _, done := n.Result(); done {
			return nil, fmt.Errorf("%w: node %s has a result", ErrPlanAlreadyExecuted, n.ID)
		}
	}
	ctx, span := e.tracer.Start(ctx, "executor.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("nodes", p.Len()),
	))
	defer span.End()

	log := e.log.WithField("run_id", runID)
	ids := make([]string, 0, p.Len())
	for _, n := range p.Nodes() {
		ids = append(ids, n.ID)
	}
	if err := e.checkpoints.StartRun(ctx, runID, ids); err != nil {
		return nil, err
	}

	completed := make(map[string]struct{}, p.Len())
	results := make(map[string]agent.StepResult, p.Len())
	wave := 0
	for len(completed) < p.Len() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ready := p.ReadyNodes(completed)
		if len(ready) == 0 {
			err := fmt.Errorf("%w: %d of %d nodes unreachable", ErrCircularOrMissingDependency, p.Len()-len(completed), p.Len())
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.WithError(err).Warn("plan stalled")
			return nil, err
		}
		wave++
		log.WithFields(logrus.Fields{"wave": wave, "steps": len(ready)}).Debug("dispatching wave")

		outcomes, err := e.runWave(ctx, runID, wave, ready, ec, d)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		// the wave is merged only once every success is checkpointed
		for _, o := range outcomes {
			if err := e.checkpoints.SaveStepSuccess(ctx, runID, o.node.ID, wave, o.result); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("checkpoint step %s: %w", o.node.ID, err)
			}
		}
		for _, o := range outcomes {
			if err := o.node.SetResult(o.result); err != nil {
				return nil, err
			}
			results[o.node.ID] = o.result
			completed[o.node.ID] = struct{}{}
			ec.PutResult(o.node.ID, o.result)
			if e.metrics.StepDuration != nil {
				e.metrics.StepDuration(ctx, o.node.ID, o.result.Status, o.took)
			}
		}
	}
	if e.metrics.Waves != nil {
		e.metrics.Waves(ctx, wave)
	}
	log.WithFields(logrus.Fields{"waves": wave, "steps": len(results)}).Info("run completed")
	return results, nil
}

func (e *Engine) runWave(ctx context.Context, runID string, wave int, ready []*plan.Node, ec *agent.Context, d Dispatcher) ([]outcome, error) {
	ctx, span := e.tracer.Start(ctx, "executor.wave", trace.WithAttributes(attribute.Int("wave", wave)))
	defer span.End()

	outcomes := make([]outcome, len(ready))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range ready {
		i, n := i, n
		g.Go(func() error {
			res, took, err := e.runStep(gctx, ctx, runID, wave, n.ID, ec, d)
			if err != nil {
				return err
			}
			outcomes[i] = outcome{node: n, result: res, took: took}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// runStep executes one step under the wave context. parent is the context the
// wave was started with; a cancellation that reaches the step while parent is
// still live came from a failing sibling.
func (e *Engine) runStep(ctx, parent context.Context, runID string, wave int, stepID string, ec *agent.Context, d Dispatcher) (agent.StepResult, time.Duration, error) {
	waveCtx := ctx
	ctx, span := e.tracer.Start(ctx, "executor.step", trace.WithAttributes(attribute.String("step", stepID)))
	defer span.End()

	if err := e.checkpoints.SaveStepStart(ctx, runID, stepID, wave); err != nil {
		return agent.StepResult{}, 0, err
	}
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := d.Dispatch(ctx, stepID, ec)
	took := time.Since(start)
	if err == nil {
		// an owner that ignores its deadline still counts as timed out
		err = ctx.Err()
	}
	if err != nil && errors.Is(err, context.Canceled) && waveCtx.Err() != nil && parent.Err() == nil {
		span.SetStatus(codes.Error, "cancelled by failing sibling")
		e.log.WithFields(logrus.Fields{"run_id": runID, "wave": wave, "step": stepID}).Debug("step cancelled by failing sibling")
		return agent.StepResult{}, took, &StepError{StepID: stepID, Err: err}
	}
	if err != nil {
		stepErr := &StepError{StepID: stepID, Err: err}
		span.RecordError(stepErr)
		span.SetStatus(codes.Error, err.Error())
		e.log.WithFields(logrus.Fields{"run_id": runID, "wave": wave, "step": stepID}).WithError(err).Warn("step failed")
		if e.metrics.StepFailure != nil {
			e.metrics.StepFailure(ctx, stepID)
		}
		// checkpointing must outlive the cancelled wave context
		if cpErr := e.checkpoints.SaveStepFailure(context.WithoutCancel(ctx), runID, stepID, wave, err); cpErr != nil {
			e.log.WithError(cpErr).Warn("checkpoint failure not recorded")
		}
		return agent.StepResult{}, took, stepErr
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))
	return res, took, nil
}
