// Package worker executes queued queries from a Redis stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mohammad-safakhou/wsorch/internal/jobs"
	"github.com/mohammad-safakhou/wsorch/internal/logging"
	"github.com/mohammad-safakhou/wsorch/internal/orchestrator"
	"github.com/mohammad-safakhou/wsorch/internal/queue/streams"
)

// Source is the consumer side of the query stream.
type Source interface {
	Read(ctx context.Context, block time.Duration, count int64) ([]streams.Message, error)
	Ack(ctx context.Context, ids ...string) error
	Claim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error)
	Lag(ctx context.Context) (streams.LagMetrics, error)
}

// Handler answers a single query.
type Handler interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

// Processor consumes query.submitted envelopes, runs them and records the
// outcome on the job repository.
type Processor struct {
	log     *logrus.Entry
	source  Source
	jobs    jobs.Repository
	handler Handler
	block   time.Duration
	batch   int64
	minIdle time.Duration
	tracer  trace.Tracer

	onFinish func(status jobs.Status)
	onLag    func(lag streams.LagMetrics)
}

type Option func(*Processor)

// WithBatch sets the blocking read duration and the maximum batch size.
func WithBatch(block time.Duration, count int64) Option {
	return func(p *Processor) {
		p.block = block
		p.batch = count
	}
}

// WithReclaim reclaims entries left pending by dead consumers for longer
// than minIdle when the processor starts.
func WithReclaim(minIdle time.Duration) Option {
	return func(p *Processor) { p.minIdle = minIdle }
}

// WithFinishHook is called with the terminal status of every job.
func WithFinishHook(fn func(status jobs.Status)) Option {
	return func(p *Processor) { p.onFinish = fn }
}

// WithLagHook is called with the group lag after every non-empty batch.
func WithLagHook(fn func(lag streams.LagMetrics)) Option {
	return func(p *Processor) { p.onLag = fn }
}

func WithLogger(l *logrus.Entry) Option {
	return func(p *Processor) { p.log = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// NewProcessor constructs a Processor.
func NewProcessor(src Source, repo jobs.Repository, h Handler, opts ...Option) *Processor {
	p := &Processor{
		source:  src,
		jobs:    repo,
		handler: h,
		block:   5 * time.Second,
		batch:   16,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logging.Discard()
	}
	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer("wsorch/worker")
	}
	return p
}

// Start blocks, processing messages until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.log.WithField("batch", p.batch).Info("worker processor starting")
	if p.minIdle > 0 {
		if err := p.reclaim(ctx); err != nil {
			p.log.WithError(err).Warn("reclaim pending entries failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			p.log.WithError(ctx.Err()).Info("worker processor stopping")
			return nil
		default:
		}

		msgs, err := p.source.Read(ctx, p.block, p.batch)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.WithError(err).Error("read stream")
			sleep(ctx, time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		p.process(ctx, msgs)
		p.reportLag(ctx)
	}
}

func (p *Processor) process(ctx context.Context, msgs []streams.Message) {
	for _, msg := range msgs {
		if err := p.HandleMessage(ctx, msg); err != nil {
			p.log.WithError(err).WithField("message_id", msg.ID).Error("handle message")
		}
		if err := p.source.Ack(ctx, msg.ID); err != nil {
			p.log.WithError(err).WithField("message_id", msg.ID).Warn("ack message")
		}
	}
}

// HandleMessage runs the query carried by msg and records its outcome. A
// failing query is not an error here: it is stored on the job.
func (p *Processor) HandleMessage(ctx context.Context, msg streams.Message) error {
	ctx, span := p.tracer.Start(ctx, "worker.handle_query")
	defer span.End()

	q := msg.Query
	if q.TaskID == "" {
		return fmt.Errorf("message %s carries no task", msg.ID)
	}
	span.SetAttributes(attribute.String("task_id", q.TaskID))
	log := p.log.WithFields(logrus.Fields{"task_id": q.TaskID, "event_id": msg.Envelope.EventID})

	if err := p.jobs.MarkRunning(ctx, q.TaskID); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			log.Warn("job expired before it ran")
			return nil
		}
		return fmt.Errorf("mark running: %w", err)
	}

	resp, runErr := p.handler.Handle(ctx, orchestrator.Request{UserID: q.UserID, Query: q.Query})
	if runErr != nil {
		log.WithError(runErr).Warn("query failed")
		if err := p.jobs.Fail(context.WithoutCancel(ctx), q.TaskID, runErr.Error()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		p.finished(jobs.StatusFailed)
		return nil
	}
	if err := p.jobs.Complete(context.WithoutCancel(ctx), q.TaskID, resp); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	log.WithField("run_id", resp.RunID).Info("query completed")
	p.finished(jobs.StatusCompleted)
	return nil
}

func (p *Processor) reclaim(ctx context.Context) error {
	start := "0-0"
	for {
		msgs, next, err := p.source.Claim(ctx, p.minIdle, start, p.batch)
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			p.log.WithField("count", len(msgs)).Info("reclaimed pending entries")
			p.process(ctx, msgs)
		}
		if next == "" || next == "0-0" {
			return nil
		}
		start = next
	}
}

func (p *Processor) reportLag(ctx context.Context) {
	if p.onLag == nil {
		return
	}
	lag, err := p.source.Lag(ctx)
	if err != nil {
		p.log.WithError(err).Debug("read group lag")
		return
	}
	p.onLag(lag)
}

func (p *Processor) finished(s jobs.Status) {
	if p.onFinish != nil {
		p.onFinish(s)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
