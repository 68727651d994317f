package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/mohammad-safakhou/wsorch/config"
	"github.com/mohammad-safakhou/wsorch/internal/jobs"
	"github.com/mohammad-safakhou/wsorch/internal/queue/streams"
	"github.com/mohammad-safakhou/wsorch/internal/worker"
)

func workerCMD(cfgPath *string) *cobra.Command {
	var name string
	var reclaim bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued queries from the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if !cfg.Queue.Enabled {
				return fmt.Errorf("queue.enabled must be true to run a worker")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			q := cfg.Queue
			if name == "" {
				name = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			}
			log := a.log("worker").WithField("consumer", name)
			consumer := streams.NewConsumer(a.rdb, q.Stream, q.Group, name, streams.WithDropHook(func(id string, err error) {
				log.WithError(err).WithField("message_id", id).Warn("dropped undecodable entry")
			}))
			if err := consumer.EnsureGroup(ctx); err != nil {
				return fmt.Errorf("ensure group: %w", err)
			}
			opts := []worker.Option{
				worker.WithBatch(q.Block, q.Batch),
				worker.WithLogger(log),
				worker.WithTracer(otel.Tracer("wsorch/worker")),
				worker.WithFinishHook(func(s jobs.Status) { a.metrics.JobFinished(string(s)) }),
				worker.WithLagHook(func(l streams.LagMetrics) { a.metrics.SetQueueLag(q.Stream, q.Group, l) }),
			}
			if reclaim {
				opts = append(opts, worker.WithReclaim(cfg.General.RunTimeout))
			}
			p := worker.NewProcessor(consumer, a.jobs, a.orch, opts...)
			return p.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "consumer name (default worker-<random>)")
	cmd.Flags().BoolVar(&reclaim, "reclaim", true, "reclaim entries abandoned by dead consumers on start")
	return cmd
}
