package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wsorch/config"
	"github.com/mohammad-safakhou/wsorch/internal/jobs"
	"github.com/mohammad-safakhou/wsorch/internal/queue/streams"
	"github.com/mohammad-safakhou/wsorch/internal/retention"
	srv "github.com/mohammad-safakhou/wsorch/internal/server"
	"github.com/mohammad-safakhou/wsorch/internal/store"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	var migrate bool
	var migDir string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if migrate && cfg.Storage.Backend == config.BackendPostgres {
				if err := store.Migrate(migDir, cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before serving")
	serve.Flags().StringVar(&migDir, "migrations", "file://migrations", "migrations source")
	return serve
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	qopts := []srv.QueryOption{
		srv.WithQueryLogger(a.log("jobs")),
		srv.WithJobHook(func(s jobs.Status) { a.metrics.JobFinished(string(s)) }),
	}
	if cfg.Queue.Enabled {
		qopts = append(qopts, srv.WithQueue(streams.NewPublisher(a.rdb, cfg.Queue.Stream)))
	}
	opts := []srv.Option{
		srv.WithLogger(a.log("http")),
		srv.WithDebug(&srv.DebugHandler{Records: a.records, Embedder: a.embedder, UserID: cfg.General.DefaultUserID}),
	}
	if cfg.Telemetry.MetricsEnabled {
		opts = append(opts, srv.WithMetrics(a.metrics.Handler()))
	}
	server := srv.New(srv.NewQueryHandler(a.orch, a.jobs, cfg.General.DefaultUserID, qopts...), opts...)

	if cfg.Retention.Enabled && a.pg != nil {
		ropts := []retention.Option{retention.WithLogger(a.log("retention"))}
		if a.rdb != nil {
			ropts = append(ropts, retention.WithLock(a.rdb, 2*time.Minute))
		}
		sweeper, err := retention.New(a.pg, cfg.Retention.Schedule, cfg.Retention.MaxAge, ropts...)
		if err != nil {
			return err
		}
		go sweeper.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Server.Address) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
