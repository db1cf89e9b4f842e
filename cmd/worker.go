package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/feedforward/internal/config"
	"github.com/feedforward/internal/database"
	"github.com/feedforward/internal/jobqueue"
	"github.com/feedforward/internal/metrics"
	"github.com/feedforward/internal/ops"
)

// WorkerCommand runs the River workers, the periodic sweep and the ops
// listener until interrupted.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Process route_theme jobs and run periodic graduation sweeps",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Ensure the schema before starting",
				Value: true,
			},
		},
		Action: runWorker,
	}
}

func queueConfig(cfg *config.Config) *jobqueue.QueueConfig {
	qc := jobqueue.DefaultQueueConfig()
	qc.MaxWorkers = cfg.Worker.MaxWorkers
	if cfg.Worker.MaxAttempts > 0 {
		qc.MaxAttempts = cfg.Worker.MaxAttempts
	}
	if cfg.Worker.RouteTimeout > 0 {
		qc.RouteTimeout = cfg.Worker.RouteTimeout
	}
	if cfg.Worker.SweepTimeout > 0 {
		qc.SweepTimeout = cfg.Worker.SweepTimeout
	}
	qc.SweepInterval = cfg.Graduation.SweepInterval
	return qc
}

func runWorker(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if c.Bool("migrate") {
		if err := database.EnsureSchema(ctx, rt.pool); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	jq, err := jobqueue.NewJobQueue(rt.pool, rt.matcher, rt.engine, queueConfig(cfg))
	if err != nil {
		return err
	}
	if err := jq.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	log.Info().
		Int("max_workers", cfg.Worker.MaxWorkers).
		Dur("sweep_interval", cfg.Graduation.SweepInterval).
		Msg("worker started")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		srv := ops.NewServer(cfg.Metrics.Addr, reg, rt.pool.Ping)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.Info().Msg("stopping worker")
		return jq.Stop(stopCtx)
	})
	return g.Wait()
}
