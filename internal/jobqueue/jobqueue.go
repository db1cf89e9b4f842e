/*
Package jobqueue runs theme routing and graduation sweeps as River jobs.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/feedforward/internal/graduation"
	"github.com/feedforward/internal/matcher"
	"github.com/feedforward/pkg/models"
)

// Router is the routing entry point a worker drives.
type Router interface {
	Route(ctx context.Context, theme models.Theme) (*matcher.RouteResult, error)
}

// Sweeper re-evaluates all active orphans.
type Sweeper interface {
	Sweep(ctx context.Context) (*graduation.SweepReport, error)
}

// RouteThemeArgs carries one classified theme.
type RouteThemeArgs struct {
	Theme models.Theme `json:"theme"`
}

func (RouteThemeArgs) Kind() string { return "route_theme" }

type RouteThemeWorker struct {
	river.WorkerDefaults[RouteThemeArgs]
	router  Router
	timeout time.Duration
}

func (w *RouteThemeWorker) Timeout(*river.Job[RouteThemeArgs]) time.Duration { return w.timeout }

func (w *RouteThemeWorker) Work(ctx context.Context, job *river.Job[RouteThemeArgs]) error {
	res, err := w.router.Route(ctx, job.Args.Theme)
	if errors.Is(err, matcher.ErrInvalidTheme) {
		log.Error().Err(err).Int64("job_id", job.ID).Msg("dropping invalid theme")
		return river.JobCancel(err)
	}
	if err != nil {
		log.Warn().Err(err).
			Int64("job_id", job.ID).
			Int("attempt", job.Attempt).
			Str("conversation_id", job.Args.Theme.ConversationID).
			Msg("route_theme failed")
		return err
	}
	log.Debug().
		Int64("job_id", job.ID).
		Str("conversation_id", res.ConversationID).
		Str("result", string(res.Result)).
		Msg("route_theme done")
	return nil
}

// GraduationSweepArgs triggers one sweep.
type GraduationSweepArgs struct{}

func (GraduationSweepArgs) Kind() string { return "graduation_sweep" }

type GraduationSweepWorker struct {
	river.WorkerDefaults[GraduationSweepArgs]
	sweeper Sweeper
	timeout time.Duration
}

func (w *GraduationSweepWorker) Timeout(*river.Job[GraduationSweepArgs]) time.Duration {
	return w.timeout
}

// Work returns an error only when the sweep could not run at all; per-orphan
// failures are part of the report.
func (w *GraduationSweepWorker) Work(ctx context.Context, job *river.Job[GraduationSweepArgs]) error {
	report, err := w.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("graduation sweep: %w", err)
	}
	for _, f := range report.Failures {
		log.Warn().Str("orphan_id", f.OrphanID).Str("signature", f.Signature).Str("error", f.Error).
			Msg("orphan failed during sweep")
	}
	return nil
}

// JobQueue manages the River client.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue builds a River client over pool with the routing worker, the
// sweep worker, and the periodic sweep registered.
func NewJobQueue(pool *pgxpool.Pool, router Router, sweeper Sweeper, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &RouteThemeWorker{router: router, timeout: config.RouteTimeout})
	river.AddWorker(workers, &GraduationSweepWorker{sweeper: sweeper, timeout: config.SweepTimeout})

	var periodic []*river.PeriodicJob
	if config.SweepInterval > 0 {
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(config.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return GraduationSweepArgs{}, config.sweepInsertOpts()
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool, config: config}, nil
}

// NewInsertOnlyQueue builds a client that can enqueue but never works jobs.
func NewInsertOnlyQueue(pool *pgxpool.Pool, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	return &JobQueue{client: client, pool: pool, config: config}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers.
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// QueueTheme enqueues one theme for routing.
func (jq *JobQueue) QueueTheme(ctx context.Context, theme models.Theme) error {
	if _, err := jq.client.Insert(ctx, RouteThemeArgs{Theme: theme}, jq.config.routeInsertOpts()); err != nil {
		return fmt.Errorf("failed to queue route_theme job: %w", err)
	}
	return nil
}

// QueueThemes enqueues a batch of themes in one round trip.
func (jq *JobQueue) QueueThemes(ctx context.Context, themes []models.Theme) error {
	if len(themes) == 0 {
		return nil
	}
	params := make([]river.InsertManyParams, 0, len(themes))
	for _, th := range themes {
		params = append(params, river.InsertManyParams{Args: RouteThemeArgs{Theme: th}, InsertOpts: jq.config.routeInsertOpts()})
	}
	if _, err := jq.client.InsertMany(ctx, params); err != nil {
		return fmt.Errorf("failed to queue %d route_theme jobs: %w", len(themes), err)
	}
	return nil
}

// QueueSweep enqueues an out-of-schedule sweep.
func (jq *JobQueue) QueueSweep(ctx context.Context) error {
	if _, err := jq.client.Insert(ctx, GraduationSweepArgs{}, &river.InsertOpts{Queue: QueueGraduation, MaxAttempts: 1}); err != nil {
		return fmt.Errorf("failed to queue graduation_sweep job: %w", err)
	}
	return nil
}
