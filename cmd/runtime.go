package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/feedforward/internal/aiconnectors"
	"github.com/feedforward/internal/config"
	"github.com/feedforward/internal/conversations"
	"github.com/feedforward/internal/database"
	"github.com/feedforward/internal/graduation"
	"github.com/feedforward/internal/logging"
	"github.com/feedforward/internal/matcher"
	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/internal/pmreview"
	"github.com/feedforward/internal/retry"
	"github.com/feedforward/internal/stories"
)

// runtime is the wired engine shared by every command that touches storage.
type runtime struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	db      *sql.DB
	engine  *graduation.Engine
	matcher *matcher.Matcher
}

// loadConfig reads, validates and applies logging settings.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	dbURL, err := database.ResolveURL(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}
	pool, err := database.NewPool(ctx, dbURL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(ctx, dbURL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	reviewer, err := buildReviewer(ctx, cfg)
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}

	store := orphans.NewPostgresStore(pool)
	svc := stories.NewRetryingService(stories.NewPostgresService(pool), retry.DefaultConfig())
	engine := graduation.NewEngine(
		store,
		svc,
		conversations.NewPostgresSource(db),
		pmreview.NewGate(reviewer, cfg.Review.Timeout),
		graduation.Config{
			MinGroupSize:  cfg.Graduation.MinGroupSize,
			RecencyWindow: cfg.Graduation.RecencyWindow,
			TitleMaxLen:   cfg.Graduation.TitleMaxLen,
		},
	)

	return &runtime{
		cfg:     cfg,
		pool:    pool,
		db:      db,
		engine:  engine,
		matcher: matcher.New(store, engine),
	}, nil
}

// buildReviewer returns nil when review is disabled so the gate falls back
// to keep_together.
func buildReviewer(ctx context.Context, cfg *config.Config) (pmreview.Reviewer, error) {
	if !cfg.Review.Enabled {
		log.Info().Msg("PM review disabled, groups graduate as keep_together")
		return nil, nil
	}
	conn, err := aiconnectors.NewConnector(ctx, cfg.ReviewOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create review model: %w", err)
	}
	log.Info().
		Str("provider", string(conn.Provider())).
		Str("model", conn.Model()).
		Int("requests_per_minute", cfg.Review.RequestsPerMinute).
		Msg("PM review enabled")
	return pmreview.NewLLMReviewer(conn, cfg.Review.RequestsPerMinute), nil
}

func (r *runtime) Close() {
	r.pool.Close()
	if err := r.db.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close db")
	}
}
