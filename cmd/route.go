package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/feedforward/internal/database"
	"github.com/feedforward/internal/jobqueue"
	"github.com/feedforward/pkg/models"
)

// RouteCommand routes a batch of classified themes.
func RouteCommand() *cli.Command {
	return &cli.Command{
		Name:  "route",
		Usage: "Route classified themes into orphans and stories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "JSON array of themes, or - for stdin",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Themes routed in parallel",
				Value: 8,
			},
			&cli.BoolFlag{
				Name:  "enqueue",
				Usage: "Insert route_theme jobs for the worker instead of routing inline",
			},
		},
		Action: runRoute,
	}
}

func runRoute(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	themes, err := readThemes(c.String("file"), c.App.Reader)
	if err != nil {
		return err
	}

	if c.Bool("enqueue") {
		dbURL, err := database.ResolveURL(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to get database URL: %w", err)
		}
		pool, err := database.NewPool(c.Context, dbURL, cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		jq, err := jobqueue.NewInsertOnlyQueue(pool, queueConfig(cfg))
		if err != nil {
			return err
		}
		if err := jq.QueueThemes(c.Context, themes); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Queued %d themes\n", len(themes))
		return nil
	}

	rt, err := newRuntime(c.Context, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := routeAll(c.Context, rt.matcher, themes, c.Int("concurrency"))
	if encErr := writeJSON(c.App.Writer, summary); encErr != nil {
		return encErr
	}
	return err
}

// RouteSummary counts routing outcomes for one batch.
type RouteSummary struct {
	Total   int            `json:"total"`
	Results map[string]int `json:"results"`
	Failed  int            `json:"failed"`
}

// routeAll routes themes with bounded concurrency. A failed theme is logged
// and counted; the rest of the batch still runs.
func routeAll(ctx context.Context, router jobqueue.Router, themes []models.Theme, concurrency int) (*RouteSummary, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]string, len(themes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, th := range themes {
		g.Go(func() error {
			res, err := router.Route(gctx, th)
			if err != nil {
				log.Error().Err(err).Str("conversation_id", th.ConversationID).Msg("failed to route theme")
				return nil
			}
			results[i] = string(res.Result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &RouteSummary{Total: len(themes), Results: make(map[string]int)}
	for _, r := range results {
		if r == "" {
			summary.Failed++
			continue
		}
		summary.Results[r]++
	}
	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d themes failed to route", summary.Failed, summary.Total)
	}
	return summary, nil
}

func readThemes(path string, stdin io.Reader) ([]models.Theme, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open themes: %w", err)
		}
		defer f.Close()
		r = f
	}
	var themes []models.Theme
	if err := json.NewDecoder(r).Decode(&themes); err != nil {
		return nil, fmt.Errorf("decode themes: %w", err)
	}
	return themes, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
