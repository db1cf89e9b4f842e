package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/feedforward/internal/database"
)

// MigrateCommand creates the orphan, story and River tables.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the database schema",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			dbURL, err := database.ResolveURL(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to get database URL: %w", err)
			}
			pool, err := database.NewPool(c.Context, dbURL, 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.EnsureSchema(c.Context, pool); err != nil {
				return err
			}
			log.Info().Msg("schema is up to date")
			return nil
		},
	}
}
