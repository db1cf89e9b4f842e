package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/feedforward/internal/config"
)

// ConfigCommand groups helpers for the TOML configuration.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or scaffold the configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample feedforward.toml",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "out", Aliases: []string{"o"}, Value: "feedforward.toml", Usage: "Destination `PATH`"},
				},
				Action: func(c *cli.Context) error {
					dest := c.Path("out")
					if err := config.InitConfig(dest); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %s\n", dest)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Load defaults, file and environment, then check the result",
				Action: func(c *cli.Context) error {
					if _, err := effectiveConfig(c); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "ok")
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration with secrets redacted",
				Action: func(c *cli.Context) error {
					cfg, err := effectiveConfig(c)
					if err != nil {
						return err
					}
					return writeJSON(c.App.Writer, redacted(*cfg))
				},
			},
		},
	}
}

func effectiveConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func redacted(cfg config.Config) config.Config {
	if cfg.Review.APIKey != "" {
		cfg.Review.APIKey = "***"
	}
	if cfg.Database.URL != "" {
		cfg.Database.URL = "***"
	}
	return cfg
}
