package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/feedforward/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "feedforward",
		Usage:   "Accumulate classified conversations into orphans and graduate them into stories",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./feedforward.toml, ./data/feedforward.toml, ~/.feedforward.toml)",
				EnvVars: []string{"FEEDFORWARD_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			cmd.RouteCommand(),
			cmd.SweepCommand(),
			cmd.WorkerCommand(),
			cmd.MigrateCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
