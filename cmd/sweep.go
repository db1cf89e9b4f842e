package cmd

import (
	"github.com/urfave/cli/v2"
)

// SweepCommand runs one graduation sweep and prints the report.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Re-evaluate every active orphan once",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			rt, err := newRuntime(c.Context, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.engine.Sweep(c.Context)
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, report)
		},
	}
}
