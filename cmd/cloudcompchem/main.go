// Command cloudcompchem runs the calculation service and its tooling.
//
// Usage:
//
//	cloudcompchem serve --config config.yaml
//	cloudcompchem worker --config config.yaml
//	cloudcompchem energy water.json
//	cloudcompchem optimize --url http://localhost:5000 water.json
//	cloudcompchem config check --config config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cloudcompchem/cloudcompchem/pkg/config"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
	mcptransport "github.com/cloudcompchem/cloudcompchem/pkg/transport/mcp"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	mcptransport.Version = version
	return &cli.App{
		Name:    "cloudcompchem",
		Usage:   "DFT energies and geometry optimizations behind an HTTP API",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				EnvVars: []string{"CLOUDCOMPCHEM_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (ERROR, WARN, INFO, DEBUG, TRACE); overrides the config file",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			workerCommand(),
			calculationCommand("energy", "Compute the single-point energy of a molecule"),
			calculationCommand("optimize", "Optimize the geometry of a molecule"),
			configCommand(),
		},
	}
}

// loadConfig loads the layered configuration and installs the logger.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
