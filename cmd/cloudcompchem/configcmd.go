package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Load and validate the configuration",
				Action: func(c *cli.Context) error {
					if _, err := loadConfig(c); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "configuration OK")
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration with secrets redacted",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					redact(&cfg.Engine.APIKey)
					redact(&cfg.Storage.Postgres.DSN)
					for i := range cfg.Auth.APIKeys {
						redact(&cfg.Auth.APIKeys[i].Key)
					}
					enc := yaml.NewEncoder(c.App.Writer)
					enc.SetIndent(2)
					defer enc.Close()
					return enc.Encode(cfg)
				},
			},
		},
	}
}

func redact(s *string) {
	if *s != "" {
		*s = "REDACTED"
	}
}
