package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cloudcompchem/cloudcompchem/pkg/config"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
	transporthttp "github.com/cloudcompchem/cloudcompchem/pkg/transport/http"
	mcptransport "github.com/cloudcompchem/cloudcompchem/pkg/transport/mcp"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port; overrides server.port",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}
	defer eng.Provider().Close()

	bundle, err := newQueue(ctx, cfg, eng)
	if err != nil {
		return err
	}
	defer bundle.Close()

	opts, err := serverOptions(cfg, eng, bundle)
	if err != nil {
		return err
	}
	srv := transporthttp.NewServer(eng, bundle.queue, opts...)

	slog.Info("server starting",
		"port", cfg.Server.Port,
		"engine", cfg.Engine.Type,
		"jobs", cfg.Jobs.Backend,
		"auth", cfg.Auth.Type,
		"mcp", cfg.MCP.Enabled,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// serverOptions translates the configuration into server options.
func serverOptions(cfg *config.Config, calc transport.Calculator, bundle *queueBundle) ([]transporthttp.ServerOption, error) {
	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}

	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetricsPath(cfg.Observability.Metrics.Path))
	} else {
		opts = append(opts, transporthttp.WithMetricsPath(""))
	}

	chain, limiter, err := newAuth(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("configuring authentication: %w", err)
	}
	if chain != nil {
		opts = append(opts, transporthttp.WithAuth(chain, limiter, cfg.BypassEndpoints()))
	}

	if bundle != nil && bundle.ready != nil {
		ready := bundle.ready
		opts = append(opts, transporthttp.WithReadyCheck(func(ctx context.Context) error {
			return ready(ctx)
		}))
	}

	if cfg.MCP.Enabled {
		opts = append(opts, transporthttp.WithRoute(cfg.MCP.Path, mcptransport.Handler(mcptransport.NewServer(calc, transport.DefaultMiddleware(slog.Default())...))))
		slog.Info("mcp endpoint enabled", "path", cfg.MCP.Path)
	}
	return opts, nil
}
