package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cloudcompchem/cloudcompchem/pkg/jobs/durable"
)

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Run calculations from the Temporal task queue",
		Action: runWorker,
	}
}

func runWorker(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Jobs.Backend != "temporal" {
		return fmt.Errorf("worker requires jobs.backend \"temporal\", got %q", cfg.Jobs.Backend)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}
	defer eng.Provider().Close()

	tcfg := temporalConfig(cfg.Jobs.Temporal)
	tc, err := durable.Dial(tcfg)
	if err != nil {
		return fmt.Errorf("connecting to temporal: %w", err)
	}
	defer tc.Close()

	w := durable.NewWorker(tc, tcfg, eng)
	if err := w.Start(); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	slog.Info("worker started", "task_queue", tcfg.TaskQueue, "engine", cfg.Engine.Type)

	<-ctx.Done()
	slog.Info("worker stopping")
	w.Stop()
	return nil
}
