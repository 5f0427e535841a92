package durable

import (
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// Config addresses a Temporal cluster.
type Config struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

func (c *Config) defaults() {
	if c.HostPort == "" {
		c.HostPort = client.DefaultHostPort
	}
	if c.Namespace == "" {
		c.Namespace = client.DefaultNamespace
	}
	if c.TaskQueue == "" {
		c.TaskQueue = "cloudcompchem-calculations"
	}
}

// Dial connects to the Temporal frontend. SDK logs go through slog.
func Dial(cfg Config) (client.Client, error) {
	cfg.defaults()
	return client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log.NewStructuredLogger(slog.Default()),
	})
}

// RegisterAll registers the calculation workflow and its activity.
// Must be called once, before the worker starts.
func RegisterAll(w sdkworker.Worker, calc transport.Calculator) {
	acts := NewActivities(calc)
	w.RegisterWorkflowWithOptions(CalculationWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(acts.RunCalculation, activity.RegisterOptions{Name: RunCalculationActivity})
}

// NewWorker creates a worker on cfg.TaskQueue with everything registered.
func NewWorker(c client.Client, cfg Config, calc transport.Calculator) sdkworker.Worker {
	cfg.defaults()
	w := sdkworker.New(c, cfg.TaskQueue, sdkworker.Options{})
	RegisterAll(w, calc)
	return w
}
