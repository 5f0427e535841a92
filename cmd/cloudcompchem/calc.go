package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/client"
)

func calculationCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<request.json|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Server URL; without it the calculation runs in-process",
				EnvVars: []string{"CLOUDCOMPCHEM_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token for the server",
				EnvVars: []string{"CLOUDCOMPCHEM_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "async",
				Usage: "Submit as a job and poll until it finishes (requires --url)",
			},
			&cli.DurationFlag{
				Name:  "poll",
				Value: 2 * time.Second,
				Usage: "Job polling interval",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Print only the JSON result",
			},
		},
		Action: func(c *cli.Context) error {
			return runCalculation(c, kindForCommand(name))
		},
	}
}

func kindForCommand(name string) api.CalculationKind {
	if name == "optimize" {
		return api.CalculationOptimization
	}
	return api.CalculationEnergy
}

func runCalculation(c *cli.Context, kind api.CalculationKind) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one request file, got %d arguments", c.NArg())
	}
	req, err := readRequest(c.Args().First(), kind)
	if err != nil {
		return err
	}

	cl, err := newCalculationClient(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	var payload json.RawMessage
	if c.Bool("async") {
		payload, err = runAsync(ctx, c.App.ErrWriter, cl, req, c.Duration("poll"))
	} else {
		payload, err = runSync(ctx, cl, req)
	}
	if err != nil {
		return err
	}

	out := c.App.Writer
	var pretty any
	if err := json.Unmarshal(payload, &pretty); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pretty); err != nil {
		return err
	}
	if !c.Bool("quiet") {
		summary, err := summarize(kind, req.Molecule(), payload)
		if err != nil {
			return err
		}
		fmt.Fprint(c.App.ErrWriter, summary)
	}
	return nil
}

// readRequest parses a request file ("-" reads stdin) with the same
// validation the server applies.
func readRequest(path string, kind api.CalculationKind) (*api.CalculationRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	obj, err := api.DecodeObject(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	req, err := api.ParseCalculationRequest(kind, obj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

// newCalculationClient talks to --url when given and otherwise runs the
// configured engine in this process.
func newCalculationClient(c *cli.Context) (*client.Client, error) {
	if url := c.String("url"); url != "" {
		return client.New(client.Config{URL: url, Token: c.String("token")})
	}
	if c.Bool("async") {
		return nil, fmt.Errorf("--async requires --url")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	eng, err := newEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return client.NewLocal(eng), nil
}

func runSync(ctx context.Context, cl *client.Client, req *api.CalculationRequest) (json.RawMessage, error) {
	res, err := cl.Calculate(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res.Payload())
}

func runAsync(ctx context.Context, log io.Writer, cl *client.Client, req *api.CalculationRequest, poll time.Duration) (json.RawMessage, error) {
	h, err := cl.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(log, "submitted %s\n", h.ID)
	h, err = cl.Wait(ctx, h.ID, poll)
	if err != nil {
		return nil, err
	}
	if !h.Successful {
		if h.Error != nil {
			return nil, h.Error
		}
		return nil, fmt.Errorf("job %s ended with status %s", h.ID, h.Status)
	}
	return h.Result, nil
}
