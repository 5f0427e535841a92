package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/auth"
	"github.com/cloudcompchem/cloudcompchem/pkg/auth/apikey"
	"github.com/cloudcompchem/cloudcompchem/pkg/auth/identity"
	"github.com/cloudcompchem/cloudcompchem/pkg/auth/jwt"
	"github.com/cloudcompchem/cloudcompchem/pkg/auth/noop"
	"github.com/cloudcompchem/cloudcompchem/pkg/config"
	"github.com/cloudcompchem/cloudcompchem/pkg/engine"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs/durable"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider/pyscf"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider/remote"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage/memory"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage/postgres"
)

// newProvider creates the engine backend selected by engine.type.
func newProvider(cfg config.EngineConfig) (provider.Provider, error) {
	switch cfg.Type {
	case "remote":
		return remote.New(remote.Config{
			BaseURL:    cfg.URL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case "pyscf":
		return pyscf.New(pyscf.Config{
			Command: cfg.PySCF.Command,
			Script:  cfg.PySCF.Script,
			WorkDir: cfg.PySCF.WorkDir,
			Env:     cfg.PySCF.Env,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown engine type %q", cfg.Type)
	}
}

// newEngine wires a provider into the calculation engine.
func newEngine(cfg config.EngineConfig) (*engine.Engine, error) {
	prov, err := newProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine provider: %w", err)
	}
	eng, err := engine.New(prov, engine.Config{
		Timeout:            cfg.Timeout,
		RequireConvergence: cfg.RequireConvergence,
	})
	if err != nil {
		prov.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	slog.Info("engine ready", "provider", prov.Name(), "timeout", cfg.Timeout)
	return eng, nil
}

// newStore creates the job store selected by storage.type.
func newStore(ctx context.Context, cfg config.StorageConfig) (jobs.Store, error) {
	switch cfg.Type {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		if cfg.Postgres.Retention > 0 {
			go purgeLoop(ctx, store, cfg.Postgres.Retention)
		}
		return store, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// purgeLoop removes finished jobs older than retention until ctx ends.
func purgeLoop(ctx context.Context, store *postgres.Store, retention time.Duration) {
	interval := min(retention/4, time.Hour)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeFinished(ctx, time.Now().Add(-retention))
			if err != nil {
				slog.Warn("purging finished jobs failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged finished jobs", "count", n)
			}
		}
	}
}

// queueBundle is a job queue plus what must be released after it.
type queueBundle struct {
	queue   jobs.Queue
	ready   func(ctx context.Context) error
	closers []func() error
}

func (b *queueBundle) Close() {
	if b.queue != nil {
		if err := b.queue.Close(); err != nil {
			slog.Warn("closing job queue", "error", err)
		}
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("closing job backend", "error", err)
		}
	}
}

// newQueue creates the asynchronous job backend selected by jobs.backend.
// The returned bundle has a nil queue when jobs are disabled.
func newQueue(ctx context.Context, cfg *config.Config, eng *engine.Engine) (*queueBundle, error) {
	b := &queueBundle{}
	switch cfg.Jobs.Backend {
	case "none":
		slog.Info("asynchronous jobs disabled")
	case "local":
		store, err := newStore(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.ready = store.HealthCheck
		if _, err := jobs.FailOrphaned(ctx, store); err != nil {
			b.Close()
			return nil, err
		}
		b.queue = jobs.NewLocal(eng, store, jobs.LocalConfig{
			Workers:   cfg.Jobs.Workers,
			QueueSize: cfg.Jobs.QueueSize,
		})
		slog.Info("job queue enabled", "backend", "local", "workers", cfg.Jobs.Workers)
	case "temporal":
		c, err := durable.Dial(temporalConfig(cfg.Jobs.Temporal))
		if err != nil {
			return nil, fmt.Errorf("connecting to temporal: %w", err)
		}
		b.closers = append(b.closers, func() error { c.Close(); return nil })
		b.ready = func(ctx context.Context) error {
			_, err := c.CheckHealth(ctx, nil)
			return err
		}
		b.queue = durable.NewQueue(c, temporalConfig(cfg.Jobs.Temporal), cfg.Engine.Timeout)
		slog.Info("job queue enabled", "backend", "temporal",
			"host", cfg.Jobs.Temporal.HostPort, "task_queue", cfg.Jobs.Temporal.TaskQueue)
	default:
		return nil, fmt.Errorf("unknown jobs backend %q", cfg.Jobs.Backend)
	}
	return b, nil
}

func temporalConfig(cfg config.TemporalConfig) durable.Config {
	return durable.Config{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		TaskQueue: cfg.TaskQueue,
	}
}

// newAuth builds the authenticator chain and rate limiter. A nil chain
// means authentication is disabled.
func newAuth(cfg config.AuthConfig) (*auth.AuthChain, auth.RateLimiter, error) {
	var authenticator auth.Authenticator
	switch cfg.Type {
	case "none":
		limiter := rateLimiter(cfg.RateLimit)
		if limiter == nil {
			return nil, nil, nil
		}
		// Anonymous callers still share the default tier's limit.
		authenticator = &noop.Authenticator{}
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		authenticator = apikey.New(entries)
	case "jwt":
		authenticator = jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			TenantClaim: cfg.JWT.TenantClaim,
			TierClaim:   cfg.JWT.TierClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		})
	case "identity":
		a, err := identity.New(identity.Config{
			URL:         cfg.Identity.URL,
			TenantField: cfg.Identity.TenantField,
			TierField:   cfg.Identity.TierField,
			Timeout:     cfg.Identity.Timeout,
			CacheTTL:    cfg.Identity.CacheTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		authenticator = a
	default:
		return nil, nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{authenticator},
		DefaultDecision: auth.No,
	}
	slog.Info("authentication enabled", "type", cfg.Type)
	return chain, rateLimiter(cfg.RateLimit), nil
}

func rateLimiter(cfg config.RateLimitConfig) auth.RateLimiter {
	if cfg.DefaultRPM == 0 && len(cfg.Tiers) == 0 {
		return nil
	}
	tiers := make(map[string]auth.TierConfig, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		tiers[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
	}
	return auth.NewInProcessLimiter(tiers, cfg.DefaultRPM)
}
