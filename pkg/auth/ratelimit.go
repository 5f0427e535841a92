package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	RequestsPerMinute int

	// Burst is the number of requests allowed at once (default:
	// RequestsPerMinute).
	Burst int
}

// InProcessLimiter keeps one token bucket per subject and tier in memory.
// Buckets idle for longer than idleTTL are dropped on the next sweep.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	idleTTL    time.Duration

	mu        sync.Mutex
	limiters  map[string]*timedLimiter
	lastSweep time.Time
}

type timedLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewInProcessLimiter creates a rate limiter with per-tier configuration.
// Tiers without an entry use defaultRPM; zero disables the limit.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		idleTTL:    10 * time.Minute,
		limiters:   make(map[string]*timedLimiter),
		lastSweep:  time.Now(),
	}
}

// Allow takes a token from the caller's bucket or returns
// ErrTooManyRequests.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()
	cfg, ok := l.tiers[tier]
	if !ok {
		cfg = TierConfig{RequestsPerMinute: l.defaultRPM}
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}

	now := time.Now()
	key := identity.Subject + ":" + tier

	l.mu.Lock()
	l.sweep(now)
	tl, ok := l.limiters[key]
	if !ok {
		tl = &timedLimiter{limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), burst)}
		l.limiters[key] = tl
	}
	tl.lastUsed = now
	l.mu.Unlock()

	if !tl.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops idle buckets at most once per idleTTL. Caller holds l.mu.
func (l *InProcessLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	for key, tl := range l.limiters {
		if now.Sub(tl.lastUsed) >= l.idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}
