// Package identity authenticates bearer tokens by asking an external
// identity service who the token belongs to. The service is called with
// the caller's token; a 2xx answer identifies the caller, anything else
// rejects the request.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/auth"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
)

// Config configures the identity service check.
type Config struct {
	// URL of the "who am I" endpoint, e.g. https://id.example.com/me.
	URL string

	// Field names in the endpoint's JSON answer. SubjectFields are tried in
	// order (default: id, sub, email). TenantField defaults to tenant_id,
	// TierField to tier.
	SubjectFields []string
	TenantField   string
	TierField     string

	// Timeout bounds one identity call (default 5s).
	Timeout time.Duration

	// CacheTTL keeps accepted tokens for this long (default 1m). Zero
	// after defaults means no caching; set a negative value to disable.
	CacheTTL time.Duration

	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if len(c.SubjectFields) == 0 {
		c.SubjectFields = []string{"id", "sub", "email"}
	}
	if c.TenantField == "" {
		c.TenantField = "tenant_id"
	}
	if c.TierField == "" {
		c.TierField = "tier"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// ErrServiceUnavailable is the rejection reason when the identity service
// could not be asked. Requests fail closed.
var ErrServiceUnavailable = errors.New("identity service unavailable")

// Authenticator checks bearer tokens against the identity service.
type Authenticator struct {
	cfg Config

	mu    sync.Mutex
	cache map[[32]byte]cachedIdentity
}

type cachedIdentity struct {
	identity auth.Identity
	expires  time.Time
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an identity service authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.URL == "" {
		return nil, errors.New("identity: URL is required")
	}
	cfg.defaults()
	return &Authenticator{cfg: cfg, cache: map[[32]byte]cachedIdentity{}}, nil
}

// Authenticate abstains without a bearer header.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	token, present := auth.BearerToken(r)
	if !present {
		return auth.Abstained()
	}
	if token == "" {
		return auth.Reject(auth.ErrUnauthenticated)
	}

	key := sha256.Sum256([]byte(token))
	if id, ok := a.cached(key); ok {
		return auth.Accept(id)
	}

	id, err := a.whoAmI(ctx, token)
	if err != nil {
		return auth.Reject(err)
	}
	a.store(key, id)
	return auth.Accept(id)
}

func (a *Authenticator) whoAmI(ctx context.Context, token string) (*auth.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		slog.Warn("identity service call failed", "url", a.cfg.URL, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		debug.Log("auth", "identity service rejected token", "status", resp.StatusCode)
		return nil, auth.ErrUnauthenticated
	case resp.StatusCode/100 != 2:
		slog.Warn("identity service returned unexpected status", "url", a.cfg.URL, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: HTTP %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding answer: %v", ErrServiceUnavailable, err)
	}

	id := &auth.Identity{Metadata: map[string]string{}}
	for _, f := range a.cfg.SubjectFields {
		if s := stringField(body, f); s != "" {
			id.Subject = s
			break
		}
	}
	if id.Subject == "" {
		return nil, fmt.Errorf("identity answer has none of the fields %v", a.cfg.SubjectFields)
	}
	id.ServiceTier = stringField(body, a.cfg.TierField)
	if tenant := stringField(body, a.cfg.TenantField); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return id, nil
}

// stringField reads a string or number field as a string.
func stringField(body map[string]any, key string) string {
	switch v := body[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func (a *Authenticator) cached(key [32]byte) (*auth.Identity, bool) {
	if a.cfg.CacheTTL < 0 {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(a.cache, key)
		return nil, false
	}
	id := entry.identity
	id.Metadata = map[string]string{"tenant_id": entry.identity.TenantID()}
	return &id, true
}

func (a *Authenticator) store(key [32]byte, id *auth.Identity) {
	if a.cfg.CacheTTL < 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for k, e := range a.cache {
		if now.After(e.expires) {
			delete(a.cache, k)
		}
	}
	a.cache[key] = cachedIdentity{identity: *id, expires: now.Add(a.cfg.CacheTTL)}
}
