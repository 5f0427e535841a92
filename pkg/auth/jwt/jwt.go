// Package jwt authenticates RS256/384/512 bearer tokens whose signing keys
// are published at a JWKS endpoint. Claims map onto the caller's subject,
// tenant, service tier and scopes.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/cloudcompchem/cloudcompchem/pkg/auth"
	"github.com/cloudcompchem/cloudcompchem/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim; empty disables the check.
	Issuer string

	// Audience is the expected aud claim; empty disables the check.
	Audience string

	JWKSURL string

	// Claim names. Defaults: sub, tenant_id, tier, scope.
	UserClaim   string
	TenantClaim string
	TierClaim   string
	ScopesClaim string

	// CacheTTL controls how long fetched keys are trusted (default 1h).
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS (default http.DefaultClient).
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	keys   *keySet
	parser *jwtlib.Parser
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a JWT authenticator.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate abstains without a bearer header and rejects any token that
// fails signature, expiry, issuer or audience checks.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tokenStr, present := auth.BearerToken(r)
	if !present {
		return auth.Abstained()
	}
	if tokenStr == "" {
		return auth.Reject(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenStr, claims, func(token *jwtlib.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.get(ctx, kid)
	})
	if err != nil || !token.Valid {
		debug.Log("auth", "JWT rejected", "error", err)
		return auth.Reject(fmt.Errorf("invalid JWT: %w", err))
	}

	id, err := a.identity(claims)
	if err != nil {
		return auth.Reject(err)
	}
	return auth.Accept(id)
}

func (a *Authenticator) identity(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject := claimString(claims, a.config.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.config.UserClaim)
	}
	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: claimString(claims, a.config.TierClaim),
		Scopes:      claimList(claims, a.config.ScopesClaim),
		Metadata:    map[string]string{},
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return id, nil
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimList reads a space-separated string or a JSON array of strings.
func claimList(claims jwtlib.MapClaims, key string) []string {
	var out []string
	switch v := claims[key].(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
