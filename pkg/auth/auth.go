package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// AuthDecision is an authenticator's vote.
type AuthDecision int

const (
	// Yes means the credentials are valid; the chain stops.
	Yes AuthDecision = iota

	// No means credentials were presented and rejected; the chain stops.
	No

	// Abstain passes the request to the next authenticator.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// Accept returns a Yes vote for id.
func Accept(id *Identity) AuthResult {
	return AuthResult{Decision: Yes, Identity: id}
}

// Reject returns a No vote. A nil err becomes ErrUnauthenticated.
func Reject(err error) AuthResult {
	if err == nil {
		err = ErrUnauthenticated
	}
	return AuthResult{Decision: No, Err: err}
}

// Abstained returns an Abstain vote.
func Abstained() AuthResult {
	return AuthResult{Decision: Abstain}
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject is the unique caller ID; never empty.
	Subject string

	// ServiceTier selects the rate limit.
	ServiceTier string

	Scopes []string

	// Metadata carries authenticator-specific data. The "tenant_id" key
	// scopes stored jobs.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Tier returns the service tier, "default" when unset.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// Anonymous is the identity granted when authentication is disabled.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) AuthResult

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	return f(ctx, r)
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// BearerToken extracts the token of an "Authorization: Bearer" header.
// present is false when there is no bearer header at all; an empty token
// with present true means the header was "Bearer " with nothing after it.
func BearerToken(r *http.Request) (token string, present bool) {
	header := r.Header.Get("Authorization")
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// AuthChain evaluates authenticators in order.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes grants
	// the anonymous identity; anything else rejects.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain and stops on the first Yes or No.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}
	if c.DefaultDecision == Yes {
		return Accept(Anonymous())
	}
	return Reject(ErrUnauthenticated)
}
