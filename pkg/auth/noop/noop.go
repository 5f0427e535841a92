// Package noop provides an authenticator that accepts every request as the
// anonymous caller. Used when auth.type is "none".
package noop

import (
	"context"
	"net/http"

	"github.com/cloudcompchem/cloudcompchem/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

var _ auth.Authenticator = (*Authenticator)(nil)

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.Accept(auth.Anonymous())
}
