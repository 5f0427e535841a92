// Package auth authenticates callers of the calculation API before any
// request body is parsed.
//
// Authenticators vote in a chain: Yes (identity found), No (credentials
// present but rejected) or Abstain (credentials of a kind this
// authenticator does not handle). The first Yes or No wins; when every
// authenticator abstains the chain's default decides.
//
// [Middleware] turns a No into a 401 unauthenticated error, applies the
// per-tier rate limit (429), and stores the identity and its tenant in the
// request context so jobs are scoped to the caller.
package auth
