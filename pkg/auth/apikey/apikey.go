// Package apikey authenticates bearer tokens against a static set of API
// keys. Only SHA-256 digests of the keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/cloudcompchem/cloudcompchem/pkg/auth"
)

// RawKeyEntry is one configured key and the identity it grants.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against configured keys.
type Authenticator struct {
	keys []keyEntry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New hashes the given keys. Entries with an empty key are skipped.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		a.keys = append(a.keys, keyEntry{hash: sha256.Sum256([]byte(e.Key)), identity: e.Identity})
	}
	return a
}

// Len returns the number of usable keys.
func (a *Authenticator) Len() int { return len(a.keys) }

// Authenticate abstains without a bearer header, so a later authenticator
// (JWT, identity service) can handle the request. A bearer token that
// matches no key is rejected.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, present := auth.BearerToken(r)
	if !present {
		return auth.Abstained()
	}
	if token == "" {
		return auth.Reject(auth.ErrUnauthenticated)
	}

	digest := sha256.Sum256([]byte(token))
	match := -1
	for i := range a.keys {
		// Compare against every key so timing does not reveal the index.
		if subtle.ConstantTimeCompare(digest[:], a.keys[i].hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.Reject(auth.ErrUnauthenticated)
	}

	id := a.keys[match].identity
	if id.Metadata != nil {
		md := make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			md[k] = v
		}
		id.Metadata = md
	}
	return auth.Accept(&id)
}
