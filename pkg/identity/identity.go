// Package identity enforces per-queue identity allowlists.
//
// Identities are (name, token) pairs loaded once at startup. A route with a
// non-empty allowlist requires both X-Bunny-Identity and X-Bunny-Token, and
// every failure mode answers the same way so enumerating restricted queues is
// no easier than guessing tokens.
package identity

import (
	"crypto/subtle"
	"errors"

	"github.com/getbunnyd/bunnyd/pkg/config"
)

// ErrForbidden is returned for any authentication failure.
var ErrForbidden = errors.New("forbidden")

// Store holds all configured identities, read-only after load.
type Store struct {
	tokens map[string]string
}

// NewStore builds the identity store from configuration.
func NewStore(identities []config.Identity) *Store {
	tokens := make(map[string]string, len(identities))
	for _, id := range identities {
		tokens[id.Name] = id.Token
	}
	return &Store{tokens: tokens}
}

// verify reports whether the token matches the stored token for name,
// comparing in constant time.
func (s *Store) verify(name, token string) bool {
	stored, ok := s.tokens[name]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1
}

// Guard is the per-queue allowlist check.
type Guard struct {
	store   *Store
	allowed map[string]struct{}
}

// NewGuard builds a guard for one route. An empty allowlist admits everyone.
func NewGuard(store *Store, allowed []string) *Guard {
	g := &Guard{store: store, allowed: make(map[string]struct{}, len(allowed))}
	for _, name := range allowed {
		g.allowed[name] = struct{}{}
	}
	return g
}

// Open reports whether the guard admits unauthenticated requests.
func (g *Guard) Open() bool {
	return len(g.allowed) == 0
}

// Allow checks the identity headers against the route's allowlist. It returns
// ErrForbidden on any failure, including missing headers.
func (g *Guard) Allow(name, token string) error {
	if g.Open() {
		return nil
	}
	if name == "" || token == "" {
		return ErrForbidden
	}
	if _, ok := g.allowed[name]; !ok {
		return ErrForbidden
	}
	if !g.store.verify(name, token) {
		return ErrForbidden
	}
	return nil
}
