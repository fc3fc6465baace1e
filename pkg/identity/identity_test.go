package identity

import (
	"testing"

	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/stretchr/testify/assert"
)

const bobToken = "THISisBOBSsuperSECRETauthToken123"

func newStore() *Store {
	return NewStore([]config.Identity{
		{Name: "Bob", Token: bobToken},
		{Name: "Alice", Token: "alicetoken"},
	})
}

func TestGuard_OpenQueueAdmitsEveryone(t *testing.T) {
	g := NewGuard(newStore(), nil)

	assert.True(t, g.Open())
	assert.NoError(t, g.Allow("", ""))
	assert.NoError(t, g.Allow("Eve", "whatever"))
}

func TestGuard_RestrictedQueue(t *testing.T) {
	g := NewGuard(newStore(), []string{"Bob"})

	tests := []struct {
		name    string
		id      string
		token   string
		allowed bool
	}{
		{name: "valid identity and token", id: "Bob", token: bobToken, allowed: true},
		{name: "missing both headers", id: "", token: "", allowed: false},
		{name: "missing token", id: "Bob", token: "", allowed: false},
		{name: "missing identity", id: "", token: bobToken, allowed: false},
		{name: "wrong token", id: "Bob", token: "guess", allowed: false},
		{name: "known identity not on allowlist", id: "Alice", token: "alicetoken", allowed: false},
		{name: "unknown identity", id: "Eve", token: "whatever", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Allow(tt.id, tt.token)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestGuard_AllowlistedButUnconfiguredIdentity(t *testing.T) {
	// Guard references an identity missing from the store: nobody gets in
	// under that name.
	g := NewGuard(newStore(), []string{"Ghost"})
	assert.ErrorIs(t, g.Allow("Ghost", "anything"), ErrForbidden)
}
