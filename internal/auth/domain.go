package auth

import (
	"fmt"
	"time"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// APIKey is a machine credential. The secret is only ever held as a
// bcrypt hash; the full token leaves the system exactly once, at mint
// time.
type APIKey struct {
	ID         int64      `json:"id"`
	TokenID    string     `json:"tokenId"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	ActorID    int64      `json:"actorId"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// MintInput describes a key to create. ExpiresAt nil means the key does
// not expire.
type MintInput struct {
	Name      string
	ActorID   int64
	ExpiresAt *time.Time
}

var ErrKeyNotFound = fmt.Errorf("auth: api key not found: %w", shared.ErrNotFound)
