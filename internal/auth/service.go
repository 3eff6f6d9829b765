package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// tokenPrefix marks tokens minted by this system. The wire format is
// mk_<tokenID>_<secret>; only the tokenID is stored in clear.
const tokenPrefix = "mk"

// Repository defines persistence operations for API keys.
type Repository interface {
	Insert(ctx context.Context, key *APIKey) error
	FindByTokenID(ctx context.Context, tokenID string) (APIKey, error)
	List(ctx context.Context) ([]APIKey, error)
	Touch(ctx context.Context, id int64, at time.Time) error
	Revoke(ctx context.Context, id int64) error
}

// Service wraps API key authentication rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Mint creates a key and returns the full token. The token cannot be
// recovered later, so the caller must hand it to the client now.
func (s *Service) Mint(ctx context.Context, input MintInput) (string, APIKey, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", APIKey{}, fmt.Errorf("auth: key name required: %w", shared.ErrValidation)
	}
	if input.ActorID <= 0 {
		return "", APIKey{}, fmt.Errorf("auth: key must act as a known user: %w", shared.ErrValidation)
	}

	tokenID, secret, err := randomToken()
	if err != nil {
		return "", APIKey{}, fmt.Errorf("auth: generate token: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", APIKey{}, fmt.Errorf("auth: hash secret: %w", err)
	}

	key := APIKey{
		TokenID:    tokenID,
		Name:       name,
		SecretHash: string(hash),
		ActorID:    input.ActorID,
		Active:     true,
		ExpiresAt:  input.ExpiresAt,
	}
	if err := s.repo.Insert(ctx, &key); err != nil {
		return "", APIKey{}, err
	}
	return strings.Join([]string{tokenPrefix, tokenID, secret}, "_"), key, nil
}

// Authenticate resolves a token to its actor. Every failure mode
// collapses to the same error so callers cannot probe which keys exist.
func (s *Service) Authenticate(ctx context.Context, token string) (*shared.Actor, error) {
	tokenID, secret, ok := splitToken(token)
	if !ok {
		return nil, shared.ErrInvalidCredentials
	}
	key, err := s.repo.FindByTokenID(ctx, tokenID)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !key.Active {
		return nil, shared.ErrInvalidCredentials
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	// last-used is bookkeeping, not part of the auth decision
	_ = s.repo.Touch(ctx, key.ID, time.Now().UTC())
	return &shared.Actor{ID: key.ActorID, Name: key.Name}, nil
}

// List returns all keys without their hashes exposed on the wire.
func (s *Service) List(ctx context.Context) ([]APIKey, error) {
	return s.repo.List(ctx)
}

// Revoke deactivates a key. Revocation is permanent; mint a new key to
// restore access.
func (s *Service) Revoke(ctx context.Context, id int64) error {
	return s.repo.Revoke(ctx, id)
}

func randomToken() (tokenID, secret string, err error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(buf[:6]), hex.EncodeToString(buf[6:]), nil
}

func splitToken(token string) (tokenID, secret string, ok bool) {
	parts := strings.Split(token, "_")
	if len(parts) != 3 || parts[0] != tokenPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
