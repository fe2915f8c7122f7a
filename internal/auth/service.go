package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
)

var ErrInvalidToken = errors.New("invalid API token")

// Service authenticates API requests by key token. Dashboard session auth
// lives outside this service; keys are the API's only credential.
type Service struct {
	keys  store.APIKeyStore
	users store.UserStore
}

func NewService(keys store.APIKeyStore, users store.UserStore) *Service {
	return &Service{
		keys:  keys,
		users: users,
	}
}

// IssuedKey is returned once at creation time; the token is never
// recoverable afterwards.
type IssuedKey struct {
	Key   *models.APIKey
	Token string
}

// CreateKey issues a new API key for the user.
func (s *Service) CreateKey(ctx context.Context, userID int64, label string) (*IssuedKey, error) {
	keyID, secret, token, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}

	key, err := s.keys.CreateAPIKey(ctx, userID, keyID, hash, label)
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	return &IssuedKey{Key: key, Token: token}, nil
}

// Authenticate resolves a presented token to its owning user, touching the
// key's last-used timestamp. Every failure collapses to ErrInvalidToken so
// callers cannot distinguish an unknown key from a wrong secret.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	keyID, secret, err := ParseToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	key, err := s.keys.GetAPIKeyByKeyID(ctx, keyID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if err := CheckSecret(key.SecretHash, secret); err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetUserByID(ctx, key.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if err := s.keys.TouchAPIKey(ctx, key.ID); err != nil {
		// Not worth failing the request over.
		return user, nil
	}
	return user, nil
}
