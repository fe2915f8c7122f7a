package postgres

import (
	"context"
	"database/sql"

	"github.com/coldfront-labs/coldfront/internal/models"
)

type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

func (s *APIKeyStore) CreateAPIKey(ctx context.Context, userID int64, keyID, secretHash, label string) (*models.APIKey, error) {
	k := &models.APIKey{
		UserID:     userID,
		KeyID:      keyID,
		SecretHash: secretHash,
		Label:      label,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO api_keys (user_id, key_id, secret_hash, label)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		k.UserID, k.KeyID, k.SecretHash, k.Label,
	).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (s *APIKeyStore) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*models.APIKey, error) {
	k := &models.APIKey{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, key_id, secret_hash, label, last_used_at, created_at
		 FROM api_keys WHERE key_id = $1`, keyID,
	).Scan(&k.ID, &k.UserID, &k.KeyID, &k.SecretHash, &k.Label, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (s *APIKeyStore) TouchAPIKey(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}

func (s *APIKeyStore) DeleteAPIKey(ctx context.Context, userID, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID)
	return err
}
