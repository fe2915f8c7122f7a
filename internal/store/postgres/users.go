package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, email string) (*models.User, error) {
	u := &models.User{
		PublicID: uuid.New(),
		Email:    email,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (public_id, email)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		u.PublicID, u.Email,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, email, created_at, updated_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.PublicID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, email, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.PublicID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}
