package postgres

import (
	"context"
	"database/sql"
	"time"

	"sak/pkg/domain"
	"sak/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindOrCreateByPublicKey returns the user for the key, inserting it on first
// sight. Concurrent first calls resolve to the same row.
func (r *UserRepository) FindOrCreateByPublicKey(ctx context.Context, publicKey string) (*domain.User, error) {
	query := `
		INSERT INTO users (id, stellar_public_key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (stellar_public_key) DO UPDATE
			SET stellar_public_key = EXCLUDED.stellar_public_key
		RETURNING id, stellar_public_key, created_at
	`

	var user domain.User
	err := r.db.GetContext(ctx, &user, query, uuid.New(), publicKey, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to find or create user")
	}
	return &user, nil
}

func (r *UserRepository) FindByPublicKey(ctx context.Context, publicKey string) (*domain.User, error) {
	query := `SELECT id, stellar_public_key, created_at FROM users WHERE stellar_public_key = $1`

	var user domain.User
	err := r.db.GetContext(ctx, &user, query, publicKey)
	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	return &user, nil
}
