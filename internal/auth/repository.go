package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const keyColumns = `id, token_id, name, secret_hash, actor_id, is_active, expires_at, last_used_at, created_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, key *APIKey) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (token_id, name, secret_hash, actor_id, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		key.TokenID, key.Name, key.SecretHash, key.ActorID, key.Active, key.ExpiresAt,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("auth: insert api key: %w", err)
	}
	return nil
}

func (r *PGRepository) FindByTokenID(ctx context.Context, tokenID string) (APIKey, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE token_id = $1`, tokenID)
	return r.scan(row)
}

func (r *PGRepository) List(ctx context.Context) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+keyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("auth: list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		key, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: read api keys: %w", err)
	}
	return keys, nil
}

func (r *PGRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *PGRepository) Revoke(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("auth: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (r *PGRepository) scan(row pgx.Row) (APIKey, error) {
	var key APIKey
	err := row.Scan(
		&key.ID, &key.TokenID, &key.Name, &key.SecretHash, &key.ActorID,
		&key.Active, &key.ExpiresAt, &key.LastUsedAt, &key.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrKeyNotFound
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("auth: scan api key: %w", err)
	}
	return key, nil
}

var _ Repository = (*PGRepository)(nil)
