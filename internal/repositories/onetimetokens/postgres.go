// Package onetimetokens provides the PostgreSQL-backed one-time-token store.
package onetimetokens

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, user_id, token_type, secret, metadata, created_at, expires_at, used, revoked`

func scanToken(row *sql.Row) (*models.OneTimeToken, error) {
	t := &models.OneTimeToken{}
	var userID uuid.NullUUID
	var meta []byte
	err := row.Scan(&t.ID, &userID, &t.TokenType, &t.Secret, &meta, &t.CreatedAt, &t.ExpiresAt, &t.Used, &t.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if userID.Valid {
		t.UserID = &userID.UUID
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decoding metadata: %v", common.ErrDatabase, err)
		}
	}
	return t, nil
}

// Store revokes any prior live token of the same type for the same user,
// then inserts the new row. Callers run it inside their transaction.
func (r *PostgresRepository) Store(ctx context.Context, token *models.OneTimeToken) (*models.OneTimeToken, error) {
	var userID uuid.NullUUID
	if token.UserID != nil {
		userID = uuid.NullUUID{UUID: *token.UserID, Valid: true}

		sweep := `
			UPDATE one_time_tokens SET revoked = true
			WHERE user_id = $1 AND token_type = $2 AND NOT used AND NOT revoked`
		if _, err := r.db.ExecContext(ctx, sweep, *token.UserID, token.TokenType); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
	}

	meta := []byte("{}")
	if token.Metadata != nil {
		var err error
		meta, err = json.Marshal(token.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
	}

	query := `
		INSERT INTO one_time_tokens (user_id, token_type, secret, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + tokenColumns

	row := r.db.QueryRowContext(ctx, query, userID, token.TokenType, token.Secret, meta, token.ExpiresAt)
	return scanToken(row)
}

// Validate atomically fetches a live token by (secret, type).
func (r *PostgresRepository) Validate(ctx context.Context, secret string, typ models.TokenType) (*models.OneTimeToken, error) {
	query := `
		SELECT ` + tokenColumns + ` FROM one_time_tokens
		WHERE secret = $1 AND token_type = $2 AND NOT used AND NOT revoked AND expires_at > now()`
	return scanToken(r.db.QueryRowContext(ctx, query, secret, typ))
}

// Revoke marks the token with the given secret revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, secret string) error {
	query := `UPDATE one_time_tokens SET revoked = true WHERE secret = $1`
	if _, err := r.db.ExecContext(ctx, query, secret); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

// MarkUsed consumes the token. The update matches only a live row, so when
// two consumers race between Validate and MarkUsed exactly one succeeds; the
// loser gets common.ErrNotFound and must fail its transaction.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE one_time_tokens SET used = true WHERE id = $1 AND NOT used AND NOT revoked`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteExpired removes tokens past their expiry.
func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM one_time_tokens WHERE expires_at <= now()`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return n, nil
}
