// Package refreshtokens provides a PostgreSQL-backed repository for the
// refresh-token rotation chains.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, user_id, token, parent_token_id, session_id, instance_id, revoked, created_at, updated_at`

func scanToken(row *sql.Row) (*models.RefreshToken, error) {
	t := &models.RefreshToken{}
	var parent uuid.NullUUID
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &parent, &t.SessionID, &t.InstanceID, &t.Revoked, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		// Keep the driver error in the chain so unique-violation checks work.
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if parent.Valid {
		t.ParentTokenID = &parent.UUID
	}
	return t, nil
}

// Store inserts a new refresh token. The unique partial index on
// (parent_token_id) WHERE NOT revoked turns a concurrent double-rotation into
// common.ErrConflict.
func (r *PostgresRepository) Store(ctx context.Context, p StoreParams) (*models.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token, parent_token_id, session_id, instance_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + tokenColumns

	var parent uuid.NullUUID
	if p.ParentTokenID != nil {
		parent = uuid.NullUUID{UUID: *p.ParentTokenID, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, query, p.UserID, p.Token, parent, p.SessionID, p.InstanceID)
	t, err := scanToken(row)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, err
	}
	return t, nil
}

// Find returns the token row for the given secret, revoked or not.
func (r *PostgresRepository) Find(ctx context.Context, secret string) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = $1`
	return scanToken(r.db.QueryRowContext(ctx, query, secret))
}

// FindChild returns the successor of parentID, revoked or not. Replay
// detection needs to see a child even after the chain rotated past it.
func (r *PostgresRepository) FindChild(ctx context.Context, parentID uuid.UUID) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE parent_token_id = $1`
	return scanToken(r.db.QueryRowContext(ctx, query, parentID))
}

// Revoke marks the token with the given secret revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, secret string) error {
	query := `UPDATE refresh_tokens SET revoked = true, updated_at = now() WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, secret); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

// RevokeByID marks the token with the given ID revoked.
func (r *PostgresRepository) RevokeByID(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE refresh_tokens SET revoked = true, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

// RevokeChain revokes every ancestor and descendant of the token with the
// given ID, including the token itself.
func (r *PostgresRepository) RevokeChain(ctx context.Context, id uuid.UUID) error {
	query := `
		WITH RECURSIVE ancestors AS (
			SELECT id, parent_token_id FROM refresh_tokens WHERE id = $1
			UNION ALL
			SELECT rt.id, rt.parent_token_id
			FROM refresh_tokens rt
			JOIN ancestors a ON rt.id = a.parent_token_id
		), descendants AS (
			SELECT id FROM refresh_tokens WHERE id = $1
			UNION ALL
			SELECT rt.id
			FROM refresh_tokens rt
			JOIN descendants d ON rt.parent_token_id = d.id
		)
		UPDATE refresh_tokens SET revoked = true, updated_at = now()
		WHERE id IN (SELECT id FROM ancestors UNION SELECT id FROM descendants)`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

// RevokeAllForSession revokes every token linked to the session.
func (r *PostgresRepository) RevokeAllForSession(ctx context.Context, sessionID uuid.UUID) error {
	query := `UPDATE refresh_tokens SET revoked = true, updated_at = now() WHERE session_id = $1 AND NOT revoked`
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

// RevokeAllForUser revokes every token owned by the user.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE refresh_tokens SET revoked = true, updated_at = now() WHERE user_id = $1 AND NOT revoked`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}
