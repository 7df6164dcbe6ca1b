// Package sessions provides the PostgreSQL-backed session store.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const sessionColumns = `id, user_id, factor_id, aal, not_after, refreshed_at, user_agent, ip, tag, created_at, updated_at`

func scanSession(row *sql.Row) (*models.Session, error) {
	s := &models.Session{}
	var factorID uuid.NullUUID
	var notAfter, refreshedAt sql.NullTime
	var userAgent, ip, tag sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &factorID, &s.AAL, &notAfter, &refreshedAt, &userAgent, &ip, &tag, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if factorID.Valid {
		s.FactorID = &factorID.UUID
	}
	if notAfter.Valid {
		s.NotAfter = &notAfter.Time
	}
	if refreshedAt.Valid {
		s.RefreshedAt = &refreshedAt.Time
	}
	s.UserAgent = userAgent.String
	s.IP = ip.String
	s.Tag = tag.String
	return s, nil
}

// Create inserts a session with generated ID and created_at = updated_at = now().
func (r *PostgresRepository) Create(ctx context.Context, p CreateParams) (*models.Session, error) {
	query := `
		INSERT INTO sessions (user_id, factor_id, aal, not_after, user_agent, ip, tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sessionColumns

	var factorID uuid.NullUUID
	if p.FactorID != nil {
		factorID = uuid.NullUUID{UUID: *p.FactorID, Valid: true}
	}
	var notAfter sql.NullTime
	if p.NotAfter != nil {
		notAfter = sql.NullTime{Time: *p.NotAfter, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, query, p.UserID, factorID, p.AAL, notAfter, p.UserAgent, p.IP, p.Tag)
	return scanSession(row)
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateRefreshedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE sessions SET refreshed_at = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sessions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM sessions WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}
