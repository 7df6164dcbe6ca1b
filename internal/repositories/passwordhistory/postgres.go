package passwordhistory

import (
	"context"
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

func (r *PostgresRepository) Add(ctx context.Context, userID uuid.UUID, hash string) error {
	query := `INSERT INTO password_history (user_id, hash) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, userID, hash); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PasswordHistoryEntry, error) {
	query := `
		SELECT id, user_id, hash, created_at FROM password_history
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var entries []*models.PasswordHistoryEntry
	for rows.Next() {
		e := &models.PasswordHistoryEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Hash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return entries, nil
}

func (r *PostgresRepository) Prune(ctx context.Context, userID uuid.UUID, keep int) error {
	query := `
		DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
		)`
	if _, err := r.db.ExecContext(ctx, query, userID, keep); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return nil
}
