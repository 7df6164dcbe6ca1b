// Package identities provides the PostgreSQL-backed identity repository.
package identities

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

const identityColumns = `id, user_id, type, value, provider, identity_data, verified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	i := &models.Identity{}
	var provider sql.NullString
	var data []byte
	err := row.Scan(&i.ID, &i.UserID, &i.Type, &i.Value, &provider, &data, &i.Verified, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	i.Provider = provider.String
	if len(data) > 0 {
		if err := json.Unmarshal(data, &i.IdentityData); err != nil {
			return nil, fmt.Errorf("%w: decoding identity_data: %v", common.ErrDatabase, err)
		}
	}
	return i, nil
}

// Create inserts a new identity. A duplicate (type, value) maps to
// common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	data := []byte("{}")
	if identity.IdentityData != nil {
		var err error
		data, err = json.Marshal(identity.IdentityData)
		if err != nil {
			return nil, fmt.Errorf("encoding identity_data: %w", err)
		}
	}

	query := `
		INSERT INTO identities (user_id, type, value, provider, identity_data, verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + identityColumns

	row := r.db.QueryRowContext(ctx, query,
		identity.UserID, identity.Type, identity.Value, identity.Provider, data, identity.Verified)

	created, err := scanIdentity(row)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return scanIdentity(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByTypeAndValue(ctx context.Context, typ models.IdentityType, value string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE type = $1 AND value = $2`
	return scanIdentity(r.db.QueryRowContext(ctx, query, typ, value))
}

func (r *PostgresRepository) Exists(ctx context.Context, typ models.IdentityType, value string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM identities WHERE type = $1 AND value = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, typ, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateVerification(ctx context.Context, id uuid.UUID, verified bool) error {
	query := `UPDATE identities SET verified = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, verified); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *PostgresRepository) Unlink(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM identities WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*models.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (r *PostgresRepository) RemoveUnverifiedByUser(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM identities WHERE user_id = $1 AND NOT verified`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}
