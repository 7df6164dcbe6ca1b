// Package users provides the PostgreSQL-backed user repository.
package users

import (
	"context"
	"database/sql"
	"encoding/json"
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

const userColumns = `id, aud, role, email, encrypted_password, super_admin, confirmed_at, banned_until, app_metadata, user_metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var confirmedAt, bannedUntil sql.NullTime
	var appMeta, userMeta []byte
	err := row.Scan(&u.ID, &u.Aud, &u.Role, &u.Email, &u.EncryptedPassword, &u.SuperAdmin,
		&confirmedAt, &bannedUntil, &appMeta, &userMeta, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if confirmedAt.Valid {
		u.ConfirmedAt = &confirmedAt.Time
	}
	if bannedUntil.Valid {
		u.BannedUntil = &bannedUntil.Time
	}
	if len(appMeta) > 0 {
		if err := json.Unmarshal(appMeta, &u.AppMetadata); err != nil {
			return nil, fmt.Errorf("%w: decoding app_metadata: %v", common.ErrDatabase, err)
		}
	}
	if len(userMeta) > 0 {
		if err := json.Unmarshal(userMeta, &u.UserMetadata); err != nil {
			return nil, fmt.Errorf("%w: decoding user_metadata: %v", common.ErrDatabase, err)
		}
	}
	return u, nil
}

func marshalMeta(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Create inserts a new user. Duplicate emails map to common.ErrUserAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	appMeta, err := marshalMeta(user.AppMetadata)
	if err != nil {
		return nil, fmt.Errorf("encoding app_metadata: %w", err)
	}
	userMeta, err := marshalMeta(user.UserMetadata)
	if err != nil {
		return nil, fmt.Errorf("encoding user_metadata: %w", err)
	}

	query := `
		INSERT INTO users (aud, role, email, encrypted_password, super_admin, confirmed_at, app_metadata, user_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	var confirmedAt sql.NullTime
	if user.ConfirmedAt != nil {
		confirmedAt = sql.NullTime{Time: *user.ConfirmedAt, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, query,
		user.Aud, user.Role, user.Email, user.EncryptedPassword, user.SuperAdmin, confirmedAt, appMeta, userMeta)

	created, err := scanUser(row)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrUserAlreadyExists
		}
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return exists, nil
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, encryptedPassword string) error {
	query := `UPDATE users SET encrypted_password = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, encryptedPassword)
}

func (r *PostgresRepository) UpdateConfirmed(ctx context.Context, id uuid.UUID, confirmedAt time.Time) error {
	query := `UPDATE users SET confirmed_at = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, confirmedAt)
}

func (r *PostgresRepository) UpdateBannedUntil(ctx context.Context, id uuid.UUID, bannedUntil *time.Time) error {
	query := `UPDATE users SET banned_until = $2, updated_at = now() WHERE id = $1`
	var v sql.NullTime
	if bannedUntil != nil {
		v = sql.NullTime{Time: *bannedUntil, Valid: true}
	}
	return r.exec(ctx, query, id, v)
}

func (r *PostgresRepository) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	query := `UPDATE users SET email = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, email); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrUserAlreadyExists
		}
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`
	return r.exec(ctx, query, id)
}

// List returns one 1-based page of users ordered by creation time, and the
// total user count.
func (r *PostgresRepository) List(ctx context.Context, page, perPage int) ([]*models.User, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return users, total, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}
