package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const clientColumns = `id, client_id, secret_hash, aud, role, created_at`

func scanClient(row *sql.Row) (*models.ServiceClient, error) {
	c := &models.ServiceClient{}
	err := row.Scan(&c.ID, &c.ClientID, &c.SecretHash, &c.Aud, &c.Role, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, client *models.ServiceClient) (*models.ServiceClient, error) {
	query := `
		INSERT INTO service_clients (client_id, secret_hash, aud, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + clientColumns

	row := r.db.QueryRowContext(ctx, query, client.ClientID, client.SecretHash, client.Aud, client.Role)
	return scanClient(row)
}

func (r *PostgresRepository) GetByClientID(ctx context.Context, clientID string) (*models.ServiceClient, error) {
	query := `SELECT ` + clientColumns + ` FROM service_clients WHERE client_id = $1`
	return scanClient(r.db.QueryRowContext(ctx, query, clientID))
}
