package clients

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func clientRows(t *testing.T, id uuid.UUID, clientID string) *sqlmock.Rows {
	t.Helper()
	return sqlmock.NewRows([]string{"id", "client_id", "secret_hash", "aud", "role", "created_at"}).
		AddRow(id, clientID, "hash", "api", "service", time.Now())
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+service_clients\b.*RETURNING`).
		WithArgs("worker-1", "hash", "api", "service").
		WillReturnRows(clientRows(t, id, "worker-1"))

	got, err := repo.Create(context.Background(), &models.ServiceClient{
		ClientID:   "worker-1",
		SecretHash: "hash",
		Aud:        "api",
		Role:       "service",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != id || got.ClientID != "worker-1" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestCreate_DuplicateClientID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+service_clients\b`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.ServiceClient{ClientID: "worker-1"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want common.ErrConflict, got %v", err)
	}
}

func TestGetByClientID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*\s+FROM\s+service_clients\s+WHERE\s+client_id\s*=\s*\$1\s*$`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByClientID(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}
