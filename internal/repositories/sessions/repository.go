// Package sessions declares the repository contract for authenticated
// sessions.
package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/models"
)

// CreateParams describe a new session. ID and timestamps are generated by
// the store.
type CreateParams struct {
	UserID    uuid.UUID
	FactorID  *uuid.UUID
	AAL       models.AAL
	NotAfter  *time.Time
	UserAgent string
	IP        string
	Tag       string
}

// Repository defines the session store. Deleting a session is its revocation;
// callers revoke the session's refresh tokens first, in the same transaction,
// so no unrevoked token can outlive its session.
type Repository interface {
	// Create inserts a session and returns the stored row.
	Create(ctx context.Context, p CreateParams) (*models.Session, error)

	// Get returns the session with the given ID, or common.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// UpdateRefreshedAt stamps the last successful refresh.
	UpdateRefreshedAt(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete hard-deletes the session.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteAllForUser hard-deletes every session of the user.
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
}
