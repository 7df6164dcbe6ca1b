// Package users declares the repository contract for end-user principals.
package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/models"
)

// Repository defines CRUD over users keyed by stable ID and by canonical
// email. Callers are expected to case-fold emails before lookups.
type Repository interface {
	// Create inserts a new user and returns the stored row with its generated
	// ID and timestamps. A duplicate email fails with
	// common.ErrUserAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID returns the user with the given ID, or common.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail returns the user with the given canonical email, or
	// common.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ExistsByID reports whether a user with the given ID exists.
	ExistsByID(ctx context.Context, id uuid.UUID) (bool, error)

	// ExistsByEmail reports whether a user with the given canonical email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, encryptedPassword string) error

	// UpdateConfirmed sets the confirmation timestamp.
	UpdateConfirmed(ctx context.Context, id uuid.UUID, confirmedAt time.Time) error

	// UpdateBannedUntil sets or clears the ban expiry.
	UpdateBannedUntil(ctx context.Context, id uuid.UUID, bannedUntil *time.Time) error

	// UpdateEmail replaces the canonical email, e.g. after an email-change
	// token is consumed. A duplicate fails with common.ErrUserAlreadyExists.
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error

	// Delete removes the user; identities, sessions, refresh tokens,
	// one-time tokens, and password history cascade at storage level.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns one page of users ordered by creation time, plus the
	// total number of users. Pages are 1-based.
	List(ctx context.Context, page, perPage int) ([]*models.User, int, error)
}
