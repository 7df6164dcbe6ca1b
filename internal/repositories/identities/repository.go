// Package identities declares the repository contract for the verifiable
// identities owned by users.
package identities

import (
	"context"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/models"
)

// Repository defines operations over identities. (type, value) is unique
// across the store.
type Repository interface {
	// Create inserts a new identity and links it to its user; it is the
	// store's link operation. A duplicate (type, value) fails with
	// common.ErrConflict, which makes linking idempotent for callers that
	// treat the conflict as already-linked.
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)

	// GetByID returns the identity with the given ID, or common.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)

	// GetByTypeAndValue returns the identity with the given type and
	// canonical value, or common.ErrNotFound.
	GetByTypeAndValue(ctx context.Context, typ models.IdentityType, value string) (*models.Identity, error)

	// Exists reports whether an identity with the given type and value exists.
	Exists(ctx context.Context, typ models.IdentityType, value string) (bool, error)

	// UpdateVerification flips the verified flag. Verifying a user's primary
	// email identity is the gate that lifts confirmed_at on the user; that
	// update is the caller's responsibility, inside the same transaction.
	UpdateVerification(ctx context.Context, id uuid.UUID, verified bool) error

	// Unlink removes an identity from its user.
	Unlink(ctx context.Context, id uuid.UUID) error

	// ListByUser returns all identities owned by the user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Identity, error)

	// RemoveUnverifiedByUser deletes the user's unverified identities.
	RemoveUnverifiedByUser(ctx context.Context, userID uuid.UUID) error
}
