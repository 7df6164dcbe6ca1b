// Package onetimetokens declares the repository contract for single-use
// tokens (invite, confirmation, recovery, magic-link, email-change, and
// authorization codes).
package onetimetokens

import (
	"context"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/models"
)

// Repository defines the one-time-token store. Consumers must call MarkUsed
// or Revoke inside the same transaction as the state change the token
// permits, so at most one consumption can ever succeed.
type Repository interface {
	// Store persists a new token with used=false, revoked=false and an
	// explicit expiry. When the token is bound to a user, any prior live
	// token of the same type for that user is revoked first: a user holds at
	// most one live token per type.
	Store(ctx context.Context, token *models.OneTimeToken) (*models.OneTimeToken, error)

	// Validate fetches the token by (secret, type) where revoked=false,
	// used=false and expires_at > now(). Anything else is common.ErrNotFound.
	Validate(ctx context.Context, secret string, typ models.TokenType) (*models.OneTimeToken, error)

	// Revoke marks the token with the given secret revoked.
	Revoke(ctx context.Context, secret string) error

	// MarkUsed consumes the token. It succeeds only while the row is still
	// live; an already used or revoked token returns common.ErrNotFound, so
	// of two racing consumers exactly one wins.
	MarkUsed(ctx context.Context, id uuid.UUID) error

	// DeleteExpired sweeps tokens whose expiry has passed and returns the
	// number of rows removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
