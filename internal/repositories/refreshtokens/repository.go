// Package refreshtokens declares the repository contract for the
// refresh-token rotation chains backing authenticated sessions.
package refreshtokens

import (
	"context"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/models"
)

// StoreParams describe a new refresh token. ParentTokenID links the token
// into its predecessor's chain and is nil for the first token of a session.
type StoreParams struct {
	UserID        uuid.UUID
	Token         string
	ParentTokenID *uuid.UUID
	SessionID     uuid.UUID
	InstanceID    uuid.UUID
}

// Repository defines operations over refresh-token chains. A chain is a path:
// the storage carries a unique partial index on (parent_token_id) WHERE NOT
// revoked, so at most one unrevoked successor can exist per token.
type Repository interface {
	// Store inserts a new refresh token and returns the stored row with its
	// generated ID and timestamps. A second unrevoked child for the same
	// parent fails with common.ErrConflict.
	Store(ctx context.Context, p StoreParams) (*models.RefreshToken, error)

	// Find looks up a token by its opaque secret, regardless of revocation
	// state, so callers can inspect the chain. Absent tokens return
	// common.ErrNotFound.
	Find(ctx context.Context, secret string) (*models.RefreshToken, error)

	// FindChild returns the successor of the given token regardless of its
	// revocation state, or common.ErrNotFound when the token is the tip of
	// its chain. Rotation gives a token at most one successor, ever.
	FindChild(ctx context.Context, parentID uuid.UUID) (*models.RefreshToken, error)

	// Revoke marks the token with the given secret revoked.
	Revoke(ctx context.Context, secret string) error

	// RevokeByID marks the token with the given ID revoked.
	RevokeByID(ctx context.Context, id uuid.UUID) error

	// RevokeChain revokes every token in the chain containing id, walking
	// both ancestors and descendants.
	RevokeChain(ctx context.Context, id uuid.UUID) error

	// RevokeAllForSession revokes every token linked to the session.
	RevokeAllForSession(ctx context.Context, sessionID uuid.UUID) error

	// RevokeAllForUser revokes every token owned by the user.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}
