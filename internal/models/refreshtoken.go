package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one link in a session's rotation chain. ParentTokenID is
// nil for the first token of a chain; a unique partial index on
// (parent_token_id) WHERE NOT revoked guarantees at most one unrevoked
// successor per token, so a chain is a path, not a tree.
type RefreshToken struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Token         string
	ParentTokenID *uuid.UUID
	SessionID     uuid.UUID
	InstanceID    uuid.UUID
	Revoked       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
