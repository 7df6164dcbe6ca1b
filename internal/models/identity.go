package models

import (
	"time"

	"github.com/google/uuid"
)

// IdentityType classifies how an identity value is verified.
type IdentityType string

const (
	IdentityTypeEmail     IdentityType = "email"
	IdentityTypePhone     IdentityType = "phone"
	IdentityTypeFederated IdentityType = "federated"
)

// Identity is one verifiable identity owned by a user. (Type, Value) is
// unique across the store; email values are case-folded before storage.
type Identity struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Type         IdentityType
	Value        string
	Provider     string
	IdentityData map[string]any
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
