package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenType tags the flow a one-time token belongs to.
type TokenType string

const (
	TokenTypeInvite       TokenType = "invite"
	TokenTypeConfirmation TokenType = "confirmation"
	TokenTypeRecovery     TokenType = "recovery"
	TokenTypeMagicLink    TokenType = "magic_link"
	TokenTypeEmailChange  TokenType = "email_change"
	TokenTypeAuthCode     TokenType = "auth_code"
)

// OneTimeToken is a single-use token. Only non-expired, non-revoked, unused
// tokens validate; at most one validates successfully.
type OneTimeToken struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	TokenType TokenType
	Secret    string
	Metadata  map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	Revoked   bool
}

// Live reports whether the token can still be consumed.
func (t *OneTimeToken) Live() bool {
	return !t.Used && !t.Revoked && time.Now().Before(t.ExpiresAt)
}
