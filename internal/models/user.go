// Package models defines the persistent entities of the authentication core:
// users, identities, sessions, refresh tokens, one-time tokens, password
// history, and service clients.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an end-user principal. Email is stored in canonical (lowercase)
// form and is unique across live users.
type User struct {
	ID                uuid.UUID
	Aud               string
	Role              string
	Email             string
	EncryptedPassword string
	SuperAdmin        bool
	ConfirmedAt       *time.Time
	BannedUntil       *time.Time
	AppMetadata       map[string]any
	UserMetadata      map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsConfirmed reports whether the user has a verified primary identity.
func (u *User) IsConfirmed() bool {
	return u.ConfirmedAt != nil
}

// IsBanned reports whether the user is currently banned.
func (u *User) IsBanned() bool {
	if u.BannedUntil == nil {
		return false
	}
	return time.Now().Before(*u.BannedUntil)
}

// PasswordHistoryEntry records a previously used password hash, kept only for
// reuse prevention.
type PasswordHistoryEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Hash      string
	CreatedAt time.Time
}
