package models

import (
	"time"

	"github.com/google/uuid"
)

// AAL is the authenticator-assurance level of a session.
type AAL string

const (
	AAL1 AAL = "aal1"
	AAL2 AAL = "aal2"
	AAL3 AAL = "aal3"
)

// Session is an authenticated-session record. Revoking a session revokes
// every refresh token linked to it.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	FactorID    *uuid.UUID
	AAL         AAL
	NotAfter    *time.Time
	RefreshedAt *time.Time
	UserAgent   string
	IP          string
	Tag         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports whether the session's hard expiry has passed.
func (s *Session) Expired() bool {
	if s.NotAfter == nil {
		return false
	}
	return time.Now().After(*s.NotAfter)
}
