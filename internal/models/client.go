package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceClient is a service principal authenticated by the
// client-credentials grant. It is separate from end-user principals and
// never owns a session or refresh tokens.
type ServiceClient struct {
	ID         uuid.UUID
	ClientID   string
	SecretHash string
	Aud        string
	Role       string
	CreatedAt  time.Time
}
