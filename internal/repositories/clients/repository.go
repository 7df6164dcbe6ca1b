// Package clients declares the repository contract for service principals
// used by the client-credentials grant.
package clients

import (
	"context"

	"github.com/rustproof/rustproof/internal/models"
)

type Repository interface {
	// Create inserts a client. Returns common.ErrConflict when the
	// client_id is already registered.
	Create(ctx context.Context, client *models.ServiceClient) (*models.ServiceClient, error)

	// GetByClientID returns the client with the given public identifier,
	// or common.ErrNotFound.
	GetByClientID(ctx context.Context, clientID string) (*models.ServiceClient, error)
}
