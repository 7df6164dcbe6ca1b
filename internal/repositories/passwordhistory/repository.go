// Package passwordhistory declares the repository contract for retired
// password hashes. Entries exist only to block password reuse.
package passwordhistory

import (
	"context"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/models"
)

type Repository interface {
	// Add records a retired hash for the user.
	Add(ctx context.Context, userID uuid.UUID, hash string) error

	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PasswordHistoryEntry, error)

	// Prune keeps the newest keep entries for the user and deletes the rest.
	Prune(ctx context.Context, userID uuid.UUID, keep int) error
}
