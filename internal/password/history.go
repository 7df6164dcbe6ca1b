package password

import (
	"context"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/models"
)

// History is the subset of the password-history repository the reuse check
// needs.
type History interface {
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PasswordHistoryEntry, error)
}

// CheckHistory rejects a plaintext that verifies against any of the user's
// last depth stored hashes. A depth of zero disables the check.
func CheckHistory(ctx context.Context, repo History, userID uuid.UUID, plaintext string, depth int) error {
	if depth <= 0 {
		return nil
	}
	entries, err := repo.ListRecent(ctx, userID, depth)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ok, err := Verify(plaintext, e.Hash)
		if err != nil {
			// Unparseable historical hash; skip, it can no longer match.
			continue
		}
		if ok {
			return common.ErrSamePassword
		}
	}
	return nil
}
