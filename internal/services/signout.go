package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/password"
	"github.com/rustproof/rustproof/internal/tokens"
)

// ValidateToken verifies an access token and checks that the session behind
// it still exists and its owner is not banned. A standalone token (client
// credentials) carries no session and skips those checks.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*tokens.Claims, error) {
	claims, err := s.tokens.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.SessionID != "" {
		sessionID, err := uuid.Parse(claims.SessionID)
		if err != nil {
			return nil, common.ErrBadJWT
		}
		if _, err := s.repos.Sessions(s.db).Get(ctx, sessionID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.ErrSessionNotFound
			}
			return nil, err
		}

		userID, err := s.userID(claims.Subject)
		if err != nil {
			return nil, common.ErrBadJWT
		}
		user, err := s.repos.Users(s.db).GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user.IsBanned() {
			return nil, common.ErrUserBanned
		}
	}

	return claims, nil
}

// revokeSession marks the session's refresh tokens revoked, then deletes the
// session row. The order matters: tokens first, so no window exists in which
// the session is gone but its tokens still refresh.
func (s *AuthService) revokeSession(ctx context.Context, sessionID uuid.UUID) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.RefreshTokens(tx).RevokeAllForSession(ctx, sessionID); err != nil {
			return err
		}
		return s.repos.Sessions(tx).Delete(ctx, sessionID)
	})
}

// SignOut revokes the session owning the presented refresh token.
func (s *AuthService) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return common.ErrMissingCredentials
	}
	row, err := s.repos.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Already gone; signing out twice is not an error.
			return nil
		}
		return err
	}
	return s.revokeSession(ctx, row.SessionID)
}

// SignOutSession revokes the given session directly.
func (s *AuthService) SignOutSession(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.repos.Sessions(s.db).Get(ctx, sessionID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrSessionNotFound
		}
		return err
	}
	return s.revokeSession(ctx, sessionID)
}

// SignOutAll revokes every session and refresh token the user owns.
func (s *AuthService) SignOutAll(ctx context.Context, userID uuid.UUID) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.RefreshTokens(tx).RevokeAllForUser(ctx, userID); err != nil {
			return err
		}
		return s.repos.Sessions(tx).DeleteAllForUser(ctx, userID)
	})
}

// UpdatePassword sets a new password for the user: strength policy, history
// check against the configured depth, then hash swap, history append, and
// revocation of every session in one transaction. Outstanding access tokens
// stay valid until they expire; nothing refreshes past them.
func (s *AuthService) UpdatePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	if err := password.CheckStrength(newPassword, s.policy); err != nil {
		return err
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.EncryptedPassword != "" {
		same, err := password.Verify(newPassword, user.EncryptedPassword)
		if err == nil && same {
			return common.ErrSamePassword
		}
	}
	if s.cfg.PasswordHistoryDepth > 0 {
		if err := password.CheckHistory(ctx, s.repos.PasswordHistory(s.db), userID, newPassword, s.cfg.PasswordHistoryDepth); err != nil {
			return err
		}
	}

	hash, err := password.Hash(newPassword, s.hashParams)
	if err != nil {
		return fmt.Errorf("%w: hashing password: %v", common.ErrInternal, err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		if s.cfg.PasswordHistoryDepth > 0 {
			history := s.repos.PasswordHistory(tx)
			if err := history.Add(ctx, userID, hash); err != nil {
				return err
			}
			if err := history.Prune(ctx, userID, s.cfg.PasswordHistoryDepth); err != nil {
				return err
			}
		}

		// A changed password invalidates every session.
		if err := s.repos.RefreshTokens(tx).RevokeAllForUser(ctx, userID); err != nil {
			return err
		}
		return s.repos.Sessions(tx).DeleteAllForUser(ctx, userID)
	})
}
