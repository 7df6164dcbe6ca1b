package services

import (
	"context"
	"errors"
	"time"

	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/tokens"
)

// RefreshTokenRequest carries the refresh grant's input.
type RefreshTokenRequest struct {
	RefreshToken string
	UserAgent    string
	IP           string
}

// RefreshTokenGrant exchanges a refresh token for a new token pair.
//
// The presented token falls into one of four states:
//   - live tip of its chain: rotate (store child, revoke parent) when
//     rotation is enabled, otherwise return the same refresh token with a
//     fresh access token;
//   - revoked with a live child inside the reuse interval: the caller raced a
//     concurrent refresh; re-issue the child's pair, which is anchored to the
//     child row and therefore byte-identical to what the winner received;
//   - revoked with a child that is itself revoked, or older than the reuse
//     interval: replay of a stolen token; the whole chain and its session are
//     revoked;
//   - revoked leaf, expired, or unknown: re-authentication required.
func (s *AuthService) RefreshTokenGrant(ctx context.Context, req RefreshTokenRequest) (*tokens.AccessTokenResponse, error) {
	if !s.cfg.RefreshGrantEnabled {
		return nil, common.ErrGrantDisabled
	}
	if req.RefreshToken == "" {
		return nil, common.ErrMissingCredentials
	}

	row, err := s.tokens.ValidateRefreshToken(ctx, s.repos.RefreshTokens(s.db), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrTokenExpired) {
			return nil, common.ErrReauthenticationNeeded
		}
		return nil, err
	}

	session, err := s.repos.Sessions(s.db).Get(ctx, row.SessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrReauthenticationNeeded
		}
		return nil, err
	}
	if session.Expired() {
		return nil, common.ErrReauthenticationNeeded
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, row.UserID)
	if err != nil {
		return nil, common.ErrReauthenticationNeeded
	}
	if user.IsBanned() {
		return nil, common.ErrUserBanned
	}

	if row.Revoked {
		return s.handleRevokedToken(ctx, user, session, row)
	}

	if !s.cfg.RefreshRotationEnabled {
		return s.tokens.RefreshAccessToken(user, session, row)
	}

	pair, err := s.rotate(ctx, user, session, row)
	if err == nil {
		return pair, nil
	}
	if errors.Is(err, common.ErrConflict) {
		// Lost a rotation race: another caller stored the child first. The
		// row is revoked by now, so resolve it like any revoked parent.
		fresh, ferr := s.repos.RefreshTokens(s.db).Find(ctx, req.RefreshToken)
		if ferr != nil {
			return nil, common.ErrReauthenticationNeeded
		}
		return s.handleRevokedToken(ctx, user, session, fresh)
	}
	return nil, err
}

// rotate stores the successor, revokes the parent, and stamps the session,
// all in one transaction.
func (s *AuthService) rotate(ctx context.Context, user *models.User, session *models.Session, row *models.RefreshToken) (*tokens.AccessTokenResponse, error) {
	var pair *tokens.AccessTokenResponse
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.RefreshTokens(tx)
		var err error
		pair, err = s.tokens.IssueTokens(ctx, repo, user, session, &row.ID)
		if err != nil {
			return err
		}
		if err := repo.RevokeByID(ctx, row.ID); err != nil {
			return err
		}
		return s.repos.Sessions(tx).UpdateRefreshedAt(ctx, session.ID, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// handleRevokedToken distinguishes a benign re-presentation inside the reuse
// interval from a genuine replay. The grace path applies only while the
// immediate child is still the live tip of the chain; a revoked child means
// the chain has rotated past the presented token at least twice, which no
// race can produce.
func (s *AuthService) handleRevokedToken(ctx context.Context, user *models.User, session *models.Session, row *models.RefreshToken) (*tokens.AccessTokenResponse, error) {
	child, err := s.repos.RefreshTokens(s.db).FindChild(ctx, row.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Revoked leaf: explicitly signed out or swept.
			return nil, common.ErrReauthenticationNeeded
		}
		return nil, err
	}

	if !child.Revoked && time.Since(child.CreatedAt) <= s.cfg.RefreshReuseInterval {
		return s.tokens.ReissueTokens(user, session, child)
	}

	// Replay outside the grace window: someone is holding a token that was
	// already rotated away. Burn the chain and the session.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.RefreshTokens(tx).RevokeChain(ctx, row.ID); err != nil {
			return err
		}
		return s.repos.Sessions(tx).Delete(ctx, session.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn(ctx, "refresh token replay detected", "user_id", user.ID, "session_id", session.ID, "token_id", row.ID)
	return nil, common.ErrReauthenticationNeeded
}
