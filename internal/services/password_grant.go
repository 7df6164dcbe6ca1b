package services

import (
	"context"
	"errors"

	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/password"
	"github.com/rustproof/rustproof/internal/repositories/sessions"
	"github.com/rustproof/rustproof/internal/tokens"
)

// PasswordLoginRequest carries the password grant's credentials.
type PasswordLoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IP        string
}

// PasswordGrant authenticates with email and password and opens a fresh AAL1
// session. Any credential failure is uniformly ErrWrongCredentials; an absent
// account still pays for one hash verification so timing does not leak
// account existence.
func (s *AuthService) PasswordGrant(ctx context.Context, req PasswordLoginRequest) (*tokens.AccessTokenResponse, error) {
	if !s.cfg.PasswordGrantEnabled {
		return nil, common.ErrGrantDisabled
	}

	email := canonicalEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, common.ErrMissingCredentials
	}

	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.verifyOrSentinel(req.Password, "")
			return nil, common.ErrWrongCredentials
		}
		return nil, err
	}

	if !s.verifyOrSentinel(req.Password, user.EncryptedPassword) {
		return nil, common.ErrWrongCredentials
	}

	if user.IsBanned() {
		return nil, common.ErrUserBanned
	}
	if !user.IsConfirmed() && !s.cfg.SignupAutoconfirm {
		return nil, common.ErrEmailNotConfirmed
	}

	var pair *tokens.AccessTokenResponse
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Hash parameters changed since this password was stored: upgrade in
		// place while we still hold the plaintext.
		if password.NeedsRehash(user.EncryptedPassword, s.hashParams) {
			rehashed, err := password.Hash(req.Password, s.hashParams)
			if err == nil {
				if err := s.repos.Users(tx).UpdatePassword(ctx, user.ID, rehashed); err != nil {
					return err
				}
			}
		}

		session, err := s.repos.Sessions(tx).Create(ctx, sessions.CreateParams{
			UserID:    user.ID,
			AAL:       models.AAL1,
			UserAgent: req.UserAgent,
			IP:        req.IP,
		})
		if err != nil {
			return err
		}

		pair, err = s.tokens.IssueTokens(ctx, s.repos.RefreshTokens(tx), user, session, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}
