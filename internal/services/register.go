package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/config"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/password"
	"github.com/rustproof/rustproof/internal/repositories/sessions"
	"github.com/rustproof/rustproof/internal/tokens"
)

// RegisterRequest carries everything needed to create an account.
type RegisterRequest struct {
	Email        string
	Password     string
	InviteToken  string
	UserMetadata map[string]any
	UserAgent    string
	IP           string
}

// RegisterResult is the outcome of a registration. Tokens is nil until the
// email is confirmed; with autoconfirm enabled it is populated immediately.
type RegisterResult struct {
	User   *models.User
	Tokens *tokens.AccessTokenResponse
}

// Register creates a user with an email identity. The strength policy runs
// before any write. With signup_status=invite_only a live invite token is
// consumed in the same transaction that creates the user, so an invite admits
// exactly one account.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if s.cfg.SignupStatus == config.SignupClosed {
		return nil, common.ErrSignupDisabled
	}

	email := canonicalEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, common.ErrMissingCredentials
	}
	if err := password.CheckStrength(req.Password, s.policy); err != nil {
		return nil, err
	}

	var invite *models.OneTimeToken
	if s.cfg.SignupStatus == config.SignupInviteOnly {
		if req.InviteToken == "" {
			return nil, common.ErrInviteNotFound
		}
		found, err := s.repos.OneTimeTokens(s.db).Validate(ctx, req.InviteToken, models.TokenTypeInvite)
		if err != nil {
			return nil, common.ErrInviteNotFound
		}
		invite = found
	}

	hash, err := password.Hash(req.Password, s.hashParams)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing password: %v", common.ErrInternal, err)
	}

	result := &RegisterResult{}
	var confirmationSecret string

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Consume the invite before admitting anyone. MarkUsed matches only a
		// live row, so of two registrations racing on one invite exactly one
		// gets past this point.
		if invite != nil {
			if err := s.repos.OneTimeTokens(tx).MarkUsed(ctx, invite.ID); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.ErrInviteNotFound
				}
				return err
			}
		}

		user, err := s.repos.Users(tx).Create(ctx, &models.User{
			Aud:               s.cfg.JWTAudience,
			Role:              s.cfg.DefaultRole,
			Email:             email,
			EncryptedPassword: hash,
			UserMetadata:      req.UserMetadata,
		})
		if err != nil {
			return err
		}

		if _, err := s.repos.Identities(tx).Create(ctx, &models.Identity{
			UserID:   user.ID,
			Type:     models.IdentityTypeEmail,
			Value:    email,
			Verified: s.cfg.SignupAutoconfirm,
		}); err != nil {
			return err
		}

		if s.cfg.PasswordHistoryDepth > 0 {
			if err := s.repos.PasswordHistory(tx).Add(ctx, user.ID, hash); err != nil {
				return err
			}
		}

		if s.cfg.SignupAutoconfirm {
			now := time.Now()
			if err := s.repos.Users(tx).UpdateConfirmed(ctx, user.ID, now); err != nil {
				return err
			}
			user.ConfirmedAt = &now

			session, err := s.repos.Sessions(tx).Create(ctx, sessions.CreateParams{
				UserID:    user.ID,
				AAL:       models.AAL1,
				UserAgent: req.UserAgent,
				IP:        req.IP,
			})
			if err != nil {
				return err
			}
			pair, err := s.tokens.IssueTokens(ctx, s.repos.RefreshTokens(tx), user, session, nil)
			if err != nil {
				return err
			}
			result.Tokens = pair
		} else {
			secret, err := common.MakeRandHexString(secretSize)
			if err != nil {
				return fmt.Errorf("%w: generating confirmation secret: %v", common.ErrInternal, err)
			}
			confirmationSecret = secret
			if _, err := s.repos.OneTimeTokens(tx).Store(ctx, &models.OneTimeToken{
				UserID:    &user.ID,
				TokenType: models.TokenTypeConfirmation,
				Secret:    secret,
				ExpiresAt: time.Now().Add(s.cfg.OneTimeTokenValidityDuration),
			}); err != nil {
				return err
			}
		}

		result.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Mail goes out only after the transaction committed; a failed delivery
	// never loses the account.
	if confirmationSecret != "" {
		if err := s.mailer.Send(ctx, email, models.TokenTypeConfirmation, confirmationSecret); err != nil {
			s.logger.Error(ctx, "sending confirmation mail", "error", err, "user_id", result.User.ID)
		}
	}

	return result, nil
}
