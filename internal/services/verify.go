package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/repositories/sessions"
	"github.com/rustproof/rustproof/internal/tokens"
)

// VerifyRequest consumes a one-time token of the given type.
type VerifyRequest struct {
	Type      models.TokenType
	Secret    string
	UserAgent string
	IP        string
}

// Verify consumes a confirmation, recovery, magic-link, or email-change token
// and opens a session for its owner. The token is marked used inside the same
// transaction as the state change it permits, so at most one consumption
// succeeds.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (*tokens.AccessTokenResponse, error) {
	switch req.Type {
	case models.TokenTypeConfirmation, models.TokenTypeRecovery, models.TokenTypeMagicLink, models.TokenTypeEmailChange:
	default:
		return nil, common.ErrValidationFailed
	}

	token, err := s.repos.OneTimeTokens(s.db).Validate(ctx, req.Secret, req.Type)
	if err != nil {
		return nil, common.ErrNotFound
	}
	if token.UserID == nil {
		return nil, common.ErrValidationFailed
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, *token.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned() {
		return nil, common.ErrUserBanned
	}

	var pair *tokens.AccessTokenResponse
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.OneTimeTokens(tx).MarkUsed(ctx, token.ID); err != nil {
			return err
		}

		switch req.Type {
		case models.TokenTypeConfirmation:
			if err := s.confirmEmail(ctx, tx, user); err != nil {
				return err
			}
		case models.TokenTypeEmailChange:
			if err := s.applyEmailChange(ctx, tx, user, token); err != nil {
				return err
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

// confirmEmail verifies the user's email identity and lifts confirmed_at.
func (s *AuthService) confirmEmail(ctx context.Context, tx dbx.DBTX, user *models.User) error {
	identity, err := s.repos.Identities(tx).GetByTypeAndValue(ctx, models.IdentityTypeEmail, user.Email)
	if err == nil {
		if err := s.repos.Identities(tx).UpdateVerification(ctx, identity.ID, true); err != nil {
			return err
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	now := time.Now()
	if err := s.repos.Users(tx).UpdateConfirmed(ctx, user.ID, now); err != nil {
		return err
	}
	user.ConfirmedAt = &now
	return nil
}

// applyEmailChange swaps the user's canonical email for the one recorded in
// the token's metadata: the old email identity is unlinked and a verified
// identity for the new address takes its place.
func (s *AuthService) applyEmailChange(ctx context.Context, tx dbx.DBTX, user *models.User, token *models.OneTimeToken) error {
	newEmail, _ := token.Metadata["new_email"].(string)
	newEmail = canonicalEmail(newEmail)
	if newEmail == "" {
		return common.ErrValidationFailed
	}

	old, err := s.repos.Identities(tx).GetByTypeAndValue(ctx, models.IdentityTypeEmail, user.Email)
	if err == nil {
		if err := s.repos.Identities(tx).Unlink(ctx, old.ID); err != nil {
			return err
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	if _, err := s.repos.Identities(tx).Create(ctx, &models.Identity{
		UserID:   user.ID,
		Type:     models.IdentityTypeEmail,
		Value:    newEmail,
		Verified: true,
	}); err != nil {
		return err
	}

	if err := s.repos.Users(tx).UpdateEmail(ctx, user.ID, newEmail); err != nil {
		return err
	}
	user.Email = newEmail
	return nil
}

// issueUserToken stores a one-time token of the given type for the user and
// mails its secret. Used by the recovery, magic-link, and email-change flows.
func (s *AuthService) issueUserToken(ctx context.Context, user *models.User, typ models.TokenType, metadata map[string]any, mailTo string) error {
	secret, err := common.MakeRandHexString(secretSize)
	if err != nil {
		return fmt.Errorf("%w: generating secret: %v", common.ErrInternal, err)
	}
	if _, err := s.repos.OneTimeTokens(s.db).Store(ctx, &models.OneTimeToken{
		UserID:    &user.ID,
		TokenType: typ,
		Secret:    secret,
		Metadata:  metadata,
		ExpiresAt: time.Now().Add(s.cfg.OneTimeTokenValidityDuration),
	}); err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, mailTo, typ, secret); err != nil {
		s.logger.Error(ctx, "sending token mail", "error", err, "user_id", user.ID, "token_type", string(typ))
	}
	return nil
}

// Recover issues a password-recovery token. An unknown email is silently
// accepted so the endpoint cannot be used to enumerate accounts.
func (s *AuthService) Recover(ctx context.Context, email string) error {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, canonicalEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.issueUserToken(ctx, user, models.TokenTypeRecovery, nil, user.Email)
}

// MagicLink issues a passwordless sign-in token. Unknown emails are silently
// accepted, same as Recover.
func (s *AuthService) MagicLink(ctx context.Context, email string) error {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, canonicalEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.issueUserToken(ctx, user, models.TokenTypeMagicLink, nil, user.Email)
}

// RequestEmailChange issues an email-change token for the user. The new
// address travels in the token metadata and is applied on Verify. The secret
// is mailed to the new address, proving the user controls it.
func (s *AuthService) RequestEmailChange(ctx context.Context, userID uuid.UUID, newEmail string) error {
	newEmail = canonicalEmail(newEmail)
	if newEmail == "" {
		return common.ErrValidationFailed
	}
	taken, err := s.repos.Users(s.db).ExistsByEmail(ctx, newEmail)
	if err != nil {
		return err
	}
	if taken {
		return common.ErrUserAlreadyExists
	}
	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.issueUserToken(ctx, user, models.TokenTypeEmailChange, map[string]any{"new_email": newEmail}, newEmail)
}

// InviteUser mints an invite token for the given address and mails it. The
// token is not bound to an existing user; registration consumes it.
func (s *AuthService) InviteUser(ctx context.Context, email string) (string, error) {
	email = canonicalEmail(email)
	if email == "" {
		return "", common.ErrValidationFailed
	}
	taken, err := s.repos.Users(s.db).ExistsByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if taken {
		return "", common.ErrUserAlreadyExists
	}

	secret, err := common.MakeRandHexString(secretSize)
	if err != nil {
		return "", fmt.Errorf("%w: generating invite secret: %v", common.ErrInternal, err)
	}
	if _, err := s.repos.OneTimeTokens(s.db).Store(ctx, &models.OneTimeToken{
		TokenType: models.TokenTypeInvite,
		Secret:    secret,
		Metadata:  map[string]any{"email": email},
		ExpiresAt: time.Now().Add(s.cfg.OneTimeTokenValidityDuration),
	}); err != nil {
		return "", err
	}
	if err := s.mailer.Send(ctx, email, models.TokenTypeInvite, secret); err != nil {
		s.logger.Error(ctx, "sending invite mail", "error", err, "email", email)
	}
	return secret, nil
}
