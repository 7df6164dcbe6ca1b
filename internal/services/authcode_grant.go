package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/repositories/sessions"
	"github.com/rustproof/rustproof/internal/tokens"
)

// AuthorizationCodeRequest carries the authorization-code grant's input.
type AuthorizationCodeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
	UserAgent    string
	IP           string
}

// IssueAuthorizationCode mints a single-use authorization code bound to the
// user, redirect URI, and PKCE challenge. Method is "s256" or "plain".
func (s *AuthService) IssueAuthorizationCode(ctx context.Context, userID uuid.UUID, redirectURI, codeChallenge, method string) (string, error) {
	if !s.cfg.AuthCodeGrantEnabled {
		return "", common.ErrGrantDisabled
	}
	method = strings.ToLower(method)
	if method != "s256" && method != "plain" {
		return "", common.ErrValidationFailed
	}

	secret, err := common.MakeRandHexString(secretSize)
	if err != nil {
		return "", fmt.Errorf("%w: generating authorization code: %v", common.ErrInternal, err)
	}

	_, err = s.repos.OneTimeTokens(s.db).Store(ctx, &models.OneTimeToken{
		UserID:    &userID,
		TokenType: models.TokenTypeAuthCode,
		Secret:    secret,
		Metadata: map[string]any{
			"redirect_uri":          redirectURI,
			"code_challenge":        codeChallenge,
			"code_challenge_method": method,
		},
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

// AuthorizationCodeGrant exchanges a single-use authorization code plus a
// PKCE verifier for a token pair. The code is consumed in the same
// transaction that opens the session, so it can only ever succeed once.
func (s *AuthService) AuthorizationCodeGrant(ctx context.Context, req AuthorizationCodeRequest) (*tokens.AccessTokenResponse, error) {
	if !s.cfg.AuthCodeGrantEnabled {
		return nil, common.ErrGrantDisabled
	}
	if req.Code == "" || req.CodeVerifier == "" {
		return nil, common.ErrMissingCredentials
	}

	code, err := s.repos.OneTimeTokens(s.db).Validate(ctx, req.Code, models.TokenTypeAuthCode)
	if err != nil {
		return nil, common.ErrInviteNotFound
	}
	if code.UserID == nil {
		return nil, common.ErrValidationFailed
	}

	redirectURI, _ := code.Metadata["redirect_uri"].(string)
	challenge, _ := code.Metadata["code_challenge"].(string)
	method, _ := code.Metadata["code_challenge_method"].(string)

	if redirectURI != req.RedirectURI {
		return nil, common.ErrValidationFailed
	}
	if !verifyPKCE(req.CodeVerifier, challenge, method) {
		return nil, common.ErrBadCodeVerifier
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, *code.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned() {
		return nil, common.ErrUserBanned
	}

	var pair *tokens.AccessTokenResponse
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.OneTimeTokens(tx).MarkUsed(ctx, code.ID); err != nil {
			// A concurrent exchange consumed the code first.
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrInviteNotFound
			}
			return err
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

// verifyPKCE checks a code verifier against the stored challenge. Both
// branches compare in constant time.
func verifyPKCE(verifier, challenge, method string) bool {
	switch method {
	case "s256":
		sum := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
	case "plain":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
