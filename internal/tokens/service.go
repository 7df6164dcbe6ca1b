package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/repositories/refreshtokens"
)

// refresh secrets are 32 random bytes, hex encoded.
const refreshSecretSize = 32

// Config carries the claim values and lifetimes stamped into every token.
type Config struct {
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Leeway          time.Duration
}

// Service mints and validates access tokens and issues access/refresh pairs.
type Service struct {
	cfg  Config
	keys *KeyRing
}

func NewService(cfg Config, keys *KeyRing) *Service {
	return &Service{cfg: cfg, keys: keys}
}

// sign produces a compact JWT carrying claims, signed with the ring's current
// key. The key ID travels in the "kid" header so validation can outlive a
// rotation.
func (s *Service) sign(claims *Claims) (string, error) {
	key := s.keys.Current()
	method, err := key.method()
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KID
	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// userClaims builds the claim set for user, anchored at iat with the given
// token ID. Anchoring to the refresh row makes re-minting deterministic:
// signing the same claims with the same key reproduces the same token.
func (s *Service) userClaims(user *models.User, session *models.Session, jti uuid.UUID, iat time.Time) *Claims {
	c := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(s.cfg.AccessTokenTTL)),
			ID:        jti.String(),
		},
		SessionID:    session.ID.String(),
		Email:        user.Email,
		AppMetadata:  user.AppMetadata,
		UserMetadata: user.UserMetadata,
	}
	if user.Role != "" {
		c.Roles = []string{user.Role}
	}
	return c
}

// IssueTokens mints a new refresh token, stores it through repo, and returns
// the pair. The access token is anchored to the stored row, so every caller
// holding the same refresh token observes the same access token. parentID is
// nil for the first token of a session.
func (s *Service) IssueTokens(ctx context.Context, repo refreshtokens.Repository, user *models.User, session *models.Session, parentID *uuid.UUID) (*AccessTokenResponse, error) {
	secret, err := common.MakeRandHexString(refreshSecretSize)
	if err != nil {
		return nil, fmt.Errorf("generating refresh secret: %w", err)
	}

	row, err := repo.Store(ctx, refreshtokens.StoreParams{
		UserID:        user.ID,
		Token:         secret,
		ParentTokenID: parentID,
		SessionID:     session.ID,
	})
	if err != nil {
		return nil, err
	}

	return s.ReissueTokens(user, session, row)
}

// ReissueTokens rebuilds the pair for an already stored refresh row. Because
// claims are anchored to the row, the access token comes out byte-identical
// every time the row is re-presented within its lifetime.
func (s *Service) ReissueTokens(user *models.User, session *models.Session, row *models.RefreshToken) (*AccessTokenResponse, error) {
	claims := s.userClaims(user, session, row.ID, row.CreatedAt)
	access, err := s.sign(claims)
	if err != nil {
		return nil, err
	}
	return &AccessTokenResponse{
		AccessToken:  access,
		RefreshToken: row.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(claims.ExpiresAt.Time).Seconds()),
	}, nil
}

// RefreshAccessToken mints a fresh access token for an existing refresh row
// without rotating it, with iat anchored to now. Used when rotation is
// disabled and the row has outlived its original access token.
func (s *Service) RefreshAccessToken(user *models.User, session *models.Session, row *models.RefreshToken) (*AccessTokenResponse, error) {
	claims := s.userClaims(user, session, row.ID, time.Now())
	access, err := s.sign(claims)
	if err != nil {
		return nil, err
	}
	return &AccessTokenResponse{
		AccessToken:  access,
		RefreshToken: row.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// MintAccessToken issues a standalone access token with no session or refresh
// token behind it. Used by the client-credentials grant.
func (s *Service) MintAccessToken(subject, role string) (*AccessTokenResponse, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	if role != "" {
		claims.Roles = []string{role}
	}
	access, err := s.sign(claims)
	if err != nil {
		return nil, err
	}
	return &AccessTokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// keyFunc resolves the verification key from the token's "kid" header.
func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: token has no kid header", common.ErrKeyNotFound)
	}
	key, ok := s.keys.Get(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrKeyNotFound, kid)
	}
	return key.Secret, nil
}

// ValidateAccessToken parses and verifies an access token: signature against
// the key ring, expiry within leeway, audience, and issuer.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrKeyNotFound):
			return nil, fmt.Errorf("%w: %v", common.ErrKeyNotFound, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, common.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, common.ErrUnexpectedAudience
		default:
			return nil, fmt.Errorf("%w: %v", common.ErrBadJWT, err)
		}
	}
	if !token.Valid {
		return nil, common.ErrBadJWT
	}
	return claims, nil
}

// ValidateRefreshToken looks up a refresh token and checks its lifetime.
// Revocation state is left to the caller, which needs the row either way to
// tell rotation from replay.
func (s *Service) ValidateRefreshToken(ctx context.Context, repo refreshtokens.Repository, secret string) (*models.RefreshToken, error) {
	row, err := repo.Find(ctx, secret)
	if err != nil {
		return nil, err
	}
	if s.cfg.RefreshTokenTTL > 0 && time.Since(row.CreatedAt) > s.cfg.RefreshTokenTTL {
		return nil, common.ErrTokenExpired
	}
	return row, nil
}

// InvalidateToken revokes the stored refresh token.
func (s *Service) InvalidateToken(ctx context.Context, repo refreshtokens.Repository, secret string) error {
	return repo.Revoke(ctx, secret)
}
