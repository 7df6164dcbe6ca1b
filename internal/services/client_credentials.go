package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/models"
	"github.com/rustproof/rustproof/internal/password"
	"github.com/rustproof/rustproof/internal/tokens"
)

// ClientCredentialsRequest carries the client-credentials grant's input.
type ClientCredentialsRequest struct {
	ClientID     string
	ClientSecret string
}

// ClientCredentialsGrant authenticates a service principal and mints a
// standalone access token. No session or refresh token is created: services
// re-authenticate with their credentials instead of rotating tokens.
func (s *AuthService) ClientCredentialsGrant(ctx context.Context, req ClientCredentialsRequest) (*tokens.AccessTokenResponse, error) {
	if !s.cfg.ClientCredentialsGrantEnabled {
		return nil, common.ErrGrantDisabled
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, common.ErrMissingCredentials
	}

	client, err := s.repos.Clients(s.db).GetByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.verifyOrSentinel(req.ClientSecret, "")
			return nil, common.ErrWrongCredentials
		}
		return nil, err
	}

	if !s.verifyOrSentinel(req.ClientSecret, client.SecretHash) {
		return nil, common.ErrWrongCredentials
	}

	return s.tokens.MintAccessToken(client.ID.String(), client.Role)
}

// RegisterClient stores a new service principal. The secret is hashed with
// the same argon2id parameters as user passwords.
func (s *AuthService) RegisterClient(ctx context.Context, clientID, clientSecret, aud, role string) (*models.ServiceClient, error) {
	if clientID == "" || clientSecret == "" {
		return nil, common.ErrMissingCredentials
	}
	hash, err := password.Hash(clientSecret, s.hashParams)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing client secret: %v", common.ErrInternal, err)
	}
	return s.repos.Clients(s.db).Create(ctx, &models.ServiceClient{
		ClientID:   clientID,
		SecretHash: hash,
		Aud:        aud,
		Role:       role,
	})
}
