// Package tokens mints, parses, and validates access tokens, and issues
// access/refresh token pairs. Access tokens are compact JWTs whose header
// carries the signing key ID; refresh tokens are opaque high-entropy strings
// whose state lives in the refresh-token store.
package tokens

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the canonical claim set carried by every issued access token.
// Registered claims use the standard short names; the rest are extensions.
type Claims struct {
	jwt.RegisteredClaims
	SessionID    string         `json:"sid,omitempty"`
	Roles        []string       `json:"roles,omitempty"`
	Email        string         `json:"email,omitempty"`
	FullName     string         `json:"name,omitempty"`
	GivenName    string         `json:"given_name,omitempty"`
	FamilyName   string         `json:"family_name,omitempty"`
	Nickname     string         `json:"nickname,omitempty"`
	Org          string         `json:"org,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	Ext          map[string]any `json:"ext,omitempty"`
}

// AccessTokenResponse is what every grant returns to the caller.
// RefreshToken is empty for the client-credentials grant.
type AccessTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
