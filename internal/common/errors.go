// Package common defines shared constants and sentinel errors used across
// the rustproof core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrDatabase = errors.New("database error")

	// Access-token validation errors.
	ErrBadJWT             = errors.New("invalid jwt")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnexpectedAudience = errors.New("unexpected audience")
	ErrKeyNotFound        = errors.New("signing key not found")

	// Credential and account-state errors.
	ErrWrongCredentials   = errors.New("wrong credentials")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserBanned         = errors.New("user banned")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrInsufficientAAL    = errors.New("insufficient authenticator assurance level")

	// Session and refresh-chain errors.
	ErrReauthenticationNeeded = errors.New("reauthentication needed")
	ErrSessionNotFound        = errors.New("session not found")

	// Signup and grant policy errors.
	ErrSignupDisabled = errors.New("signup disabled")
	ErrGrantDisabled  = errors.New("grant type disabled")

	// Boundary-raised semantic failures.
	ErrCaptchaFailed     = errors.New("captcha verification failed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// Password policy errors. Weak-password details are carried by
	// password.WeakPasswordError, which matches ErrWeakPassword via errors.Is.
	ErrWeakPassword = errors.New("weak password")
	ErrSamePassword = errors.New("password was used recently")

	// One-time token and authorization-code errors.
	ErrInviteNotFound   = errors.New("invite not found")
	ErrBadCodeVerifier  = errors.New("bad code verifier")
	ErrValidationFailed = errors.New("validation failed")

	// Generic internal failure.
	ErrInternal = errors.New("internal error")
)
