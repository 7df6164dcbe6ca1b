// Package services contains the server-side business logic: registration,
// the token grants (password, refresh, authorization-code, client
// credentials), one-time-token flows, and sign-out.
package services

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/rustproof/rustproof/internal/common"
	"github.com/rustproof/rustproof/internal/config"
	"github.com/rustproof/rustproof/internal/logging"
	"github.com/rustproof/rustproof/internal/mailer"
	"github.com/rustproof/rustproof/internal/password"
	"github.com/rustproof/rustproof/internal/repositories/repomanager"
	"github.com/rustproof/rustproof/internal/tokens"
)

// refresh and one-time-token secrets are 32 random bytes, hex encoded.
const secretSize = 32

// AuthService dispatches every authentication operation. Cross-store writes
// run inside dbx.WithTx with repositories re-bound to the transaction.
type AuthService struct {
	db         *sql.DB
	repos      repomanager.RepositoryManager
	cfg        *config.Config
	tokens     *tokens.Service
	mailer     mailer.Mailer
	logger     logging.Logger
	hashParams password.Params
	policy     password.Policy
	sentinel   string
}

// NewAuthService constructs an AuthService using repositories and server
// config. The sentinel hash is precomputed once so that a lookup miss costs
// one argon2 verification, the same as a wrong password.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, ts *tokens.Service, ml mailer.Mailer, logger logging.Logger) *AuthService {
	return &AuthService{
		db:         db,
		repos:      m,
		cfg:        cfg,
		tokens:     ts,
		mailer:     ml,
		logger:     logger,
		hashParams: password.DefaultParams,
		policy:     policyFromConfig(cfg),
		sentinel:   password.SentinelHash(password.DefaultParams),
	}
}

func policyFromConfig(cfg *config.Config) password.Policy {
	p := password.Policy{
		MinLength: cfg.PasswordMinLength,
		MaxLength: cfg.PasswordMaxLength,
	}
	for _, class := range cfg.PasswordRequiredClasses {
		p.RequiredClasses = append(p.RequiredClasses, password.ClassRequirement{
			Class: password.CharClass(class),
			Min:   1,
		})
	}
	return p
}

// canonicalEmail case-folds and trims an email address. All storage and
// lookups go through this form.
func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// verifyOrSentinel checks plaintext against encoded, or against the sentinel
// hash when the account was not found, so both paths do the same work.
func (s *AuthService) verifyOrSentinel(plaintext, encoded string) bool {
	if encoded == "" {
		encoded = s.sentinel
	}
	ok, err := password.Verify(plaintext, encoded)
	if err != nil {
		return false
	}
	return ok
}

func (s *AuthService) userID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.ErrValidationFailed
	}
	return id, nil
}
