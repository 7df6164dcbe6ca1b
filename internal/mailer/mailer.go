// Package mailer delivers one-time-token secrets to users. The core never
// renders or sends mail itself; deployments plug in a real transport.
package mailer

import (
	"context"

	"github.com/rustproof/rustproof/internal/logging"
	"github.com/rustproof/rustproof/internal/models"
)

// Mailer sends the secret for a one-time token to the given address.
// Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, email string, tokenType models.TokenType, secret string) error
}

// LogMailer logs deliveries instead of sending them. The secret itself is
// never logged.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email string, tokenType models.TokenType, _ string) error {
	m.logger.Info(ctx, "mail delivery skipped", "email", email, "token_type", string(tokenType))
	return nil
}
