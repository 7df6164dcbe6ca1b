package repomanager

import (
	"context"
	"database/sql"

	"github.com/rustproof/rustproof/internal/dbx"
	"github.com/rustproof/rustproof/internal/repositories/clients"
	"github.com/rustproof/rustproof/internal/repositories/identities"
	"github.com/rustproof/rustproof/internal/repositories/onetimetokens"
	"github.com/rustproof/rustproof/internal/repositories/passwordhistory"
	"github.com/rustproof/rustproof/internal/repositories/refreshtokens"
	"github.com/rustproof/rustproof/internal/repositories/sessions"
	"github.com/rustproof/rustproof/internal/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Identities(db dbx.DBTX) identities.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	OneTimeTokens(db dbx.DBTX) onetimetokens.Repository
	PasswordHistory(db dbx.DBTX) passwordhistory.Repository
	Clients(db dbx.DBTX) clients.Repository
}
