package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/adminvault/internal/dbx"
	"github.com/dmitrijs2005/adminvault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/adminvault/internal/server/repositories/refreshtokens"
)

// RepositoryManager vends repositories bound to a connection or a
// transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
