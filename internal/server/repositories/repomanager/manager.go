package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/vehiclecheck/internal/dbx"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/repositories/resettokens"
)

// RepositoryManager vends repositories bound to a *sql.DB or a transaction,
// so services can run several of them under one dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
}
