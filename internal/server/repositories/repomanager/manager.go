package repomanager

import (
	"context"
	"database/sql"

	"github.com/devsoc/devsoc-backend/internal/dbx"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/payments"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/sagas"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/settings"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, so services can compose several repositories in one tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Payments(db dbx.DBTX) payments.Repository
	Settings(db dbx.DBTX) settings.Repository
	Sagas(db dbx.DBTX) sagas.Repository
}
