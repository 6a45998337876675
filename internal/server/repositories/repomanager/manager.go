package repomanager

import (
	"context"
	"database/sql"

	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/server/repositories/friendrequests"
	"github.com/matenet/backend/internal/server/repositories/interactions"
	"github.com/matenet/backend/internal/server/repositories/nonces"
	"github.com/matenet/backend/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code runs against a plain connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Interactions(db dbx.DBTX) interactions.Repository
	FriendRequests(db dbx.DBTX) friendrequests.Repository
	Nonces(db dbx.DBTX) nonces.Repository
}
