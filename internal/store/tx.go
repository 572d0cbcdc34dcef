package store

import (
	"context"
	"database/sql"

	"github.com/newsdesk/apiserver/types"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RoleTx is the set of writes allowed while a role change is in flight.
// Everything done through it commits or rolls back with the role itself.
type RoleTx interface {
	InsertPermissions(ctx context.Context, perms types.AuthorPermissions) error
	DeletePermissions(ctx context.Context, accountID int) error
	ClearAvatar(ctx context.Context, accountID int) error
}

// RoleChangeFunc receives the locked account and returns the role to store.
// Returning the current role leaves the row untouched.
type RoleChangeFunc func(ctx context.Context, tx RoleTx, current types.Account) (types.Role, error)

type sqlRoleTx struct {
	q DBTX
}

func (t sqlRoleTx) InsertPermissions(ctx context.Context, perms types.AuthorPermissions) error {
	return insertPermissions(ctx, t.q, perms)
}

func (t sqlRoleTx) DeletePermissions(ctx context.Context, accountID int) error {
	const query = `DELETE FROM author_permissions WHERE account_id = $1`
	_, err := t.q.ExecContext(ctx, query, accountID)
	return err
}

func (t sqlRoleTx) ClearAvatar(ctx context.Context, accountID int) error {
	const query = `UPDATE users SET avatar = NULL WHERE id = $1`
	_, err := t.q.ExecContext(ctx, query, accountID)
	return err
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
