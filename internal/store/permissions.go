package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/newsdesk/apiserver/types"
)

// PermissionsRepository handles persistence for author permissions.
type PermissionsRepository struct {
	db *sql.DB
}

func NewPermissionsRepository(db *sql.DB) *PermissionsRepository {
	return &PermissionsRepository{db: db}
}

func (r *PermissionsRepository) Get(ctx context.Context, accountID int) (types.AuthorPermissions, error) {
	const query = `
		SELECT account_id, can_create, can_update, can_delete
		FROM author_permissions
		WHERE account_id = $1`
	var perms types.AuthorPermissions
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&perms.AccountID,
		&perms.Create,
		&perms.Update,
		&perms.Delete,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AuthorPermissions{}, ErrNotFound
		}
		return types.AuthorPermissions{}, err
	}
	return perms, nil
}

func (r *PermissionsRepository) Update(ctx context.Context, perms types.AuthorPermissions) error {
	const query = `
		UPDATE author_permissions
		SET can_create = $1,
			can_update = $2,
			can_delete = $3
		WHERE account_id = $4`
	result, err := r.db.ExecContext(ctx, query, perms.Create, perms.Update, perms.Delete, perms.AccountID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func insertPermissions(ctx context.Context, q DBTX, perms types.AuthorPermissions) error {
	const query = `
		INSERT INTO author_permissions (account_id, can_create, can_update, can_delete)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE
		SET can_create = EXCLUDED.can_create,
			can_update = EXCLUDED.can_update,
			can_delete = EXCLUDED.can_delete`
	_, err := q.ExecContext(ctx, query, perms.AccountID, perms.Create, perms.Update, perms.Delete)
	return err
}
