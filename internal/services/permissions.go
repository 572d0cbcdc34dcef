package services

import (
	"context"
	"errors"

	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/types"
)

// Action is one of the operations an author permission gates.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// PermissionsRepository defines persistence operations for author permissions.
type PermissionsRepository interface {
	Get(ctx context.Context, accountID int) (types.AuthorPermissions, error)
	Update(ctx context.Context, perms types.AuthorPermissions) error
}

// PermissionsRegistry owns the create/update/delete triple of authors.
// Grant and revoke only run inside a role change, so the row exists exactly
// while the account is an author.
type PermissionsRegistry struct {
	repo PermissionsRepository
}

func NewPermissionsRegistry(repo PermissionsRepository) *PermissionsRegistry {
	return &PermissionsRegistry{repo: repo}
}

// GrantOnPromotion gives a freshly promoted author every permission.
func (r *PermissionsRegistry) GrantOnPromotion(ctx context.Context, tx store.RoleTx, accountID int) error {
	return tx.InsertPermissions(ctx, types.AuthorPermissions{
		AccountID: accountID,
		Create:    true,
		Update:    true,
		Delete:    true,
	})
}

// RevokeOnDemotion drops the permission row and the author-only avatar.
func (r *PermissionsRegistry) RevokeOnDemotion(ctx context.Context, tx store.RoleTx, accountID int) error {
	if err := tx.DeletePermissions(ctx, accountID); err != nil {
		return err
	}
	return tx.ClearAvatar(ctx, accountID)
}

func (r *PermissionsRegistry) Get(ctx context.Context, accountID int) (types.AuthorPermissions, error) {
	perms, err := r.repo.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AuthorPermissions{}, ErrNotAuthor
		}
		return types.AuthorPermissions{}, err
	}
	return perms, nil
}

// Update applies a partial change. Fields left nil keep their value.
func (r *PermissionsRegistry) Update(ctx context.Context, accountID int, patch types.PermissionsPatch) (types.AuthorPermissions, error) {
	perms, err := r.Get(ctx, accountID)
	if err != nil {
		return types.AuthorPermissions{}, err
	}
	if patch.Empty() {
		return perms, nil
	}

	perms = patch.Apply(perms)
	if err := r.repo.Update(ctx, perms); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AuthorPermissions{}, ErrNotAuthor
		}
		return types.AuthorPermissions{}, err
	}
	return perms, nil
}

// Allows reports whether the author holding accountID may perform action.
// Accounts without a permission row are never allowed.
func (r *PermissionsRegistry) Allows(ctx context.Context, accountID int, action Action) (bool, error) {
	perms, err := r.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotAuthor) {
			return false, nil
		}
		return false, err
	}
	switch action {
	case ActionCreate:
		return perms.Create, nil
	case ActionUpdate:
		return perms.Update, nil
	case ActionDelete:
		return perms.Delete, nil
	}
	return false, nil
}
