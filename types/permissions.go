package types

// AuthorPermissions is the capability triple attached to an author account.
// A row exists exactly while the account holds the author role.
type AuthorPermissions struct {
	AccountID int  `json:"account_id" db:"account_id"`
	Create    bool `json:"create" db:"can_create"`
	Update    bool `json:"update" db:"can_update"`
	Delete    bool `json:"delete" db:"can_delete"`
}

// PermissionsPatch carries a partial update. Nil fields are left unchanged.
type PermissionsPatch struct {
	Create *bool `json:"create"`
	Update *bool `json:"update"`
	Delete *bool `json:"delete"`
}

// Empty reports whether the patch changes nothing.
func (p PermissionsPatch) Empty() bool {
	return p.Create == nil && p.Update == nil && p.Delete == nil
}

// Apply returns perms with the patch fields written over it.
func (p PermissionsPatch) Apply(perms AuthorPermissions) AuthorPermissions {
	if p.Create != nil {
		perms.Create = *p.Create
	}
	if p.Update != nil {
		perms.Update = *p.Update
	}
	if p.Delete != nil {
		perms.Delete = *p.Delete
	}
	return perms
}
