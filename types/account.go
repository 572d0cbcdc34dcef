package types

import "time"

// Role is the authorization level of an account.
type Role string

const (
	RoleUser   Role = "user"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAuthor, RoleAdmin:
		return true
	}
	return false
}

// Account represents a person who can sign in to the platform.
// It contains identity, role, and audit metadata.
type Account struct {
	// ID is the unique identifier of the account.
	ID int `json:"id" db:"id"`

	// Name is the account's display name.
	Name string `json:"name" db:"name"`

	// Email is the login address. Accounts created through an OAuth
	// provider that withholds the address have no email.
	Email *string `json:"email,omitempty" db:"email"`

	// PasswordHash stores the bcrypt hash of the password. Empty for
	// accounts that only sign in through an OAuth provider.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Verified is set once the email verification link has been used.
	// OAuth accounts are verified on creation.
	Verified bool `json:"verified" db:"verified"`

	// Role indicates the account's authorization level.
	Role Role `json:"role" db:"role"`

	// Avatar is the media URL of the author's picture. Only authors carry one.
	Avatar *string `json:"avatar,omitempty" db:"avatar"`

	// Provider names the OAuth provider the account was created through.
	Provider *string `json:"-" db:"provider"`

	// ProviderAccountID is the subject identifier issued by Provider.
	ProviderAccountID *string `json:"-" db:"provider_account_id"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublicAccount is the projection of an account returned alongside tokens.
type PublicAccount struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Email  *string `json:"email,omitempty"`
	Role   Role    `json:"role"`
	Avatar *string `json:"avatar,omitempty"`
}

// Public strips everything but the identity fields clients may see.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:     a.ID,
		Name:   a.Name,
		Email:  a.Email,
		Role:   a.Role,
		Avatar: a.Avatar,
	}
}
