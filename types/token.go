package types

import "time"

// TokenPurpose names a single-use account token.
type TokenPurpose string

const (
	PurposeVerification  TokenPurpose = "verification"
	PurposeResetPassword TokenPurpose = "reset_password"
)

// AccountToken is an issued single-use token waiting to be redeemed.
// At most one token per purpose exists for an account.
type AccountToken struct {
	AccountID int          `json:"account_id" db:"account_id"`
	Purpose   TokenPurpose `json:"purpose" db:"purpose"`
	Token     string       `json:"-" db:"token"`
	ExpiresAt time.Time    `json:"expires_at" db:"expires_at"`
}

// RefreshSession records the one refresh token id an account may rotate.
type RefreshSession struct {
	ID        string    `db:"jti"`
	AccountID int       `db:"account_id"`
	ExpiresAt time.Time `db:"expires_at"`
}
