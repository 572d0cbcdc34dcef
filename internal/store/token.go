package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/newsdesk/apiserver/types"
)

// TokenRepository stores the outstanding verification and reset tokens.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Put stores token, replacing any earlier token with the same purpose.
func (r *TokenRepository) Put(ctx context.Context, token types.AccountToken) error {
	const query = `
		INSERT INTO account_tokens (account_id, purpose, token, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, purpose) DO UPDATE
		SET token = EXCLUDED.token,
			expires_at = EXCLUDED.expires_at`
	_, err := r.db.ExecContext(ctx, query, token.AccountID, token.Purpose, token.Token, token.ExpiresAt)
	return err
}

// Exists reports whether value is the outstanding token for the purpose.
func (r *TokenRepository) Exists(ctx context.Context, accountID int, purpose types.TokenPurpose, value string) (bool, error) {
	const query = `SELECT 1 FROM account_tokens WHERE account_id = $1 AND purpose = $2 AND token = $3`
	var one int
	err := r.db.QueryRowContext(ctx, query, accountID, purpose, value).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Consume removes the token if it matches value.
func (r *TokenRepository) Consume(ctx context.Context, accountID int, purpose types.TokenPurpose, value string) error {
	const query = `DELETE FROM account_tokens WHERE account_id = $1 AND purpose = $2 AND token = $3`
	result, err := r.db.ExecContext(ctx, query, accountID, purpose, value)
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
