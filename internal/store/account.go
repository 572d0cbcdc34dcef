package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/newsdesk/apiserver/types"
)

const accountColumns = `id, name, email, password_hash, verified, role, avatar, provider, provider_account_id, created_at, updated_at`

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (types.Account, error) {
	var account types.Account
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.Verified,
		&account.Role,
		&account.Avatar,
		&account.Provider,
		&account.ProviderAccountID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *AccountRepository) GetByProvider(ctx context.Context, provider, subject string) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE provider = $1 AND provider_account_id = $2`
	return scanAccount(r.db.QueryRowContext(ctx, query, provider, subject))
}

func (r *AccountRepository) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM users`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `SELECT ` + accountColumns + ` FROM users ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Role == "" {
		account.Role = types.RoleUser
	}

	const query = `
		INSERT INTO users (name, email, password_hash, verified, role, avatar, provider, provider_account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Verified,
		account.Role,
		account.Avatar,
		account.Provider,
		account.ProviderAccountID,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID); err != nil {
		return types.Account{}, mapWriteError(err)
	}
	return account, nil
}

// Update writes the mutable profile fields. Role changes go through ChangeRole.
func (r *AccountRepository) Update(ctx context.Context, account types.Account) (types.Account, error) {
	account.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			email = $2,
			password_hash = $3,
			verified = $4,
			avatar = $5,
			provider = $6,
			provider_account_id = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Verified,
		account.Avatar,
		account.Provider,
		account.ProviderAccountID,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return types.Account{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Account{}, err
	}
	if affected == 0 {
		return types.Account{}, ErrNotFound
	}
	return account, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
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

// ChangeRole locks the account row, lets fn decide the new role and stage
// dependent writes, then stores the role in the same transaction.
func (r *AccountRepository) ChangeRole(ctx context.Context, id int, fn RoleChangeFunc) (types.Account, error) {
	var updated types.Account
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const lockQuery = `SELECT ` + accountColumns + ` FROM users WHERE id = $1 FOR UPDATE`
		current, err := scanAccount(tx.QueryRowContext(ctx, lockQuery, id))
		if err != nil {
			return err
		}

		role, err := fn(ctx, sqlRoleTx{q: tx}, current)
		if err != nil {
			return err
		}

		if role != current.Role {
			const updateQuery = `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`
			if _, err := tx.ExecContext(ctx, updateQuery, role, time.Now(), id); err != nil {
				return err
			}
		}

		const reloadQuery = `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
		updated, err = scanAccount(tx.QueryRowContext(ctx, reloadQuery, id))
		return err
	})
	if err != nil {
		return types.Account{}, err
	}
	return updated, nil
}
