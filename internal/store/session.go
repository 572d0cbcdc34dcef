package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/newsdesk/apiserver/types"
)

// SessionRepository tracks the refresh token ids that may still be rotated.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.RefreshSession) error {
	const query = `INSERT INTO refresh_sessions (jti, account_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, session.ID, session.AccountID, session.ExpiresAt)
	return mapWriteError(err)
}

// Consume deletes the session and returns it if it is still live at now. A
// second call with the same id returns ErrNotFound, so only one of two racing
// refreshes can win.
func (r *SessionRepository) Consume(ctx context.Context, id string, now time.Time) (types.RefreshSession, error) {
	const query = `
		DELETE FROM refresh_sessions
		WHERE jti = $1 AND expires_at > $2
		RETURNING jti, account_id, expires_at`
	var session types.RefreshSession
	err := r.db.QueryRowContext(ctx, query, id, now).Scan(&session.ID, &session.AccountID, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RefreshSession{}, ErrNotFound
		}
		return types.RefreshSession{}, err
	}
	return session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM refresh_sessions WHERE jti = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID int) error {
	const query = `DELETE FROM refresh_sessions WHERE account_id = $1`
	_, err := r.db.ExecContext(ctx, query, accountID)
	return err
}

// DeleteExpired removes sessions whose refresh token can no longer verify.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_sessions WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
