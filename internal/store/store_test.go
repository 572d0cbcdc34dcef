package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/newsdesk/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumnNames = []string{
	"id", "name", "email", "password_hash", "verified", "role",
	"avatar", "provider", "provider_account_id", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func accountRow(id int, role types.Role, avatar any) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(accountColumnNames).
		AddRow(id, "Ana", "ana@example.com", "hash", true, string(role), avatar, nil, nil, now, now)
}

func TestAccountRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(7).
		WillReturnRows(accountRow(7, types.RoleAuthor, "https://cdn/a.png"))

	account, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, account.ID)
	assert.Equal(t, types.RoleAuthor, account.Role)
	require.NotNil(t, account.Email)
	assert.Equal(t, "ana@example.com", *account.Email)
	require.NotNil(t, account.Avatar)
	assert.Nil(t, account.Provider)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(accountColumnNames))

	_, err := repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	email := "ana@example.com"
	_, err := repo.Create(context.Background(), types.Account{Name: "Ana", Email: &email})
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ChangeRoleCommits(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(accountRow(3, types.RoleUser, nil))
	mock.ExpectExec("INSERT INTO author_permissions").
		WithArgs(3, true, true, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $1")).
		WithArgs("author", sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(3).
		WillReturnRows(accountRow(3, types.RoleAuthor, nil))
	mock.ExpectCommit()

	account, err := repo.ChangeRole(context.Background(), 3, func(ctx context.Context, tx RoleTx, current types.Account) (types.Role, error) {
		assert.Equal(t, types.RoleUser, current.Role)
		return types.RoleAuthor, tx.InsertPermissions(ctx, types.AuthorPermissions{AccountID: 3, Create: true, Update: true, Delete: true})
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAuthor, account.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ChangeRoleRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)
	refused := errors.New("refused")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(1).
		WillReturnRows(accountRow(1, types.RoleAdmin, nil))
	mock.ExpectRollback()

	_, err := repo.ChangeRole(context.Background(), 1, func(ctx context.Context, tx RoleTx, current types.Account) (types.Role, error) {
		return "", refused
	})
	assert.ErrorIs(t, err, refused)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ChangeRoleDemotionClearsAvatar(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(4).
		WillReturnRows(accountRow(4, types.RoleAuthor, "https://cdn/a.png"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM author_permissions WHERE account_id = $1")).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET avatar = NULL WHERE id = $1")).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $1")).
		WithArgs("user", sqlmock.AnyArg(), 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(4).
		WillReturnRows(accountRow(4, types.RoleUser, nil))
	mock.ExpectCommit()

	account, err := repo.ChangeRole(context.Background(), 4, func(ctx context.Context, tx RoleTx, current types.Account) (types.Role, error) {
		if err := tx.DeletePermissions(ctx, current.ID); err != nil {
			return "", err
		}
		return types.RoleUser, tx.ClearAvatar(ctx, current.ID)
	})
	require.NoError(t, err)
	assert.Nil(t, account.Avatar)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Consume(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(7 * 24 * time.Hour)

	mock.ExpectQuery("DELETE FROM refresh_sessions").
		WithArgs("jti-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"jti", "account_id", "expires_at"}).AddRow("jti-1", 5, expires))
	mock.ExpectQuery("DELETE FROM refresh_sessions").
		WithArgs("jti-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"jti", "account_id", "expires_at"}))

	session, err := repo.Consume(context.Background(), "jti-1", now)
	require.NoError(t, err)
	assert.Equal(t, 5, session.AccountID)
	assert.True(t, expires.Equal(session.ExpiresAt))

	_, err = repo.Consume(context.Background(), "jti-1", now)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_ConsumeMismatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepository(db)

	mock.ExpectExec("DELETE FROM account_tokens").
		WithArgs(2, "reset_password", "stale").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Consume(context.Background(), 2, types.PurposeResetPassword, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_Exists(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT 1 FROM account_tokens").
		WithArgs(2, "verification", "tok").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM account_tokens").
		WithArgs(2, "verification", "other").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	ok, err := repo.Exists(context.Background(), 2, types.PurposeVerification, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(context.Background(), 2, types.PurposeVerification, "other")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionsRepository_UpdateMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPermissionsRepository(db)

	mock.ExpectExec("UPDATE author_permissions").
		WithArgs(false, true, true, 8).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), types.AuthorPermissions{AccountID: 8, Update: true, Delete: true})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_DeleteInUse(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCategoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM categories WHERE id = $1")).
		WithArgs(1).
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	err := repo.Delete(context.Background(), 1)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleRepository_ListFiltersByCategoryAndAuthor(t *testing.T) {
	db, mock := newMock(t)
	repo := NewArticleRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM articles WHERE category_id = $1 AND author_id = $2")).
		WithArgs(2, 5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE category_id = $1 AND author_id = $2 ORDER BY created_at DESC, id DESC OFFSET $3 LIMIT $4")).
		WithArgs(2, 5, 0, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "thumbnail", "category_id", "author_id", "created_at", "updated_at"}).
			AddRow(11, "Title", "Body", nil, 2, 5, now, now))

	articles, total, err := repo.List(context.Background(), types.ArticleFilter{CategoryID: 2, AuthorID: 5}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, articles, 1)
	assert.Nil(t, articles[0].Thumbnail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemory_ChangeRoleDiscardsStagedWritesOnError(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	avatar := "https://cdn/a.png"
	account, err := mem.Accounts().Create(ctx, types.Account{Name: "A", Role: types.RoleAuthor, Avatar: &avatar})
	require.NoError(t, err)

	_, err = mem.Accounts().ChangeRole(ctx, account.ID, func(ctx context.Context, tx RoleTx, current types.Account) (types.Role, error) {
		require.NoError(t, tx.ClearAvatar(ctx, current.ID))
		return "", errors.New("abort")
	})
	require.Error(t, err)

	stored, err := mem.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAuthor, stored.Role)
	require.NotNil(t, stored.Avatar)
}

func TestMemory_SessionConsumeHonoursExpiry(t *testing.T) {
	mem := NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, mem.Sessions().Create(ctx, types.RefreshSession{ID: "live", AccountID: 1, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, mem.Sessions().Create(ctx, types.RefreshSession{ID: "dead", AccountID: 1, ExpiresAt: now}))
	require.NoError(t, mem.Sessions().Create(ctx, types.RefreshSession{ID: "later", AccountID: 1, ExpiresAt: now.Add(time.Hour)}))

	_, err := mem.Sessions().Consume(ctx, "dead", now)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = mem.Sessions().Consume(ctx, "live", now)
	assert.NoError(t, err)
	// Expiry is judged by the caller's instant, not the store's clock.
	_, err = mem.Sessions().Consume(ctx, "later", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := mem.Sessions().DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
