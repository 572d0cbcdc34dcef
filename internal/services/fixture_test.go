package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/newsdesk/apiserver/internal/storage"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/internal/tokens"
	"github.com/newsdesk/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []mq.AccountEvent
}

func (r *recordingEvents) PublishAccountEvent(ctx context.Context, ev mq.AccountEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// lastToken pulls the token out of the most recent link of type typ.
func (r *recordingEvents) lastToken(t *testing.T, typ mq.EventType) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type != typ {
			continue
		}
		u, err := url.Parse(r.events[i].Link)
		require.NoError(t, err)
		q := u.Query()
		if v := q.Get("verificationToken"); v != "" {
			return v
		}
		return q.Get("token")
	}
	t.Fatalf("no %s event published", typ)
	return ""
}

type fixture struct {
	mem        *store.Memory
	clock      *fakeClock
	issuer     *tokens.Service
	events     *recordingEvents
	objects    *storage.MemoryBackend
	media      *storage.Storage
	perms      *PermissionsRegistry
	accounts   *AccountService
	categories *CategoryService
	articles   *ArticleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	mem := store.NewMemory()
	mem.SetClock(clock.Now)

	issuer, err := tokens.NewService(tokens.Config{
		AccessSecret:       "access-secret",
		RefreshSecret:      "refresh-secret",
		VerificationSecret: "verification-secret",
		ResetSecret:        "reset-secret",
	}, tokens.WithClock(clock.Now))
	require.NoError(t, err)

	objects := storage.NewMemoryBackend("media")
	media := storage.NewStorage(objects, "https://cdn.example.com")
	events := &recordingEvents{}
	perms := NewPermissionsRegistry(mem.Permissions())

	return &fixture{
		mem:     mem,
		clock:   clock,
		issuer:  issuer,
		events:  events,
		objects: objects,
		media:   media,
		perms:   perms,
		accounts: NewAccountService(AccountDeps{
			Accounts:    mem.Accounts(),
			Sessions:    mem.Sessions(),
			Tokens:      mem.Tokens(),
			Permissions: perms,
			Issuer:      issuer,
			Events:      events,
			Media:       media,
			BaseURL:     "https://api.example.com/",
		}),
		categories: NewCategoryService(mem.Categories()),
		articles:   NewArticleService(mem.Articles(), mem.Categories(), perms, media),
	}
}

const testPassword = "correct horse"

// seedAccount stores an account directly. Authors get their permission row
// through a real promotion.
func (f *fixture) seedAccount(t *testing.T, email string, role types.Role, verified bool) types.Account {
	t.Helper()
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	initial := role
	if role == types.RoleAuthor {
		initial = types.RoleUser
	}
	account, err := f.mem.Accounts().Create(ctx, types.Account{
		Name:         "Test " + string(role),
		Email:        &email,
		PasswordHash: string(hash),
		Verified:     verified,
		Role:         initial,
	})
	require.NoError(t, err)

	if role == types.RoleAuthor {
		account, err = f.accounts.ChangeRole(ctx, account.ID, types.RoleAuthor)
		require.NoError(t, err)
	}
	return account
}
