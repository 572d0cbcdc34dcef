package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/newsdesk/apiserver/internal/oauth"
	"github.com/newsdesk/apiserver/internal/observability"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/internal/storage"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/internal/tokens"
	"github.com/newsdesk/apiserver/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "correct horse"
	testClient   = "https://app.example.com/"
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

func (r *recordingEvents) lastLink(t *testing.T, typ mq.EventType) *url.URL {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			u, err := url.Parse(r.events[i].Link)
			require.NoError(t, err)
			return u
		}
	}
	t.Fatalf("no %s event published", typ)
	return nil
}

type harness struct {
	clock    *fakeClock
	mem      *store.Memory
	issuer   *tokens.Service
	events   *recordingEvents
	objects  *storage.MemoryBackend
	accounts *services.AccountService
	cache    *cache.ResponseCache
	router   chi.Router
}

func newHarness(t *testing.T, providers ...oauth.Provider) *harness {
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
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	responses := cache.New(cache.Config{TTL: time.Minute, BaseSegments: 3})
	responses.SetClock(clock.Now)

	perms := services.NewPermissionsRegistry(mem.Permissions())
	accounts := services.NewAccountService(services.AccountDeps{
		Accounts:    mem.Accounts(),
		Sessions:    mem.Sessions(),
		Tokens:      mem.Tokens(),
		Permissions: perms,
		Issuer:      issuer,
		Events:      events,
		Media:       media,
		BaseURL:     "https://api.example.com",
	})
	categories := services.NewCategoryService(mem.Categories())
	articles := services.NewArticleService(mem.Articles(), mem.Categories(), perms, media)

	guard := NewGuard(issuer, accounts, metrics)
	cookies := NewSessionCookies(true, issuer.TTL(tokens.KindRefresh))

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(accounts, cookies, oauth.NewBridge(providers...), metrics, responses, testClient))
	})
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			UserRouter(r, NewUserHandler(accounts, perms, responses), guard)
		})
		r.Route("/categories", func(r chi.Router) {
			CategoryRouter(r, NewCategoryHandler(categories, responses), guard)
		})
		r.Route("/articles", func(r chi.Router) {
			ArticleRouter(r, NewArticleHandler(articles, responses), guard)
		})
	})

	return &harness{
		clock:    clock,
		mem:      mem,
		issuer:   issuer,
		events:   events,
		objects:  objects,
		accounts: accounts,
		cache:    responses,
		router:   router,
	}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) {
		r.AddCookie(c)
	}
}

func (h *harness) do(t *testing.T, method, target string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

type testEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// sessionCookie returns the non-empty session cookie set by rec, if any.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName && c.Value != "" {
			return c
		}
	}
	return nil
}

func sessionSetCookies(rec *httptest.ResponseRecorder) []string {
	var out []string
	for _, line := range rec.Header().Values("Set-Cookie") {
		if strings.HasPrefix(line, SessionCookieName+"=") {
			out = append(out, line)
		}
	}
	return out
}

func (h *harness) seedAccount(t *testing.T, email string, role types.Role, verified bool) types.Account {
	t.Helper()
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	initial := role
	if role == types.RoleAuthor {
		initial = types.RoleUser
	}
	account, err := h.mem.Accounts().Create(ctx, types.Account{
		Name:         "Test " + string(role),
		Email:        &email,
		PasswordHash: string(hash),
		Verified:     verified,
		Role:         initial,
	})
	require.NoError(t, err)

	if role == types.RoleAuthor {
		account, err = h.accounts.ChangeRole(ctx, account.ID, types.RoleAuthor)
		require.NoError(t, err)
	}
	return account
}

// login signs in with testPassword and returns the access token and the
// session cookie.
func (h *harness) login(t *testing.T, email string) (string, *http.Cookie) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session SessionResponse
	decodeData(t, rec, &session)
	require.NotEmpty(t, session.AccessToken)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return session.AccessToken, cookie
}
