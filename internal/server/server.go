package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/newsdesk/apiserver/config"
	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/internal/db"
	"github.com/newsdesk/apiserver/internal/handlers"
	"github.com/newsdesk/apiserver/internal/logging"
	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/newsdesk/apiserver/internal/oauth"
	"github.com/newsdesk/apiserver/internal/observability"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/internal/storage"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/internal/tokens"
	"github.com/newsdesk/apiserver/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

const defaultPruneSchedule = "@hourly"

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	db         *sql.DB
	mq         *mq.MQ
	cron       *cron.Cron
	stop       context.CancelFunc
}

type sessionPruner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type repositories struct {
	accounts    services.AccountRepository
	sessions    services.SessionRepository
	tokens      services.TokenRepository
	permissions services.PermissionsRepository
	categories  services.CategoryRepository
	articles    services.ArticleRepository
	pruner      sessionPruner
}

func sqlRepositories(conn *sql.DB) repositories {
	sessions := store.NewSessionRepository(conn)
	return repositories{
		accounts:    store.NewAccountRepository(conn),
		sessions:    sessions,
		tokens:      store.NewTokenRepository(conn),
		permissions: store.NewPermissionsRepository(conn),
		categories:  store.NewCategoryRepository(conn),
		articles:    store.NewArticleRepository(conn),
		pruner:      sessions,
	}
}

func memoryRepositories(mem *store.Memory) repositories {
	sessions := mem.Sessions()
	return repositories{
		accounts:    mem.Accounts(),
		sessions:    sessions,
		tokens:      mem.Tokens(),
		permissions: mem.Permissions(),
		categories:  mem.Categories(),
		articles:    mem.Articles(),
		pruner:      sessions,
	}
}

// New wires every dependency named by cfg and builds the router.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel)

	s := &Server{logger: logger}
	var repos repositories
	if cfg.Database.InMemory {
		logger.Warn("using the in-memory store; data is lost on exit")
		repos = memoryRepositories(store.NewMemory())
	} else {
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.db = conn
		repos = sqlRepositories(conn)
	}

	if err := s.build(ctx, cfg, repos); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, cfg config.Config, repos repositories) error {
	issuer, err := tokens.NewService(tokens.Config{
		AccessSecret:       cfg.Auth.AccessSecret,
		RefreshSecret:      cfg.Auth.RefreshSecret,
		VerificationSecret: cfg.Auth.VerificationSecret,
		ResetSecret:        cfg.Auth.ResetSecret,
		AccessTTL:          cfg.Auth.AccessTTL,
		RefreshTTL:         cfg.Auth.RefreshTTL,
		VerificationTTL:    cfg.Auth.VerificationTTL,
		ResetTTL:           cfg.Auth.ResetTTL,
	})
	if err != nil {
		return err
	}

	media, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if err := media.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	broker, err := mq.NewFromConfig(ctx, cfg.MQ, s.logger)
	if err != nil {
		return err
	}
	s.mq = broker

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	responses := cache.New(cache.Config{TTL: cfg.Cache.TTL, BaseSegments: cfg.Cache.BaseSegments})
	metrics.ObserveCache(responses)

	permissions := services.NewPermissionsRegistry(repos.permissions)
	accounts := services.NewAccountService(services.AccountDeps{
		Accounts:    repos.accounts,
		Sessions:    repos.sessions,
		Tokens:      repos.tokens,
		Permissions: permissions,
		Issuer:      issuer,
		Events:      broker,
		Media:       media,
		BaseURL:     cfg.BaseURL,
	})
	categories := services.NewCategoryService(repos.categories)
	articles := services.NewArticleService(repos.articles, repos.categories, permissions, media)

	if cfg.Auth.AdminEmail != "" {
		admin, err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
		if admin.Role != types.RoleAdmin {
			s.logger.Warn("ADMIN_EMAIL belongs to a non-admin account", "account_id", admin.ID)
		}
	}

	schedule := cfg.Auth.SessionPruneSchedule
	if schedule == "" {
		schedule = defaultPruneSchedule
	}
	pruneAt, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("session prune schedule %q: %w", schedule, err)
	}

	bgCtx, stop := context.WithCancel(context.Background())
	s.stop = stop
	go responses.Run(bgCtx, cfg.Cache.JanitorInterval)

	s.cron = cron.New()
	s.cron.Schedule(pruneAt, cron.FuncJob(func() { s.pruneSessions(bgCtx, repos.pruner) }))
	s.cron.Start()

	guard := handlers.NewGuard(issuer, accounts, metrics)
	cookies := handlers.NewSessionCookies(cfg.Auth.CookieSecure, issuer.TTL(tokens.KindRefresh))
	authHandler := handlers.NewAuthHandler(accounts, cookies, oauthBridge(cfg.OAuth), metrics, responses, cfg.ClientURL)
	userHandler := handlers.NewUserHandler(accounts, permissions, responses)
	categoryHandler := handlers.NewCategoryHandler(categories, responses)
	articleHandler := handlers.NewArticleHandler(articles, responses)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(s.logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userHandler, guard)
		})
		r.Route("/categories", func(r chi.Router) {
			handlers.CategoryRouter(r, categoryHandler, guard)
		})
		r.Route("/articles", func(r chi.Router) {
			handlers.ArticleRouter(r, articleHandler, guard)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

func oauthBridge(cfg config.OAuthConfig) *oauth.Bridge {
	var providers []oauth.Provider
	if cfg.Google.Enabled() {
		providers = append(providers, oauth.NewGoogle(context.Background(), cfg.Google))
	}
	if cfg.Facebook.Enabled() {
		providers = append(providers, oauth.NewFacebook(cfg.Facebook))
	}
	return oauth.NewBridge(providers...)
}

func (s *Server) pruneSessions(ctx context.Context, pruner sessionPruner) {
	removed, err := pruner.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Warn("prune refresh sessions", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Debug("pruned refresh sessions", "removed", removed)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.close()
	return err
}

func (s *Server) close() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.stop != nil {
		s.stop()
	}
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.logger.Warn("close broker", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
