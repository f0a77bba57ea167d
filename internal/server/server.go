package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"dash/internal/auth"
	"dash/internal/feed"
	"dash/internal/messages"
	"dash/internal/store"
)

// SyncEngine is the slice of the sync engine the routes use. Narrowed to an
// interface so handler tests can stub cycles without real upstreams.
type SyncEngine interface {
	RefreshAll(ctx context.Context, userID, description string) (*store.Batch, error)
	RefreshOne(ctx context.Context, userID string, service store.Service, description string) (*store.Batch, error)
	SetupContent(ctx context.Context, userID string, service store.Service, kind string) ([]feed.SetupItem, error)
	SaveSources(ctx context.Context, userID string, service store.Service, kind string, sources []store.Source) error
	ToggleUpdates(ctx context.Context, userID string, service store.Service) (bool, error)
	Deauthorize(ctx context.Context, userID string, service store.Service) error
	ResetService(ctx context.Context, userID string, service store.Service) error
	Connect(ctx context.Context, userID string, service store.Service, conn store.Connection) (bool, error)
	DismissBatch(ctx context.Context, userID, batchID string) error
}

type Config struct {
	UseHTTPS bool
}

type Server struct {
	db      *store.DB
	logger  *log.Logger
	auth    *auth.Service
	engine  SyncEngine
	catalog *messages.Catalog
	csrf    *CSRF
	config  Config
}

func NewServer(db *store.DB, logger *log.Logger, engine SyncEngine, catalog *messages.Catalog, config Config) *Server {
	csrfConfig := DefaultCSRFConfig()
	csrfConfig.Secure = config.UseHTTPS

	return &Server{
		db:      db,
		logger:  logger,
		auth:    auth.NewService(db, logger),
		engine:  engine,
		catalog: catalog,
		csrf:    NewCSRF(csrfConfig),
		config:  config,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("DELETE /account", s.requireAuth(s.handleDeleteAccount))

	mux.HandleFunc("GET /dashboard", s.requireAuth(s.handleDashboard))
	mux.HandleFunc("DELETE /batches/{id}", s.requireAuth(s.handleDismissBatch))

	mux.HandleFunc("POST /refresh", s.requireAuth(s.handleRefreshAll))
	mux.HandleFunc("POST /refresh/{service}", s.requireAuth(s.handleRefreshOne))

	mux.HandleFunc("POST /services/{service}/connect", s.requireAuth(s.handleConnect))
	mux.HandleFunc("POST /services/{service}/toggle", s.requireAuth(s.handleToggleUpdates))
	mux.HandleFunc("POST /services/{service}/reset", s.requireAuth(s.handleResetService))
	mux.HandleFunc("DELETE /services/{service}", s.requireAuth(s.handleDeauthorize))
	mux.HandleFunc("GET /services/{service}/{kind}", s.requireAuth(s.handleSetupContent))
	mux.HandleFunc("PUT /services/{service}/{kind}", s.requireAuth(s.handleSaveSources))

	return s.logRequests(gzipMiddleware(s.csrf.Middleware(mux)))
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		session, err := s.auth.ValidateSession(r.Context(), cookie.Value)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyUserID, session.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Auth exposes the auth service for background maintenance tasks.
func (s *Server) Auth() *auth.Service {
	return s.auth
}

// parseService maps the path segment onto a known service.
func parseService(r *http.Request) (store.Service, bool) {
	switch svc := store.Service(r.PathValue("service")); svc {
	case store.Facebook, store.YouTube:
		return svc, true
	}
	return "", false
}

func (s *Server) Start(addr string) error {
	s.logger.Printf("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Routes())
}
