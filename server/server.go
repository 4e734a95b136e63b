package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jonwraymond/scenariocache/auth"
	"github.com/jonwraymond/scenariocache/cache"
	"github.com/jonwraymond/scenariocache/health"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ChatService is implemented by *cache.Coordinator.
type ChatService interface {
	GetOrComputeChatContext(ctx context.Context, req cache.ContextRequest) (*cache.ChatContext, error)
	UpsertExplanation(ctx context.Context, req cache.ExplanationRequest) (*cache.ExplanationDocument, error)
}

// Config configures the HTTP handler.
type Config struct {
	Chat ChatService

	// Health is mounted when set.
	Health *health.Aggregator

	// Auth protects /api routes. Nil leaves them open.
	Auth auth.Authenticator

	// Metrics is served on /metrics when set.
	Metrics http.Handler

	// CORSOrigins lists allowed origins. Empty disables CORS handling.
	CORSOrigins []string

	Logger *zap.Logger
}

// Server holds the HTTP handler and its dependencies.
type Server struct {
	chat   ChatService
	logger *zap.Logger
	router chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{chat: cfg.Chat, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.DefaultAPIKeyHeader, RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if cfg.Health != nil {
		health.Mount(r, cfg.Health)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/chat", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(auth.Middleware(cfg.Auth, logger))
		}
		r.Post("/context", s.chatContext)
		r.Post("/explanation", s.storeExplanation)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer wraps the handler in an *http.Server with sane timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
