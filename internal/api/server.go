// Package api exposes the HTTP surface: auth, agents, chat, sessions and
// datasets, plus health probes. Routing uses net/http method patterns; the
// middleware stack is hand-assembled, outermost first.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sunshineDad/poping/internal/agent"
	"github.com/sunshineDad/poping/internal/auth"
	"github.com/sunshineDad/poping/internal/catalog"
	"github.com/sunshineDad/poping/internal/chat"
	"github.com/sunshineDad/poping/internal/dataset"
	"github.com/sunshineDad/poping/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	ChatService  *chat.Service      // Required
	SessionStore *session.Store     // Required
	AgentStore   *agent.Store       // Required
	UserStore    *auth.Store        // Required
	Tokens       *auth.TokenManager // Required
	DatasetStore   *dataset.Store     // Optional: nil disables the dataset API
	DatasetStorage *dataset.Storage   // Required when DatasetStore is set
	Processor      *dataset.Processor // Required when DatasetStore is set
	Notifier       *dataset.Notifier  // Required when DatasetStore is set
	CatalogStore   *catalog.Store     // Optional: nil disables the provider-config API
	CatalogChecker *catalog.Checker   // Required when CatalogStore is set
	Pool         *pgxpool.Pool      // Optional: nil disables pool stats in /ready
	CORSOrigins  []string           // Allowed origins for CORS and WebSocket upgrades
	TrustProxy   bool               // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst    int                // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ChatService == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.SessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.AgentStore == nil {
		return nil, errors.New("agent store is required")
	}
	if cfg.UserStore == nil || cfg.Tokens == nil {
		return nil, errors.New("user store and token manager are required")
	}
	if cfg.DatasetStore != nil && (cfg.DatasetStorage == nil || cfg.Processor == nil || cfg.Notifier == nil) {
		return nil, errors.New("dataset store requires storage, processor and notifier")
	}
	if cfg.CatalogStore != nil && cfg.CatalogChecker == nil {
		return nil, errors.New("catalog store requires a checker")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &authHandler{users: cfg.UserStore, tokens: cfg.Tokens, logger: logger}
	gh := &agentHandler{store: cfg.AgentStore, logger: logger}
	ch := &chatHandler{service: cfg.ChatService, logger: logger}
	sh := &sessionHandler{service: cfg.ChatService, store: cfg.SessionStore, logger: logger}

	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/v1/auth/register", ah.register)
	mux.HandleFunc("POST /api/v1/auth/login", ah.login)
	mux.HandleFunc("POST /api/v1/auth/refresh", ah.refresh)
	mux.HandleFunc("GET /api/v1/auth/me", ah.me)

	// Agents
	mux.HandleFunc("POST /api/v1/agents", gh.create)
	mux.HandleFunc("GET /api/v1/agents", gh.list)
	mux.HandleFunc("GET /api/v1/agents/{id}", gh.get)
	mux.HandleFunc("PUT /api/v1/agents/{id}", gh.update)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", gh.delete)

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	// Sessions
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)
	mux.HandleFunc("PUT /api/v1/sessions/{id}", sh.update)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)

	// Datasets (optional — only registered if store is provided)
	if cfg.DatasetStore != nil {
		dh := newDatasetHandler(cfg.DatasetStore, cfg.DatasetStorage, cfg.Processor, cfg.Notifier, cfg.CORSOrigins, logger)
		mux.HandleFunc("POST /api/v1/datasets", dh.create)
		mux.HandleFunc("GET /api/v1/datasets", dh.list)
		mux.HandleFunc("GET /api/v1/datasets/{id}", dh.get)
		mux.HandleFunc("DELETE /api/v1/datasets/{id}", dh.delete)
		mux.HandleFunc("GET /api/v1/datasets/{id}/files", dh.files)
		mux.HandleFunc("GET /api/v1/datasets/{id}/progress", dh.progress)
	}

	// Provider catalog (optional — only registered if store is provided)
	if cfg.CatalogStore != nil {
		ph := &providerHandler{store: cfg.CatalogStore, checker: cfg.CatalogChecker, logger: logger}
		mux.HandleFunc("GET /api/v1/providers", ph.list)
		mux.HandleFunc("GET /api/v1/providers/configs", ph.listConfigs)
		mux.HandleFunc("POST /api/v1/providers/configs", ph.saveConfig)
		mux.HandleFunc("DELETE /api/v1/providers/configs/{id}", ph.deleteConfig)
		mux.HandleFunc("POST /api/v1/providers/configs/{id}/test", ph.testConfig)
		mux.HandleFunc("GET /api/v1/providers/configs/{id}/models", ph.models)
	}

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Auth → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.Tokens, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
