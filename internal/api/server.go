package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/graaaaa/mclog-companion/internal/app"
	"github.com/graaaaa/mclog-companion/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     chi.Router

	// Use case dependencies
	health  app.HealthUsecase
	players app.PlayerUsecase
	stats   app.StatsUsecase

	hub       *Hub
	heartbeat time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	corsOrigins     []string
	rateLimitPerMin int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPlayerUsecase enables the /player and /debug/player routes.
func WithPlayerUsecase(players app.PlayerUsecase) ServerOption {
	return func(s *Server) { s.players = players }
}

// WithStatsUsecase enables /api/v1/stats.
func WithStatsUsecase(stats app.StatsUsecase) ServerOption {
	return func(s *Server) { s.stats = stats }
}

// WithHub enables the /api/v1/stream SSE feed.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins. "*" allows any origin.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimit limits each client IP to n requests per minute. Zero disables.
func WithRateLimit(n int) ServerOption {
	return func(s *Server) { s.rateLimitPerMin = n }
}

// WithHeartbeat overrides the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	s := &Server{
		health:    health,
		heartbeat: heartbeatInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // SSE connections are long-lived
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// routes builds the chi router.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observeMiddleware)
	r.Use(securityHeadersMiddleware)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
			MaxAge:         300,
		}))
	}
	if s.rateLimitPerMin > 0 {
		r.Use(httprate.LimitByIP(s.rateLimitPerMin, time.Minute))
	}

	r.Get("/", s.handleBanner)
	r.Get("/api/v1/health", s.handleHealth)

	if s.players != nil {
		r.Get("/player/{username}", s.handlePlayer)
		r.Get("/player/{username}/chat", listHandler(s.players.Chat))
		r.Get("/player/{username}/punishments", listHandler(s.players.Punishments))
		r.Get("/player/{username}/reports_against", listHandler(s.players.ReportsAgainst))
		r.Get("/player/{username}/reports_by", listHandler(s.players.ReportsBy))
		r.Get("/player/{username}/kills", listHandler(s.players.Kills))
		r.Get("/debug/player/{username}", s.handleDebugPlayer)
	}
	if s.stats != nil {
		r.Get("/api/v1/stats", s.handleStats)
	}
	if s.hub != nil {
		r.Get("/api/v1/stream", s.handleStream)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("api listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
