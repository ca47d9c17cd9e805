// router.go - HTTP diagnostics surface: health, per-pool stats, and a
// websocket feed of lifecycle events.
package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/id-pointer/id-pointer-pool-go/internal/config"
	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
)

// StatsSource is the subset of *pool.PoolMap the diagnostics router
// needs: a full snapshot for listing, nothing endpoint-specific, since
// spec.md's Endpoint is a plain struct with no canonical string parser
// beyond host:port (which pool.Endpoint.String() already produces).
type StatsSource interface {
	Snapshot() map[pool.Endpoint]pool.Stats
}

// Sweeper is the mutating counterpart to StatsSource: it lets an
// authorized caller force an idle-pool eviction pass instead of
// waiting for PoolMap's background sweeper.
type Sweeper interface {
	Sweep(idleThreshold time.Duration)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the chi-routed HTTP diagnostics surface.
type Server struct {
	cfg     config.DiagnosticsConfig
	source  StatsSource
	sweeper Sweeper
	hub     *Hub
	logger  *zap.SugaredLogger

	router     *chi.Mux
	httpServer *http.Server
}

// NewServer builds the diagnostics router. source is typically a
// *pool.PoolMap (which also satisfies Sweeper); hub broadcasts lifecycle
// events to /events subscribers.
func NewServer(cfg config.DiagnosticsConfig, source StatsSource, sweeper Sweeper, hub *Hub, logger *zap.SugaredLogger) *Server {
	s := &Server{cfg: cfg, source: source, sweeper: sweeper, hub: hub, logger: logger}
	s.router = chi.NewRouter()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	s.router.Use(c.Handler)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/pools", s.handleListPools)
	s.router.Get("/events", s.handleEvents)

	s.router.Group(func(r chi.Router) {
		if s.cfg.JWTRequired {
			r.Use(jwtAuthMiddleware(newTokenManager(s.cfg.JWTSecret)))
		}
		r.Get("/pools/{endpoint}", s.handleGetPool)
		r.Post("/sweep", s.handleSweep)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on cfg.Listen until the server is stopped.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("diagnostics server disabled")
		return nil
	}
	s.httpServer = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Infow("starting diagnostics server", "address", s.cfg.Listen)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the diagnostics server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"hub":    s.hub.Stats(),
	})
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	out := make(map[string]pool.Stats, len(snap))
	for ep, stats := range snap {
		out[ep.String()] = stats
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	want := chi.URLParam(r, "endpoint")
	for ep, stats := range s.source.Snapshot() {
		if ep.String() == want {
			respondJSON(w, http.StatusOK, stats)
			return
		}
	}
	http.Error(w, "pool not found", http.StatusNotFound)
}

// handleSweep triggers an out-of-band idle-pool eviction pass using the
// idle_threshold query parameter (a Go duration string, e.g. "5m"),
// falling back to zero (sweep everything currently idle) if absent.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	threshold := time.Duration(0)
	if raw := r.URL.Query().Get("idle_threshold"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid idle_threshold", http.StatusBadRequest)
			return
		}
		threshold = parsed
	}
	s.sweeper.Sweep(threshold)
	respondJSON(w, http.StatusOK, map[string]string{"status": "swept"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, s.hub.cfg.MessageBufferSize)}
	select {
	case s.hub.register <- c:
	default:
		conn.Close()
		return
	}

	unregisterOnce := func() {
		select {
		case s.hub.unregister <- c:
		default:
		}
	}
	defer func() {
		unregisterOnce()
		conn.Close()
	}()

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				unregisterOnce()
				return
			}
		}
	}()

	for e := range c.send {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}
