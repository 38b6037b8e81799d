package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"moto-sim/internal/config"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	engine      EngineInterface
	cfg         config.ServerConfig
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates the API server for engine.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
func NewServer(engine EngineInterface, cfg config.ServerConfig) *Server {
	s := &Server{
		engine:      engine,
		cfg:         cfg,
		wsHub:       NewWebSocketHub(),
		rateLimiter: NewIPRateLimiter(RateLimitConfigFrom(cfg)),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		RateLimiter: s.rateLimiter,
		ControlAuth: NewControlAuth(cfg.ControlToken),
	})

	// WebSocket routes need the hub instance, so they are not part of NewRouter
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Start starts the hub and the broadcast loop, then serves addr until
// Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.engine, s.cfg.BroadcastHz)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting requests, waits for in-flight ones and stops
// the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.Stop()
	return err
}

// Stop performs shutdown of background workers.
func (s *Server) Stop() {
	s.wsHub.Stop()
	s.rateLimiter.Stop()
}
