package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"moto-sim/internal/game"
	"moto-sim/internal/level"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without spinning up the frame loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// GetSnapshot returns the latest lock-free immutable snapshot
	GetSnapshot() *game.SessionSnapshot
	// Level returns the compiled level of the running session (may be nil)
	Level() *level.Compiled
	// Events returns a page of the event log and its length
	Events(from, limit int) ([]game.EventEntry, int)
	// Do runs a command on the session under the engine lock
	Do(fn func(s *game.Session) error) error
	// GetJournalStats returns event journal counters
	GetJournalStats() map[string]interface{}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: engine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation engine (required)
	Engine EngineInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses DefaultOrigins.
	CORSOrigins []string

	// ControlAuth guards the POST routes. Nil leaves them open.
	ControlAuth *ControlAuth

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine EngineInterface
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE apart from the rate limiter it may
// create: no network listeners are opened and no engine is started.
// This makes it safe to use in tests with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", ControlTokenHeader},
		MaxAge:         300,
	}))

	h := &routerHandlers{engine: cfg.Engine}

	r.Route("/api", func(r chi.Router) {
		// Reads
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/level", h.handleGetLevel)
		r.Get("/events", h.handleGetEvents)
		r.Get("/replay", h.handleGetReplay)
		r.Get("/replay/file", h.handleGetReplayFile)

		// Controls
		r.Group(func(r chi.Router) {
			if cfg.ControlAuth != nil {
				r.Use(cfg.ControlAuth.Middleware)
			}

			r.Post("/input", h.handleInput)
			r.Post("/restart", h.handleRestart)

			r.Post("/replay/speed", h.handleReplaySpeed)
			r.Post("/replay/pause", h.handleReplayPause)
			r.Post("/replay/resume", h.handleReplayResume)
			r.Post("/replay/seek", h.handleReplaySeek)
			r.Post("/replay/forward", h.handleReplayForward)
			r.Post("/replay/rewind", h.handleReplayRewind)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/state", http.StatusFound)
	})

	return r
}

// requestMetrics records latency and status per route pattern. Unmatched
// paths share one label so cardinality stays bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
