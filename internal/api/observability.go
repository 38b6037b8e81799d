package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moto-sim/internal/event"
	"moto-sim/internal/game"
)

// Metrics with bounded cardinality (event kinds are a closed set, modes are
// live/replay)
var (
	// Engine metrics
	frameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_frame_duration_seconds",
		Help:    "Time spent in one engine frame",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05},
	}, []string{"mode"})

	stepsPerFrame = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_physics_steps_per_frame",
		Help:    "Fixed physics steps run per frame",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})

	loopResets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_catchup_resets",
		Help: "Times the current session dropped owed simulation time",
	})

	snapshotsRecorded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replay_snapshots_recorded",
		Help: "Replay snapshots recorded by the current live session",
	})

	levelErrors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "level_bsp_errors",
		Help: "Geometry compiler anomalies in the loaded level",
	})

	// Event model metrics
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_total",
		Help: "Event applications by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome: "applied", "reverted", "failed"

	// Journal metrics
	journalTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_journal_total",
		Help: "Events accepted by the journal",
	})

	journalDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_journal_dropped",
		Help: "Events dropped by the journal (rate limit or buffer full)",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter, origin check or auth",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// =============================================================================
// ENGINE METRICS SINK
// =============================================================================

// EngineMetrics feeds engine frames and event outcomes into Prometheus.
// Install it with Engine.SetMetrics.
type EngineMetrics struct{}

var _ game.Metrics = EngineMetrics{}

func (EngineMetrics) ObserveFrame(fs game.FrameStats) {
	frameDuration.WithLabelValues(string(fs.Mode)).Observe(fs.Duration.Seconds())
	stepsPerFrame.Observe(float64(fs.Steps))
	loopResets.Set(float64(fs.LoopResets))
	snapshotsRecorded.Set(float64(fs.Recorded))
}

func (EngineMetrics) EventApplied(k event.Kind) {
	eventsTotal.WithLabelValues(k.String(), "applied").Inc()
}

func (EngineMetrics) EventReverted(k event.Kind) {
	eventsTotal.WithLabelValues(k.String(), "reverted").Inc()
}

func (EngineMetrics) EventFailed(k event.Kind) {
	eventsTotal.WithLabelValues(k.String(), "failed").Inc()
}

// =============================================================================
// DEBUG SERVER
// =============================================================================

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// DebugHandler returns the debug mux: pprof, /metrics and /health.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		// Only allow external binding if explicitly enabled via env
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	handler := DebugHandler(cfg)

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RECORDING HELPERS
// =============================================================================

// UpdateLevelErrors publishes the loaded level's compiler error count
func UpdateLevelErrors(count int) {
	levelErrors.Set(float64(count))
}

// UpdateJournalStats mirrors the journal counters
func UpdateJournalStats(total, dropped uint64) {
	journalTotal.Set(float64(total))
	journalDropped.Set(float64(dropped))
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
