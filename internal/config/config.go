// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for simulation, replay and server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimulationConfig holds the fixed-step integrator settings.
type SimulationConfig struct {
	StepRate       int     // Physics steps per second (100 = one centisecond per step)
	MaxCatchUp     int     // Hard cap on step() calls per frame
	ResetThreshold float64 // Owed seconds above which the accumulator is dropped
	FrameRate      int     // Engine frames per second (ticker)
	MaxContacts    int     // Contact buffer size per collision query
}

// DefaultSimulation returns the default simulation configuration.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		StepRate:       100,
		MaxCatchUp:     10,
		ResetThreshold: 0.1,
		FrameRate:      50,
		MaxContacts:    100,
	}
}

// SimulationFromEnv returns simulation configuration with environment variable overrides.
func SimulationFromEnv() SimulationConfig {
	cfg := DefaultSimulation()

	if r := getEnvInt("SIM_STEP_RATE", 0); r > 0 {
		cfg.StepRate = r
	}
	if fps := getEnvInt("SIM_FRAME_RATE", 0); fps > 0 {
		cfg.FrameRate = fps
	}
	if c := getEnvInt("SIM_MAX_CONTACTS", 0); c > 0 {
		cfg.MaxContacts = c
	}

	return cfg
}

// StepSize returns the fixed timestep in seconds.
func (c SimulationConfig) StepSize() float64 {
	return 1.0 / float64(c.StepRate)
}

// FrameInterval returns the engine ticker interval.
func (c SimulationConfig) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// =============================================================================
// REPLAY CONFIGURATION
// =============================================================================

// ReplayConfig holds recording and playback settings.
type ReplayConfig struct {
	SampleRate    float64 // Snapshots per second
	SeekSnapshots int     // Snapshots jumped by fast-forward/rewind
	MinAutoSpeed  float64
	MaxAutoSpeed  float64
	AutoSpeedGain float64
	Dir           string // Where finished live sessions are written
}

// DefaultReplay returns the default replay configuration.
func DefaultReplay() ReplayConfig {
	return ReplayConfig{
		SampleRate:    25,
		SeekSnapshots: 25 * 5, // 5 seconds at the default rate
		MinAutoSpeed:  0.2,
		MaxAutoSpeed:  8.0,
		AutoSpeedGain: 0.05,
		Dir:           "replays",
	}
}

// ReplayFromEnv returns replay configuration with environment variable overrides.
func ReplayFromEnv() ReplayConfig {
	cfg := DefaultReplay()

	if r := getEnvFloat("REPLAY_SAMPLE_RATE", 0); r > 0 {
		cfg.SampleRate = r
	}
	if n := getEnvInt("REPLAY_SEEK_SNAPSHOTS", 0); n > 0 {
		cfg.SeekSnapshots = n
	}
	if d := os.Getenv("REPLAY_DIR"); d != "" {
		cfg.Dir = d
	}

	return cfg
}

// =============================================================================
// GEOMETRY & SPATIAL CONFIGURATION
// =============================================================================

// SpatialConfig holds geometry compiler and collision grid settings.
type SpatialConfig struct {
	GridCellSize float64 // Collision grid cell size in level units
	BSPMaxDepth  int     // Recursion guard for the convex decomposition
	CacheDir     string  // Compiled-level cache directory ("" disables the cache)
}

// DefaultSpatial returns the default spatial configuration.
func DefaultSpatial() SpatialConfig {
	return SpatialConfig{
		GridCellSize: 3.0,
		BSPMaxDepth:  256,
		CacheDir:     "cache/levels",
	}
}

// SpatialFromEnv returns spatial configuration with environment variable overrides.
func SpatialFromEnv() SpatialConfig {
	cfg := DefaultSpatial()

	if s := getEnvFloat("GRID_CELL_SIZE", 0); s > 0 {
		cfg.GridCellSize = s
	}
	if v, ok := os.LookupEnv("LEVEL_CACHE_DIR"); ok {
		cfg.CacheDir = v
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	BroadcastHz     int     // WebSocket state broadcasts per second
	RequestsPerSec  float64 // Per-IP API rate limit
	Burst           int
	DebugListenAddr string
	JournalPath     string // Event journal (JSONL), empty disables it
	ControlToken    string // Bearer token for POST control routes, empty leaves them open
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            3000,
		BroadcastHz:     10,
		RequestsPerSec:  10,
		Burst:           20,
		DebugListenAddr: "127.0.0.1:6060",
		JournalPath:     "",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if hz := getEnvInt("BROADCAST_HZ", 0); hz > 0 {
		cfg.BroadcastHz = hz
	}
	if rps := getEnvFloat("API_RATE_LIMIT", 0); rps > 0 {
		cfg.RequestsPerSec = rps
	}
	if j := os.Getenv("EVENT_JOURNAL_PATH"); j != "" {
		cfg.JournalPath = j
	}
	cfg.ControlToken = os.Getenv("CONTROL_TOKEN")

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Simulation SimulationConfig
	Replay     ReplayConfig
	Spatial    SpatialConfig
	Server     ServerConfig
	Physics    PhysicsConfig
}

// Default returns the complete configuration without environment overrides.
func Default() AppConfig {
	return AppConfig{
		Simulation: DefaultSimulation(),
		Replay:     DefaultReplay(),
		Spatial:    DefaultSpatial(),
		Server:     DefaultServer(),
		Physics:    DefaultPhysics(),
	}
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Simulation: SimulationFromEnv(),
		Replay:     ReplayFromEnv(),
		Spatial:    SpatialFromEnv(),
		Server:     ServerFromEnv(),
		Physics:    PhysicsFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
