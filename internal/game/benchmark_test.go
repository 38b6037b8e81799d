package game

import (
	"testing"

	"moto-sim/internal/config"
	"moto-sim/internal/physics"
)

// =============================================================================
// BENCHMARK SUITE: CRITICAL PATH PERFORMANCE TESTS
// Run with: go test -bench=. -benchmem ./internal/game/...
// =============================================================================

// -----------------------------------------------------------------------------
// SESSION FRAME BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkSessionFrame_OneStep(b *testing.B)   { benchmarkSessionFrame(b, 0.01) }
func BenchmarkSessionFrame_TwoSteps(b *testing.B)  { benchmarkSessionFrame(b, 0.02) }
func BenchmarkSessionFrame_CatchUp10(b *testing.B) { benchmarkSessionFrame(b, 0.1) }

func benchmarkSessionFrame(b *testing.B, dt float64) {
	s := newLive(b, testLevel(b, "bench", ""), Options{})
	s.SetInput(physics.Input{Drive: 0.3})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		s.Frame(dt)
	}
}

// -----------------------------------------------------------------------------
// REPLAY PLAYBACK BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkReplayFrame(b *testing.B) {
	lvl := testLevel(b, "bench", "")
	live := newLive(b, lvl, Options{})
	for i := 0; i < 500; i++ {
		live.Frame(0.02)
	}
	live.Close()

	s, err := NewReplaySession(lvl, live.Replay(), config.Default(), Options{})
	if err != nil {
		b.Fatalf("NewReplaySession failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if s.player.AtEnd() {
			s.SeekTo(0)
		}
		s.Frame(0.02)
	}
}

// -----------------------------------------------------------------------------
// SNAPSHOT GENERATION BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkProduceSnapshot(b *testing.B) {
	engine := NewEngine(config.Default())
	engine.Load(newLive(b, testLevel(b, "bench", winEntities), Options{}))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.ProduceSnapshot()
	}
}
