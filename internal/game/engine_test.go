package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/replay"
)

type fakeMetrics struct {
	mu      sync.Mutex
	frames  int
	steps   int
	applied map[event.Kind]int
	failed  int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{applied: make(map[event.Kind]int)}
}

func (m *fakeMetrics) EventApplied(k event.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[k]++
}

func (m *fakeMetrics) EventReverted(event.Kind) {}

func (m *fakeMetrics) EventFailed(event.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *fakeMetrics) ObserveFrame(fs FrameStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
	m.steps += fs.Steps
}

// TestNewEngine verifies engine creation with correct defaults
func TestNewEngine(t *testing.T) {
	tests := []struct {
		name      string
		frameRate int
		expected  int
	}{
		{"standard 50 FPS", 50, 50},
		{"high 120 FPS", 120, 120},
		{"unset falls back", 0, config.DefaultSimulation().FrameRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Simulation.FrameRate = tt.frameRate
			engine := NewEngine(cfg)
			if engine == nil {
				t.Fatal("NewEngine returned nil")
			}
			if engine.frameRate != tt.expected {
				t.Errorf("Expected frame rate %d, got %d", tt.expected, engine.frameRate)
			}
			if snap := engine.GetSnapshot(); snap.Sequence != 0 {
				t.Errorf("Expected an empty snapshot before Load, got sequence %d", snap.Sequence)
			}
		})
	}
}

// TestEngineStartStop verifies engine can start and stop without panics
func TestEngineStartStop(t *testing.T) {
	engine := NewEngine(config.Default())
	engine.Load(newLive(t, testLevel(t, "engine", ""), Options{}))

	// Start engine
	engine.Start()
	engine.Start()
	if !engine.Running() {
		t.Error("Expected the engine to be running")
	}
	time.Sleep(100 * time.Millisecond)

	// Stop engine
	engine.Stop()

	// Should not panic on double stop
	engine.Stop()

	if engine.Running() {
		t.Error("Expected the engine to be stopped")
	}
	if engine.FrameCount() == 0 {
		t.Error("Expected frames to have run")
	}
	if snap := engine.GetSnapshot(); !snap.Closed {
		t.Error("Expected the last snapshot to show the closed session")
	}
}

// TestEngineRestart tests that a stopped engine runs frames again after Start
func TestEngineRestart(t *testing.T) {
	engine := NewEngine(config.Default())
	lvl := testLevel(t, "engine", "")
	engine.Load(newLive(t, lvl, Options{}))

	engine.Start()
	time.Sleep(50 * time.Millisecond)
	engine.Stop()

	engine.Load(newLive(t, lvl, Options{}))
	before := engine.FrameCount()
	engine.Start()
	if !engine.Running() {
		t.Fatal("Expected the engine to be running after restart")
	}
	time.Sleep(150 * time.Millisecond)
	after := engine.FrameCount()
	engine.Stop()

	if after < before+2 {
		t.Errorf("Expected frames after restart, got %d then %d", before, after)
	}
	if engine.Running() {
		t.Error("Expected the engine to be stopped")
	}
}

// TestEngineAdvance tests manual frames and the snapshots they publish
func TestEngineAdvance(t *testing.T) {
	engine := NewEngine(config.Default())
	engine.Load(newLive(t, testLevel(t, "engine", ""), Options{}))
	before := engine.GetSnapshot().Sequence

	engine.Advance(0.02)
	engine.Advance(0.02)

	snap := engine.GetSnapshot()
	if snap.Sequence <= before {
		t.Errorf("Expected a newer snapshot than %d, got %d", before, snap.Sequence)
	}
	if snap.Frame != 2 {
		t.Errorf("Expected frame 2, got %d", snap.Frame)
	}
	if snap.Time < 0.039 || snap.Time > 0.041 {
		t.Errorf("Expected time 0.04, got %f", snap.Time)
	}
	if snap.Mode != ModeLive || snap.LevelID != "engine" {
		t.Errorf("Unexpected snapshot header %s/%s", snap.Mode, snap.LevelID)
	}
	if len(snap.Blocks) != 1 || !snap.Blocks[0].Moving {
		t.Errorf("Expected the moving lift, got %+v", snap.Blocks)
	}
	if engine.Level() == nil {
		t.Error("Expected the loaded level")
	}
}

// TestEngineDo tests commands issued through the engine
func TestEngineDo(t *testing.T) {
	engine := NewEngine(config.Default())

	err := engine.Do(func(s *Session) error { return nil })
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	if entries, n := engine.Events(0, 10); entries != nil || n != 0 {
		t.Errorf("Expected no events, got %d", n)
	}

	engine.Load(newLive(t, testLevel(t, "engine", ""), Options{}))
	err = engine.Do(func(s *Session) error { return s.Script().Message("go!") })
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	snap := engine.GetSnapshot()
	if len(snap.Messages) != 1 || snap.Messages[0] != "go!" {
		t.Errorf("Expected [go!], got %v", snap.Messages)
	}
	if snap.Events != 2 || snap.EventsApplied != 2 {
		t.Errorf("Expected 2 applied events, got %d/%d", snap.EventsApplied, snap.Events)
	}

	entries, n := engine.Events(1, 10)
	if n != 2 || len(entries) != 1 {
		t.Fatalf("Expected 1 of 2 entries, got %d of %d", len(entries), n)
	}
	if entries[0].Index != 1 || !entries[0].Applied {
		t.Errorf("Unexpected entry %+v", entries[0])
	}
}

// TestEngineMetrics tests that frames and events reach the metrics sink
func TestEngineMetrics(t *testing.T) {
	engine := NewEngine(config.Default())
	m := newFakeMetrics()
	engine.SetMetrics(m)
	engine.Load(newLive(t, testLevel(t, "engine", ""), Options{}))

	engine.Do(func(s *Session) error { return s.Script().HideArrow() })
	engine.Do(func(s *Session) error { return s.Script().MoveBlock("nope", 0, 1) })
	engine.Advance(0.02)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames != 1 || m.steps != 2 {
		t.Errorf("Expected 1 frame of 2 steps, got %d frames %d steps", m.frames, m.steps)
	}
	if m.applied[event.KindHideArrow] != 1 {
		t.Errorf("Expected HideArrow applied once, got %d", m.applied[event.KindHideArrow])
	}
	if m.failed != 1 {
		t.Errorf("Expected 1 failure, got %d", m.failed)
	}
}

// TestEngineRunOver tests that the finished recording is handed out once
func TestEngineRunOver(t *testing.T) {
	engine := NewEngine(config.Default())

	var got []*replay.Replay
	engine.OnRunOver(func(rp *replay.Replay) { got = append(got, rp) })
	engine.Load(newLive(t, testLevel(t, "session", winEntities), Options{Player: "ana"}))

	engine.Advance(0.05)
	engine.Advance(0.05)
	engine.Stop()

	if len(got) != 1 {
		t.Fatalf("Expected one recording, got %d", len(got))
	}
	if !got[0].Finished || got[0].Player != "ana" {
		t.Errorf("Expected ana's finished run, got finished=%v player=%q", got[0].Finished, got[0].Player)
	}
	if snap := engine.GetSnapshot(); !snap.Won {
		t.Error("Expected the snapshot to show the win")
	}
}

// TestEngineLoadReplacesSession tests that loading closes the previous session
func TestEngineLoadReplacesSession(t *testing.T) {
	engine := NewEngine(config.Default())

	var got int
	engine.OnRunOver(func(*replay.Replay) { got++ })

	first := newLive(t, testLevel(t, "engine", ""), Options{})
	engine.Load(first)
	engine.Load(newLive(t, testLevel(t, "engine", ""), Options{}))

	if !first.Closed() {
		t.Error("Expected the first session to be closed")
	}
	if got != 1 {
		t.Errorf("Expected the abandoned run to be handed out, got %d", got)
	}
	if snap := engine.GetSnapshot(); snap.SessionID == first.ID() {
		t.Error("Expected the snapshot to show the new session")
	}
}

// TestSnapshotPoolLimits tests that snapshots are capped by the resource limits
func TestSnapshotPoolLimits(t *testing.T) {
	s := newLive(t, testLevel(t, "engine", ""), Options{})
	for _, m := range []string{"a", "b", "c"} {
		if err := s.Script().Message(m); err != nil {
			t.Fatalf("Message failed: %v", err)
		}
	}

	pool := NewSnapshotPool(ResourceLimits{MaxEntities: 0, MaxZones: 0, MaxMessages: 2, MaxBlocks: 1})
	snap := pool.AcquireWrite()
	pool.fill(snap, s)
	pool.PublishWrite()

	got := pool.AcquireRead()
	if got.Sequence != 1 {
		t.Errorf("Expected sequence 1, got %d", got.Sequence)
	}
	if len(got.Messages) != 2 || got.Messages[1] != "b" {
		t.Errorf("Expected [a b], got %v", got.Messages)
	}
	if len(got.Zones) != 0 || len(got.Entities) != 0 {
		t.Errorf("Expected no zones or entities, got %d/%d", len(got.Zones), len(got.Entities))
	}
	if pool.GetLimits().MaxMessages != 2 {
		t.Errorf("Expected MaxMessages 2, got %d", pool.GetLimits().MaxMessages)
	}
}

// TestConcurrentAccess tests thread safety
func TestConcurrentAccess(t *testing.T) {
	engine := NewEngine(config.Default())
	engine.Load(newLive(t, testLevel(t, "engine", ""), Options{}))
	engine.Start()
	defer engine.Stop()

	done := make(chan bool)

	// Concurrent reads and writes
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				engine.Do(func(s *Session) error { return s.Script().CameraZoom(float64(id)) })
				engine.GetSnapshot()
				engine.Events(0, 5)
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}
