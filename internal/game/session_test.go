package game

import (
	"errors"
	"math"
	"testing"

	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/level"
	"moto-sim/internal/physics"
	"moto-sim/internal/replay"
	"moto-sim/internal/scene"
)

// Entities placed around a bike resting on the start at (0, 0): the wheels
// sit at (±0.7, 0.35) and the frame at (0, 0.75).
const (
	winEntities = `,
	    {"id": "end", "kind": "EndOfLevel", "position": [-0.7, 0.6], "radius": 0.3},
	    {"id": "s1", "kind": "Strawberry", "position": [0.7, 0.6], "radius": 0.3}`
	wreckerEntities = `,
	    {"id": "w1", "kind": "Wrecker", "position": [0.7, 0.6], "radius": 0.3}`
	checkpointEntities = `,
	    {"id": "cp", "kind": "Checkpoint", "position": [0, 0.9], "radius": 0.2}`
)

func testLevel(t testing.TB, id, entities string) *level.Compiled {
	t.Helper()
	src, err := level.Parse([]byte(`{
	  "id": "` + id + `",
	  "limits": {"min": [-60, -10], "max": [60, 20]},
	  "blocks": [
	    {"id": "ground", "vertices": [[-50, -5], [50, -5], [50, 0], [-50, 0]]},
	    {"id": "lift", "position": [30, 5], "vertices": [[0, 0], [4, 0], [4, 0.5], [0, 0.5]], "dynamic": true}
	  ],
	  "entities": [{"id": "start", "kind": "PlayerStart", "position": [0, 0]}` + entities + `],
	  "zones": [{"id": "z1", "boxes": [{"min": [-2, 0], "max": [2, 3]}]}],
	  "motions": [{"block": "lift", "kind": "translation", "offset": [0, 3], "period": 4}]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return level.Compile(src, level.CompileOptions{})
}

func newLive(t testing.TB, lvl *level.Compiled, opts Options) *Session {
	t.Helper()
	s, err := NewLiveSession(lvl, config.Default(), opts)
	if err != nil {
		t.Fatalf("NewLiveSession failed: %v", err)
	}
	return s
}

func kindsOf(events []event.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

func indexOf(kinds []event.Kind, k event.Kind) int {
	for i, got := range kinds {
		if got == k {
			return i
		}
	}
	return -1
}

// wonReplay plays the win level live and returns the finished recording.
func wonReplay(t *testing.T, lvl *level.Compiled) *replay.Replay {
	t.Helper()
	s := newLive(t, lvl, Options{Player: "ana"})
	s.Frame(0.05)
	if !s.Scene().Won() {
		t.Fatalf("Expected the run to be won, events %v", kindsOf(s.Events().Entries()))
	}
	return s.Replay()
}

// TestLiveSessionStartsLevelMotions tests that motion definitions become
// recorded events at time zero
func TestLiveSessionStartsLevelMotions(t *testing.T) {
	s := newLive(t, testLevel(t, "session", ""), Options{})

	entries := s.Events().Entries()
	if len(entries) != 1 || entries[0].Kind() != event.KindSetDynamicBlockTranslation {
		t.Fatalf("Expected one SetDynamicBlockTranslation, got %v", kindsOf(entries))
	}
	if entries[0].Time != 0 {
		t.Errorf("Expected the motion at time 0, got %f", entries[0].Time)
	}
	b, err := s.Scene().Block("lift")
	if err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if b.Motion().Kind != scene.MotionTranslation {
		t.Errorf("Expected a translation motion, got %v", b.Motion().Kind)
	}
	if s.RecordedSnapshots() != 1 {
		t.Errorf("Expected the start snapshot, got %d", s.RecordedSnapshots())
	}
}

// TestLiveSessionCollectAndWin tests strawberry pickup and the end of level
// once nothing is left to collect
func TestLiveSessionCollectAndWin(t *testing.T) {
	s := newLive(t, testLevel(t, "session", winEntities), Options{Player: "ana"})
	s.Frame(0.05)

	sc := s.Scene()
	if !sc.Won() || sc.Dead() {
		t.Fatalf("Expected won and alive, got won=%v dead=%v", sc.Won(), sc.Dead())
	}
	if !sc.IsDestroyed("s1") {
		t.Error("Expected s1 to be destroyed")
	}
	if len(s.Pickups()) != 1 {
		t.Errorf("Expected 1 pickup, got %d", len(s.Pickups()))
	}
	if !s.Over() {
		t.Error("Expected the run to be over")
	}

	kinds := kindsOf(s.Events().Entries())
	destroyed := indexOf(kinds, event.KindEntityDestroyed)
	wins := indexOf(kinds, event.KindPlayerWins)
	if indexOf(kinds, event.KindPlayerEntersZone) < 0 {
		t.Errorf("Expected PlayerEntersZone in %v", kinds)
	}
	if destroyed < 0 || wins < 0 || wins < destroyed {
		t.Errorf("Expected EntityDestroyed before PlayerWins in %v", kinds)
	}

	rp := s.Replay()
	if rp == nil {
		t.Fatal("Expected a finished recording")
	}
	if !rp.Finished {
		t.Error("Expected the recording to be marked finished")
	}
	if len(rp.Events) != len(kinds) {
		t.Errorf("Expected %d recorded events, got %d", len(kinds), len(rp.Events))
	}
	if rp.Player != "ana" || rp.LevelID != "session" {
		t.Errorf("Expected ana on session, got %s on %s", rp.Player, rp.LevelID)
	}

	// Over sessions do not step any more.
	at := s.Time()
	if steps := s.Frame(0.05); steps != 0 || s.Time() != at {
		t.Errorf("Expected no steps after the end, got %d (time %f -> %f)", steps, at, s.Time())
	}
}

// TestLiveSessionWreckerKills tests death by entity
func TestLiveSessionWreckerKills(t *testing.T) {
	s := newLive(t, testLevel(t, "session", wreckerEntities), Options{})
	s.Frame(0.02)

	if !s.Scene().Dead() {
		t.Fatal("Expected the rider to be dead")
	}
	kinds := kindsOf(s.Events().Entries())
	i := indexOf(kinds, event.KindPlayerDies)
	if i < 0 {
		t.Fatalf("Expected PlayerDies in %v", kinds)
	}
	if d := s.Events().Entries()[i].Payload.(*event.PlayerDies); !d.ByEntity {
		t.Error("Expected death by entity")
	}
	if rp := s.Replay(); rp == nil || rp.Finished {
		t.Error("Expected an unfinished recording")
	}
	if err := s.RestartFromCheckpoint(); !errors.Is(err, ErrRunOver) {
		t.Errorf("Expected ErrRunOver, got %v", err)
	}
}

// TestRestartFromCheckpoint tests checkpoint capture and restart
func TestRestartFromCheckpoint(t *testing.T) {
	t.Run("no checkpoint yet", func(t *testing.T) {
		s := newLive(t, testLevel(t, "session", ""), Options{})
		if err := s.RestartFromCheckpoint(); !errors.Is(err, ErrNoCheckpoint) {
			t.Errorf("Expected ErrNoCheckpoint, got %v", err)
		}
	})

	t.Run("restart at rest on the checkpoint", func(t *testing.T) {
		s := newLive(t, testLevel(t, "session", checkpointEntities), Options{})
		s.Frame(0.03)

		cp, ok := s.Checkpoint()
		if !ok {
			t.Fatal("Expected a checkpoint")
		}
		if cp.X() != 0 || cp.Y() != 0.9 {
			t.Errorf("Expected checkpoint (0, 0.9), got %v", cp)
		}

		if err := s.RestartFromCheckpoint(); err != nil {
			t.Fatalf("RestartFromCheckpoint failed: %v", err)
		}
		cfg := config.DefaultPhysics()
		frame := s.State().Frame
		wantY := 0.9 + cfg.WheelRadius - cfg.RearWheelAnchor.Y
		if math.Abs(frame.X()) > 1e-9 || math.Abs(frame.Y()-wantY) > 1e-9 {
			t.Errorf("Expected frame at (0, %f), got %v", wantY, frame)
		}
		entries := s.Events().Entries()
		if last := entries[len(entries)-1]; last.Kind() != event.KindSetPlayerPosition {
			t.Errorf("Expected SetPlayerPosition last, got %s", last.Kind())
		}
	})
}

// TestLoopResetOnStall tests that a long frame runs at most the catch-up cap
func TestLoopResetOnStall(t *testing.T) {
	s := newLive(t, testLevel(t, "session", ""), Options{})
	steps := s.Frame(1.0)

	cfg := config.DefaultSimulation()
	if steps != cfg.MaxCatchUp {
		t.Errorf("Expected %d steps, got %d", cfg.MaxCatchUp, steps)
	}
	if s.LoopResets() != 1 {
		t.Errorf("Expected 1 reset, got %d", s.LoopResets())
	}
	if math.Abs(s.Time()-float64(cfg.MaxCatchUp)*cfg.StepSize()) > 1e-9 {
		t.Errorf("Expected time %f, got %f", float64(cfg.MaxCatchUp)*cfg.StepSize(), s.Time())
	}
}

// TestReplaySessionFollowsCursor tests that a recorded run plays back with
// the scene following the cursor both ways
func TestReplaySessionFollowsCursor(t *testing.T) {
	lvl := testLevel(t, "session", winEntities)
	data, err := replay.Encode(wonReplay(t, lvl))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	rp, err := replay.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	s, err := NewReplaySession(lvl, rp, config.Default(), Options{})
	if err != nil {
		t.Fatalf("NewReplaySession failed: %v", err)
	}
	sc := s.Scene()
	if sc.IsDestroyed("s1") || sc.Won() {
		t.Error("Expected the start of the run at cursor 0")
	}
	if b, _ := sc.Block("lift"); b.Motion().Kind != scene.MotionTranslation {
		t.Error("Expected the level motion replayed at time 0")
	}

	if err := s.SeekTo(rp.Duration()); err != nil {
		t.Fatalf("SeekTo failed: %v", err)
	}
	if !sc.IsDestroyed("s1") || !sc.Won() {
		t.Error("Expected s1 destroyed and the run won at the end")
	}
	st, ok := s.Playback()
	if !ok || !st.AtEnd || !st.Finished {
		t.Errorf("Expected playback at the end of a finished run, got %+v", st)
	}

	if err := s.SeekTo(0); err != nil {
		t.Fatalf("SeekTo failed: %v", err)
	}
	if sc.IsDestroyed("s1") || sc.Won() {
		t.Error("Expected seeking back to restore s1 and clear the win")
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	s.Frame(0.01)
	if s.Time() != 0 {
		t.Errorf("Expected a paused cursor to stay at 0, got %f", s.Time())
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	s.Frame(0.01)
	if math.Abs(s.Time()-0.01) > 1e-9 {
		t.Errorf("Expected cursor 0.01, got %f", s.Time())
	}
}

// TestSessionErrors tests mode checks, level mismatches and Close
func TestSessionErrors(t *testing.T) {
	lvl := testLevel(t, "session", winEntities)
	rp := wonReplay(t, lvl)
	other := testLevel(t, "other", "")

	t.Run("replay on another level", func(t *testing.T) {
		_, err := NewReplaySession(other, rp, config.Default(), Options{})
		if !errors.Is(err, ErrLevelNotFound) {
			t.Errorf("Expected ErrLevelNotFound, got %v", err)
		}
	})

	t.Run("ghost on another level", func(t *testing.T) {
		_, err := NewLiveSession(other, config.Default(), Options{Ghost: rp})
		if !errors.Is(err, ErrLevelNotFound) {
			t.Errorf("Expected ErrLevelNotFound, got %v", err)
		}
	})

	t.Run("playback controls on a live session", func(t *testing.T) {
		s := newLive(t, lvl, Options{})
		if err := s.SetSpeed(2); !errors.Is(err, ErrNotReplay) {
			t.Errorf("Expected ErrNotReplay, got %v", err)
		}
	})

	t.Run("input on a replay session", func(t *testing.T) {
		s, err := NewReplaySession(lvl, rp, config.Default(), Options{})
		if err != nil {
			t.Fatalf("NewReplaySession failed: %v", err)
		}
		if err := s.SetInput(physics.Input{Drive: 1}); !errors.Is(err, ErrNotLive) {
			t.Errorf("Expected ErrNotLive, got %v", err)
		}
		s.Close()
		if err := s.FastRewind(); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Expected ErrSessionClosed, got %v", err)
		}
	})

	t.Run("close records an unfinished run", func(t *testing.T) {
		s := newLive(t, testLevel(t, "session", ""), Options{})
		s.Frame(0.05)
		s.Close()
		s.Close()
		rp := s.Replay()
		if rp == nil || rp.Finished {
			t.Fatal("Expected an unfinished recording after Close")
		}
		if s.Frame(0.05) != 0 {
			t.Error("Expected a closed session not to step")
		}
	})
}

// TestLiveSessionWithGhost tests the ghost following the live clock
func TestLiveSessionWithGhost(t *testing.T) {
	lvl := testLevel(t, "session", winEntities)
	rp := wonReplay(t, lvl)

	s := newLive(t, lvl, Options{Ghost: rp})
	if s.Ghost() == nil {
		t.Fatal("Expected a ghost")
	}
	s.Frame(0.05)
	g := s.Ghost()
	if !g.Finished() {
		t.Error("Expected the ghost to finish with the recorded run")
	}
	if len(g.Pickups()) != 1 {
		t.Errorf("Expected 1 ghost pickup, got %d", len(g.Pickups()))
	}
	if math.Abs(g.DiffToPlayer()) > 1e-6 {
		t.Errorf("Expected the same pickup time as the ghost, got diff %f", g.DiffToPlayer())
	}
	if g.Scene() == s.Scene() {
		t.Error("Expected the ghost to own its scene")
	}
}
