package replay

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/level"
	"moto-sim/internal/physics"
	"moto-sim/internal/scene"
)

func testLevel(t *testing.T) *level.Compiled {
	t.Helper()
	src, err := level.Parse([]byte(`{
	  "id": "replay",
	  "blocks": [{"id": "ground", "vertices": [[-10, -5], [50, -5], [50, 0], [-10, 0]]}],
	  "entities": [
	    {"id": "start", "kind": "PlayerStart", "position": [0, 1]},
	    {"id": "s1", "kind": "Strawberry", "position": [10, 1], "radius": 0.5},
	    {"id": "s2", "kind": "Strawberry", "position": [20, 1], "radius": 0.5},
	    {"id": "w1", "kind": "Wrecker", "position": [30, 1], "radius": 0.5}
	  ]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return level.Compile(src, level.CompileOptions{})
}

func bikeAt(x, y float64, right bool) physics.BikeState {
	return physics.BikeState{
		Frame:       mgl64.Vec2{x, y},
		RearWheel:   mgl64.Vec2{x - 0.7, y - 0.4},
		FrontWheel:  mgl64.Vec2{x + 0.7, y - 0.4},
		FrameRot:    0.1,
		RearRot:     1.0,
		FrontRot:    -2.0,
		Elbow:       mgl64.Vec2{x + 0.35, y + 0.55},
		Shoulder:    mgl64.Vec2{x + 0.05, y + 0.95},
		LowerBody:   mgl64.Vec2{x - 0.15, y + 0.35},
		Knee:        mgl64.Vec2{x + 0.25, y + 0.2},
		RPM:         3000,
		FacingRight: right,
	}
}

// steadyReplay has n snapshots dt apart with the frame moving one unit per
// snapshot.
func steadyReplay(n int, dt float64) *Replay {
	cfg := config.DefaultPhysics()
	rp := &Replay{LevelID: "replay", Player: "ana", SampleRate: float32(1 / dt)}
	for i := 0; i < n; i++ {
		rp.Snapshots = append(rp.Snapshots, FromState(bikeAt(float64(i), 1, true), float64(i)*dt, cfg))
	}
	return rp
}

// TestQuantizationBounds tests the 8-bit coordinate and 16-bit rotation maps
func TestQuantizationBounds(t *testing.T) {
	t.Run("coordinates clamp to 127", func(t *testing.T) {
		if c := MapCoordTo8Bits(0, 1, 5); c != 127 {
			t.Errorf("Expected 127, got %d", c)
		}
		if c := MapCoordTo8Bits(0, 1, -5); c != -127 {
			t.Errorf("Expected -127, got %d", c)
		}
		if c := MapCoordTo8Bits(3, 0, 4); c != 0 {
			t.Errorf("Expected 0 for a zero spread, got %d", c)
		}
	})

	t.Run("coordinates within one step", func(t *testing.T) {
		for _, v := range []float32{-2, -1.3, -0.01, 0, 0.5, 1.99, 2} {
			got := Map8BitsToCoord(10, 2, MapCoordTo8Bits(10, 2, 10+v))
			if d := math.Abs(float64(got - (10 + v))); d > 2.0/127+1e-5 {
				t.Errorf("Coordinate %f came back as %f", 10+v, got)
			}
		}
	})

	t.Run("rotations within one step", func(t *testing.T) {
		for a := -math.Pi; a < math.Pi; a += 0.05 {
			got := Bits16ToMatrix(MatrixTo16Bits(a))
			if d := math.Abs(math.Remainder(got-a, 2*math.Pi)); d > 0.02 {
				t.Errorf("Angle %f came back as %f", a, got)
			}
		}
	})

	t.Run("null matrix is identity", func(t *testing.T) {
		if a := Bits16ToMatrix(0x7f7f); a != 0 {
			t.Errorf("Expected 0, got %f", a)
		}
	})
}

func TestSnapshotStateRoundTrip(t *testing.T) {
	cfg := config.DefaultPhysics()
	for _, right := range []bool{true, false} {
		in := bikeAt(12.5, -3, right)
		s := FromState(in, 4.2, cfg)
		out := s.ToState(cfg)

		if out.FacingRight != right {
			t.Errorf("Expected facing right=%v, got %v", right, out.FacingRight)
		}
		if out.Frame != (mgl64.Vec2{12.5, -3}) {
			t.Errorf("Expected exact frame, got %v", out.Frame)
		}
		tolX := float64(s.MaxXDiff)/127 + 1e-4
		tolY := float64(s.MaxYDiff)/127 + 1e-4
		pairs := map[string][2]mgl64.Vec2{
			"rear":      {in.RearWheel, out.RearWheel},
			"front":     {in.FrontWheel, out.FrontWheel},
			"elbow":     {in.Elbow, out.Elbow},
			"shoulder":  {in.Shoulder, out.Shoulder},
			"lowerBody": {in.LowerBody, out.LowerBody},
			"knee":      {in.Knee, out.Knee},
		}
		for name, p := range pairs {
			if math.Abs(p[0].X()-p[1].X()) > tolX || math.Abs(p[0].Y()-p[1].Y()) > tolY {
				t.Errorf("Expected %s near %v, got %v", name, p[0], p[1])
			}
		}
		if math.Abs(out.FrameRot-in.FrameRot) > 0.02 {
			t.Errorf("Expected frame rotation %f, got %f", in.FrameRot, out.FrameRot)
		}
		if math.Abs(out.RPM-in.RPM) > (cfg.EngineRPMMax-cfg.EngineRPMMin)/255 {
			t.Errorf("Expected RPM near %f, got %f", in.RPM, out.RPM)
		}
		if want := physics.HeadPosition(out.Shoulder, out.LowerBody, cfg.NeckLength); out.Head != want {
			t.Errorf("Expected head %v, got %v", want, out.Head)
		}
	}
}

// TestInterpolateNoOvershoot tests that interpolated frames stay on the
// segment between the two snapshots
func TestInterpolateNoOvershoot(t *testing.T) {
	cfg := config.DefaultPhysics()
	a, b := bikeAt(0, 0, true), bikeAt(4, 2, true)
	seg := b.Frame.Sub(a.Frame)

	for _, f := range []float64{-0.5, 0, 0.25, 0.5, 0.99, 1, 1.7} {
		p := Interpolate(a, b, f, cfg).Frame.Sub(a.Frame)
		cross := seg.X()*p.Y() - seg.Y()*p.X()
		dot := seg.Dot(p)
		if math.Abs(cross) > 1e-9 || dot < -1e-9 || dot > seg.Dot(seg)+1e-9 {
			t.Errorf("f=%.2f: frame %v is off the segment", f, p)
		}
	}

	if got := Interpolate(a, bikeAt(4, 2, false), 0.5, cfg); got.Frame != a.Frame {
		t.Errorf("Expected no blend across a direction change, got %v", got.Frame)
	}

	wrap := Interpolate(physics.BikeState{FrameRot: 3.1}, physics.BikeState{FrameRot: -3.1}, 0.5, cfg)
	if math.Abs(math.Abs(wrap.FrameRot)-math.Pi) > 0.05 {
		t.Errorf("Expected the short way round through pi, got %f", wrap.FrameRot)
	}
}

func codecReplay() *Replay {
	rp := steadyReplay(5, 0.04)
	rp.Finished = true
	rp.FinishTime = 0.16
	rp.Events = []event.Event{
		event.New(0.05, &event.Message{Text: "hi"}),
		event.New(0.1, &event.EntityDestroyed{Entity: "s1", X: 10, Y: 1}),
		event.New(0.15, &event.ClearMessages{}),
	}
	return rp
}

func TestReplayCodecRoundTrip(t *testing.T) {
	rp := codecReplay()
	b, err := Encode(rp)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b[:4]) != Magic || b[4] != Version {
		t.Fatalf("Unexpected header % x", b[:5])
	}

	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.LevelID != rp.LevelID || got.Player != rp.Player || got.SampleRate != rp.SampleRate {
		t.Errorf("Header mismatch: %+v", got)
	}
	if !got.Finished || got.FinishTime != rp.FinishTime {
		t.Errorf("Expected finished at %f, got %v %f", rp.FinishTime, got.Finished, got.FinishTime)
	}
	if !reflect.DeepEqual(got.Snapshots, rp.Snapshots) {
		t.Error("Snapshots differ after decoding")
	}
	if len(got.Events) != len(rp.Events) {
		t.Fatalf("Expected %d events, got %d", len(rp.Events), len(got.Events))
	}
	for i := range rp.Events {
		if !reflect.DeepEqual(got.Events[i], rp.Events[i]) {
			t.Errorf("Event %d: expected %+v, got %+v", i, rp.Events[i], got.Events[i])
		}
	}

	again, err := Encode(got)
	if err != nil {
		t.Fatalf("Re-encode failed: %v", err)
	}
	if !bytes.Equal(again, b) {
		t.Error("Re-encoded replay is not byte-identical")
	}
}

func TestReplayDecodeRejects(t *testing.T) {
	rp := codecReplay()
	good, err := Encode(rp)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	sizeAt := 4 + 1 + 2 + len(rp.LevelID) + 2 + len(rp.Player) + 4
	snapsAt := sizeAt + 2 + 1 + 4 + 4

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'Y'; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 2; return b }},
		{"bad record size", func(b []byte) []byte { b[sizeAt] = 41; return b }},
		{"bad finished flag", func(b []byte) []byte { b[sizeAt+2] = 2; return b }},
		{"snapshot count too large", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[snapsAt-4:], 1<<30)
			return b
		}},
		{"snapshot goes back in time", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[snapsAt+RecordSize+1:], math.Float32bits(-1))
			return b
		}},
		{"unknown event kind", func(b []byte) []byte { b[len(b)-1] = 200; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0) }},
		{"empty", func(b []byte) []byte { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			if _, err := Decode(b); !errors.Is(err, ErrInvalidReplay) {
				t.Errorf("Expected ErrInvalidReplay, got %v", err)
			}
		})
	}
}

// TestRecorderSampleRate tests 25 Hz sampling of 100 centisecond ticks
func TestRecorderSampleRate(t *testing.T) {
	rec := NewRecorder("replay", "ana", config.DefaultReplay(), config.DefaultPhysics())
	for i := 0; i < 100; i++ {
		tm := float64(i) * 0.01
		rec.Sample(tm, bikeAt(tm, 1, true))
	}
	if rec.Snapshots() != 25 {
		t.Fatalf("Expected 25 snapshots, got %d", rec.Snapshots())
	}

	rp := rec.Finish(bikeAt(0.99, 1, true), false, 0.99)
	if len(rp.Snapshots) != 26 {
		t.Errorf("Expected a final snapshot, got %d snapshots", len(rp.Snapshots))
	}
	for i, s := range rp.Snapshots[:25] {
		if want := float32(float64(i) * 0.04); math.Abs(float64(s.Time-want)) > 0.011 {
			t.Errorf("Snapshot %d at %f, expected %f", i, s.Time, want)
		}
	}
	if rp.Finished || rp.FinishTime != float32(0.99) {
		t.Errorf("Expected an unfinished run ending at 0.99, got %v %f", rp.Finished, rp.FinishTime)
	}
	if rec.Sample(2, bikeAt(2, 1, true)) {
		t.Error("Expected no samples after Finish")
	}
}

// TestEntityDestroyedRewind tests that rewinding past a pickup brings the
// entity back into the live set
func TestEntityDestroyedRewind(t *testing.T) {
	lvl := testLevel(t)
	phys := config.DefaultPhysics()

	live := scene.New(lvl, lvl.BuildIndex(3), phys.Gravity)
	liveLog := event.NewLog(live, false)
	rec := NewRecorder(lvl.ID, "ana", config.DefaultReplay(), phys)

	var tm float64
	for i := 1; i <= 100; i++ {
		tm = float64(i) * 0.01
		if i == 100 {
			e := event.New(1.0, &event.EntityDestroyed{Entity: "s1", X: 10, Y: 1})
			liveLog.Fire(e)
			rec.RecordEvent(e)
		}
		rec.Sample(tm, bikeAt(tm, 1, true))
	}
	if !live.IsDestroyed("s1") {
		t.Fatal("Expected s1 destroyed in the live scene")
	}

	b, err := Encode(rec.Finish(bikeAt(tm, 1, true), false, tm))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	rp, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	sc := scene.New(lvl, lvl.BuildIndex(3), phys.Gravity)
	p := NewPlayer(rp, phys, event.NewLog(sc, true))
	if sc.IsDestroyed("s1") {
		t.Fatal("Entity destroyed before playback reached it")
	}

	for !p.AtEnd() {
		p.Advance(0.02)
	}
	if !sc.IsDestroyed("s1") {
		t.Fatal("Expected s1 destroyed at the end of playback")
	}

	p.FastRewind(5)
	if p.Cursor() >= 1.0 {
		t.Fatalf("Expected the cursor before 1.0, got %f", p.Cursor())
	}
	found := false
	for _, e := range sc.LiveEntities() {
		found = found || e.ID == "s1"
	}
	if !found || sc.IsDestroyed("s1") {
		t.Error("Expected s1 back in the live set after rewinding")
	}

	p.SeekTo(1.0)
	if !sc.IsDestroyed("s1") {
		t.Error("Expected s1 destroyed again after seeking forward")
	}
}

// TestPlayerParity tests that odd frames interpolate and even frames show
// the snapshot of a newly entered bracket
func TestPlayerParity(t *testing.T) {
	cfg := config.DefaultPhysics()

	t.Run("alternating", func(t *testing.T) {
		p := NewPlayer(steadyReplay(9, 0.25), cfg, nil)
		want := []bool{false, true, false, true, false, true}
		for i, w := range want {
			p.Advance(0.125)
			if got := p.Status().Exact; got != w {
				t.Errorf("Frame %d: expected exact=%v, got %v", i+1, w, got)
			}
		}
		if x := p.State().Frame.X(); x != 3 {
			t.Errorf("Expected the exact snapshot at x=3, got %f", x)
		}
	})

	t.Run("odd frame clamps to bracket", func(t *testing.T) {
		p := NewPlayer(steadyReplay(9, 0.25), cfg, nil)
		p.Advance(0.3)
		if p.Status().Exact {
			t.Error("Expected an interpolated frame")
		}
		if x := p.State().Frame.X(); math.Abs(x-1) > 1e-6 {
			t.Errorf("Expected the frame clamped to the bracket end x=1, got %f", x)
		}
	})

	t.Run("parity off", func(t *testing.T) {
		p := NewPlayer(steadyReplay(9, 0.25), cfg, nil)
		p.SetParity(false)
		p.Advance(0.3)
		if !p.Status().Exact || p.State().Frame.X() != 1 {
			t.Errorf("Expected the exact snapshot at x=1, got %v exact=%v", p.State().Frame, p.Status().Exact)
		}
	})
}

func TestPlayerSpeedControl(t *testing.T) {
	p := NewPlayer(steadyReplay(9, 0.25), config.DefaultPhysics(), nil)

	p.SetSpeed(2)
	p.Advance(0.125)
	if p.Cursor() != 0.25 {
		t.Errorf("Expected cursor 0.25, got %f", p.Cursor())
	}

	p.Pause()
	p.Advance(1)
	if p.Cursor() != 0.25 || p.Speed() != 0 || !p.Paused() {
		t.Errorf("Expected a paused cursor at 0.25, got %f speed %f", p.Cursor(), p.Speed())
	}
	p.Faster(1)
	if p.Speed() != 0 {
		t.Error("Faster must not change a paused player")
	}
	p.Resume()
	if p.Speed() != 2 {
		t.Errorf("Expected speed 2 after resume, got %f", p.Speed())
	}

	p.FastForward(3)
	if p.Cursor() != 1.0 {
		t.Errorf("Expected cursor 1.0 after fast forward, got %f", p.Cursor())
	}
	p.FastRewind(10)
	if p.Cursor() != 0 {
		t.Errorf("Expected cursor 0 after fast rewind, got %f", p.Cursor())
	}

	p.SetSpeed(100)
	p.Advance(1)
	st := p.Status()
	if !st.AtEnd || st.Cursor != 2.0 {
		t.Errorf("Expected the cursor clamped to the end, got %+v", st)
	}
}

// TestAutoSpeed tests the bounded nudge and the speed clamp
func TestAutoSpeed(t *testing.T) {
	cfg := config.DefaultReplay()

	tests := []struct {
		name      string
		real, sim float64
		repeat    int
		want      float64
	}{
		{"behind nudges up at most 0.1", 10, 0, 1, 1.1},
		{"ahead nudges down at most 0.1", 0, 10, 1, 0.9},
		{"small error", 1, 0, 1, 1 + cfg.AutoSpeedGain},
		{"in step", 2, 2, 3, 1},
		{"floor", 0, 100, 50, cfg.MinAutoSpeed},
		{"ceiling", 100, 0, 200, cfg.MaxAutoSpeed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAutoSpeed(cfg, 1)
			var got float64
			for i := 0; i < tt.repeat; i++ {
				got = a.Update(tt.real, tt.sim)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected speed %f, got %f", tt.want, got)
			}
		})
	}
}

func ghostReplay(finished bool) *Replay {
	rp := steadyReplay(13, 0.25)
	rp.Finished = finished
	rp.FinishTime = 3
	rp.Events = []event.Event{
		event.New(1.0, &event.EntityDestroyed{Entity: "s1", X: 10, Y: 1}),
		event.New(1.5, &event.EntityDestroyed{Entity: "w1", X: 30, Y: 1}),
		event.New(2.0, &event.EntityDestroyed{Entity: "s2", X: 20, Y: 1}),
	}
	return rp
}

func TestGhost(t *testing.T) {
	lvl := testLevel(t)
	phys := config.DefaultPhysics()

	g, err := NewGhost(ghostReplay(true), lvl, phys, 3)
	if err != nil {
		t.Fatalf("NewGhost failed: %v", err)
	}
	if !reflect.DeepEqual(g.Pickups(), []float64{1, 2}) {
		t.Errorf("Expected strawberry pickups [1 2], got %v", g.Pickups())
	}

	g.UpdateTo(1.25)
	if !g.Scene().IsDestroyed("s1") || g.Scene().IsDestroyed("s2") {
		t.Error("Expected only s1 taken by the ghost at 1.25")
	}
	if g.Finished() || g.Dead() {
		t.Error("Ghost ended too early")
	}

	st := g.UpdateTo(3)
	if !g.Finished() || st.RPM != 0 {
		t.Errorf("Expected a finished ghost with the engine off, got finished=%v rpm=%f", g.Finished(), st.RPM)
	}

	g.UpdateTo(0.5)
	if g.Finished() || g.Scene().IsDestroyed("s1") {
		t.Error("Expected the ghost rewound before its first pickup")
	}

	g.UpdateDiffToPlayer(nil)
	if g.DiffToPlayer() != 0 {
		t.Errorf("Expected no diff without pickups, got %f", g.DiffToPlayer())
	}
	g.UpdateDiffToPlayer([]float64{1.5})
	if g.DiffToPlayer() != 0.5 {
		t.Errorf("Expected diff 0.5, got %f", g.DiffToPlayer())
	}
	g.UpdateDiffToPlayer([]float64{1.5, 1.75})
	if g.DiffToPlayer() != -0.25 {
		t.Errorf("Expected diff -0.25, got %f", g.DiffToPlayer())
	}
	g.UpdateDiffToPlayer([]float64{1, 2, 3})
	if g.DiffToPlayer() != -0.25 {
		t.Errorf("Expected the diff kept when the ghost has fewer pickups, got %f", g.DiffToPlayer())
	}

	dead, err := NewGhost(ghostReplay(false), lvl, phys, 3)
	if err != nil {
		t.Fatalf("NewGhost failed: %v", err)
	}
	dead.UpdateTo(10)
	if !dead.Dead() || dead.Finished() {
		t.Error("Expected an unfinished run to end dead")
	}

	other := ghostReplay(true)
	other.LevelID = "elsewhere"
	if _, err := NewGhost(other, lvl, phys, 3); !errors.Is(err, ErrLevelMismatch) {
		t.Errorf("Expected ErrLevelMismatch, got %v", err)
	}
}
