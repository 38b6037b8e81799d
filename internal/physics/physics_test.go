package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/collision"
	"moto-sim/internal/config"
	"moto-sim/internal/geom"
	"moto-sim/internal/level"
)

func buildIndex(t *testing.T, blocks string) *collision.Index {
	t.Helper()
	src, err := level.Parse([]byte(`{
	  "id": "physics",
	  "limits": {"min": [-60, -10], "max": [60, 20]},
	  "blocks": ` + blocks + `
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return level.Compile(src, level.CompileOptions{}).BuildIndex(3)
}

const flatGround = `[{"id": "ground", "vertices": [[-50, -5], [50, -5], [50, 0], [-50, 0]]}]`

// TestLoopAdvance tests fixed-step catch-up and the owed-time reset
func TestLoopAdvance(t *testing.T) {
	tests := []struct {
		name       string
		frames     []float64
		wantSteps  int // steps run by the last frame
		wantOwed   float64
		wantResets uint64
	}{
		{"partial step carried", []float64{0.035}, 3, 0.005, 0},
		{"two half steps", []float64{0.005, 0.005}, 1, 0, 0},
		{"capped without reset", []float64{0.15}, 10, 0.05, 0},
		{"stall drops owed time", []float64{0.5}, 10, 0, 1},
		{"tiny frame", []float64{0.001}, 0, 0.001, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoop(config.DefaultSimulation())
			calls := 0
			var steps int
			for _, dt := range tt.frames {
				steps = l.Advance(dt, func() { calls++ })
			}
			if steps != tt.wantSteps {
				t.Errorf("Expected %d steps, got %d", tt.wantSteps, steps)
			}
			if math.Abs(l.Owed()-tt.wantOwed) > 1e-9 {
				t.Errorf("Expected owed %f, got %f", tt.wantOwed, l.Owed())
			}
			if l.Resets() != tt.wantResets {
				t.Errorf("Expected %d resets, got %d", tt.wantResets, l.Resets())
			}
			if calls > 10*len(tt.frames) {
				t.Errorf("Step called %d times", calls)
			}
		})
	}
}

func TestCPSolverFreeFall(t *testing.T) {
	s := NewCPSolver()
	s.SetGravity(mgl64.Vec2{0, -10})
	id := s.CreateBody(1, 1, mgl64.Vec2{0, 0})

	for i := 0; i < 100; i++ {
		s.StepWorld(0.01)
	}
	y := s.Position(id).Y()
	if y > -4.9 || y < -5.1 {
		t.Errorf("Expected about 5m of fall after 1s, got %f", y)
	}
	if v := s.LinearVelocity(id).Y(); math.Abs(v+10) > 0.01 {
		t.Errorf("Expected -10 m/s, got %f", v)
	}
}

func TestCPSolverForcesCleared(t *testing.T) {
	s := NewCPSolver()
	id := s.CreateBody(1, 1, mgl64.Vec2{})

	s.AddForce(id, mgl64.Vec2{10, 0}, mgl64.Vec2{0, 1})
	s.StepWorld(0.01)
	vx := s.LinearVelocity(id).X()
	if math.Abs(vx-0.1) > 1e-9 {
		t.Errorf("Expected vx 0.1, got %f", vx)
	}
	if s.AngularVelocity(id) >= 0 {
		t.Errorf("Force above the center should spin clockwise, got %f", s.AngularVelocity(id))
	}

	s.StepWorld(0.01)
	if got := s.LinearVelocity(id).X(); math.Abs(got-vx) > 1e-9 {
		t.Errorf("Force leaked into the next step: %f", got)
	}
}

func TestCPSolverDisabledBodyHeld(t *testing.T) {
	s := NewCPSolver()
	s.SetGravity(mgl64.Vec2{0, -10})
	id := s.CreateBody(1, 1, mgl64.Vec2{3, 4})

	s.Disable(id)
	for i := 0; i < 10; i++ {
		s.StepWorld(0.01)
	}
	if p := s.Position(id); p != (mgl64.Vec2{3, 4}) {
		t.Errorf("Disabled body moved to %v", p)
	}
	if s.Enabled(id) {
		t.Error("Expected body disabled")
	}

	s.Enable(id)
	s.StepWorld(0.01)
	s.StepWorld(0.01)
	if s.Position(id).Y() >= 4 {
		t.Error("Enabled body should fall")
	}
}

func TestCPSolverMisusePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(s *CPSolver, id BodyID)
	}{
		{"unknown body", func(s *CPSolver, id BodyID) { s.Position(id + 5) }},
		{"force on disabled", func(s *CPSolver, id BodyID) {
			s.Disable(id)
			s.AddForce(id, mgl64.Vec2{1, 0}, mgl64.Vec2{})
		}},
		{"torque on disabled", func(s *CPSolver, id BodyID) {
			s.Disable(id)
			s.AddTorque(id, 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCPSolver()
			id := s.CreateBody(1, 1, mgl64.Vec2{})
			defer func() {
				if recover() == nil {
					t.Error("Expected panic")
				}
			}()
			tt.fn(s, id)
		})
	}
}

// TestBikeSettlesOnGround tests that an idle bike comes to rest on its
// wheels and eventually sleeps
func TestBikeSettlesOnGround(t *testing.T) {
	ix := buildIndex(t, flatGround)
	cfg := config.DefaultPhysics()
	bike := NewBike(cfg, NewCPSolver(), mgl64.Vec2{0, 0}, true, 100)

	slept := false
	for i := 0; i < 500; i++ {
		res := bike.Step(0.01, Input{}, ix)
		if res.HeadHit {
			t.Fatalf("Unexpected head hit at step %d", i)
		}
		slept = slept || res.Sleeping
	}

	st := bike.State()
	for name, w := range map[string]mgl64.Vec2{"rear": st.RearWheel, "front": st.FrontWheel} {
		if w.Y() < cfg.WheelRadius-0.05 || w.Y() > cfg.WheelRadius+0.01 {
			t.Errorf("Expected %s wheel resting near y=%.2f, got %f", name, cfg.WheelRadius, w.Y())
		}
	}
	if st.Frame.Y() < 0.5 || st.Frame.Y() > 0.8 {
		t.Errorf("Expected frame on its suspension, got y=%f", st.Frame.Y())
	}
	if math.Abs(st.FrameRot) > 0.05 {
		t.Errorf("Expected level frame, got rotation %f", st.FrameRot)
	}
	if math.Abs(st.Frame.X()) > 0.05 {
		t.Errorf("Idle bike drifted to x=%f", st.Frame.X())
	}
	if !slept {
		t.Error("Expected the idle bike to fall asleep")
	}
	if st.RPM != cfg.EngineRPMMin {
		t.Errorf("Expected idle RPM %f, got %f", cfg.EngineRPMMin, st.RPM)
	}
}

func TestBikeThrottleMovesForward(t *testing.T) {
	ix := buildIndex(t, flatGround)
	bike := NewBike(config.DefaultPhysics(), NewCPSolver(), mgl64.Vec2{0, 0}, true, 100)

	for i := 0; i < 50; i++ {
		bike.Step(0.01, Input{}, ix)
	}
	for i := 0; i < 200; i++ {
		if res := bike.Step(0.01, Input{Drive: 1}, ix); res.HeadHit {
			t.Fatalf("Unexpected head hit at step %d", i)
		}
	}

	st := bike.State()
	if st.Frame.X() < 0.3 {
		t.Errorf("Expected the bike to drive right, frame at x=%f", st.Frame.X())
	}
	if st.RPM <= config.DefaultPhysics().EngineRPMMin {
		t.Errorf("Expected RPM above idle, got %f", st.RPM)
	}
}

func TestBikeHeadHit(t *testing.T) {
	ix := buildIndex(t, `[
	  {"id": "ground", "vertices": [[-50, -5], [50, -5], [50, 0], [-50, 0]]},
	  {"id": "ceiling", "vertices": [[-5, 2], [5, 2], [5, 4], [-5, 4]]}
	]`)
	bike := NewBike(config.DefaultPhysics(), NewCPSolver(), mgl64.Vec2{0, 0}, true, 100)

	if res := bike.Step(0.01, Input{}, ix); !res.HeadHit {
		t.Errorf("Expected head hit under a low ceiling, head at %v", bike.State().Head)
	}
}

func TestBikeChangeDirectionMirrorsRider(t *testing.T) {
	cfg := config.DefaultPhysics()
	bike := NewBike(cfg, NewCPSolver(), mgl64.Vec2{0, 0}, true, 100)

	before := bike.State()
	if before.Head.X() <= before.Frame.X()+cfg.Shoulder.X {
		t.Fatalf("Expected the head ahead of the shoulder, got %v for frame %v", before.Head, before.Frame)
	}

	bike.ChangeDirection()
	after := bike.State()
	if after.FacingRight {
		t.Error("Expected facing left")
	}
	if math.Abs((after.Head.X()-after.Frame.X())+(before.Head.X()-before.Frame.X())) > 1e-9 {
		t.Errorf("Expected mirrored head, got %v", after.Head)
	}
	if after.RearWheel != before.RearWheel {
		t.Error("Wheels must not move when turning around")
	}
}

func TestBikePlayerHooks(t *testing.T) {
	ix := collision.NewIndex(geom.Rect{Min: mgl64.Vec2{-100, -100}, Max: mgl64.Vec2{100, 100}}, 3)
	bike := NewBike(config.DefaultPhysics(), NewCPSolver(), mgl64.Vec2{0, 0}, true, 100)

	bike.SetPlayerPosition(mgl64.Vec2{10, 5}, false)
	pos, right := bike.PlayerPosition()
	if !pos.ApproxEqualThreshold(mgl64.Vec2{10, 5}, 1e-9) || right {
		t.Fatalf("Expected (10,5) facing left, got %v %v", pos, right)
	}
	st := bike.State()
	if d := st.RearWheel.Sub(st.Frame); !d.ApproxEqualThreshold(mgl64.Vec2{-0.7, -0.4}, 1e-9) {
		t.Errorf("Teleport changed the wheel offset to %v", d)
	}

	bike.AddPlayerForce(mgl64.Vec2{1000, 0}, 0, 0.5)
	for i := 0; i < 50; i++ {
		bike.Step(0.01, Input{}, ix)
	}
	if x := bike.State().Frame.X(); x < 10.5 {
		t.Errorf("Expected the force to push the bike right, frame at x=%f", x)
	}
}
