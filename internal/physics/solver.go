// Package physics drives the bike: a fixed-step loop that applies the
// suspension, engine, attitude and wheel contact forces and hands
// integration to a rigid-body Solver.
package physics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
)

// BodyID is a solver body handle.
type BodyID int

// Solver is the rigid-body integrator the bike runs on. Force and torque
// calls on an unknown or disabled body panic.
type Solver interface {
	CreateBody(mass, moment float64, pos mgl64.Vec2) BodyID
	SetMass(id BodyID, mass, moment float64)
	AddForce(id BodyID, force, at mgl64.Vec2)
	AddTorque(id BodyID, torque float64)

	Position(id BodyID) mgl64.Vec2
	Rotation(id BodyID) float64
	LinearVelocity(id BodyID) mgl64.Vec2
	AngularVelocity(id BodyID) float64

	// SetTransform teleports a body and zeroes its velocities.
	SetTransform(id BodyID, pos mgl64.Vec2, angle float64)

	SetGravity(g mgl64.Vec2)
	Enable(id BodyID)
	Disable(id BodyID)
	Enabled(id BodyID) bool

	StepWorld(dt float64)
}

// =============================================================================
// CHIPMUNK SOLVER
// =============================================================================

type cpBody struct {
	body    *cp.Body
	enabled bool

	// held is the transform a disabled body is pinned to across a step.
	heldPos   cp.Vector
	heldAngle float64
}

// CPSolver implements Solver on a chipmunk space. Bodies carry no shapes:
// contacts come from the level collision index as forces.
type CPSolver struct {
	space  *cp.Space
	bodies []*cpBody
}

// NewCPSolver creates an empty space.
func NewCPSolver() *CPSolver {
	space := cp.NewSpace()
	space.Iterations = 20
	return &CPSolver{space: space}
}

func toCP(v mgl64.Vec2) cp.Vector    { return cp.Vector{X: v.X(), Y: v.Y()} }
func fromCP(v cp.Vector) mgl64.Vec2 { return mgl64.Vec2{v.X, v.Y} }

func (s *CPSolver) get(id BodyID) *cpBody {
	if id < 0 || int(id) >= len(s.bodies) {
		panic(fmt.Sprintf("physics: unknown body %d", id))
	}
	return s.bodies[id]
}

func (s *CPSolver) active(id BodyID) *cpBody {
	b := s.get(id)
	if !b.enabled {
		panic(fmt.Sprintf("physics: force on disabled body %d", id))
	}
	return b
}

func (s *CPSolver) CreateBody(mass, moment float64, pos mgl64.Vec2) BodyID {
	body := cp.NewBody(mass, moment)
	body.SetPosition(toCP(pos))
	s.space.AddBody(body)
	s.bodies = append(s.bodies, &cpBody{body: body, enabled: true})
	return BodyID(len(s.bodies) - 1)
}

func (s *CPSolver) SetMass(id BodyID, mass, moment float64) {
	b := s.get(id)
	b.body.SetMass(mass)
	b.body.SetMoment(moment)
}

func (s *CPSolver) AddForce(id BodyID, force, at mgl64.Vec2) {
	s.active(id).body.ApplyForceAtWorldPoint(toCP(force), toCP(at))
}

func (s *CPSolver) AddTorque(id BodyID, torque float64) {
	b := s.active(id).body
	b.SetTorque(b.Torque() + torque)
}

func (s *CPSolver) Position(id BodyID) mgl64.Vec2 { return fromCP(s.get(id).body.Position()) }
func (s *CPSolver) Rotation(id BodyID) float64    { return s.get(id).body.Angle() }

func (s *CPSolver) LinearVelocity(id BodyID) mgl64.Vec2 {
	return fromCP(s.get(id).body.Velocity())
}

func (s *CPSolver) AngularVelocity(id BodyID) float64 {
	return s.get(id).body.AngularVelocity()
}

func (s *CPSolver) SetTransform(id BodyID, pos mgl64.Vec2, angle float64) {
	b := s.get(id)
	b.body.SetPosition(toCP(pos))
	b.body.SetAngle(angle)
	b.body.SetVelocity(0, 0)
	b.body.SetAngularVelocity(0)
	b.heldPos, b.heldAngle = b.body.Position(), angle
}

func (s *CPSolver) SetGravity(g mgl64.Vec2) { s.space.SetGravity(toCP(g)) }

func (s *CPSolver) Enable(id BodyID) { s.get(id).enabled = true }

func (s *CPSolver) Disable(id BodyID) {
	b := s.get(id)
	if !b.enabled {
		return
	}
	b.enabled = false
	b.heldPos, b.heldAngle = b.body.Position(), b.body.Angle()
	b.body.SetVelocity(0, 0)
	b.body.SetAngularVelocity(0)
}

func (s *CPSolver) Enabled(id BodyID) bool { return s.get(id).enabled }

// StepWorld integrates one step. Disabled bodies are pinned back to their
// held transform afterwards and accumulated forces are cleared.
func (s *CPSolver) StepWorld(dt float64) {
	s.space.Step(dt)
	for _, b := range s.bodies {
		if !b.enabled {
			b.body.SetPosition(b.heldPos)
			b.body.SetAngle(b.heldAngle)
			b.body.SetVelocity(0, 0)
			b.body.SetAngularVelocity(0)
		}
		b.body.SetForce(cp.Vector{})
		b.body.SetTorque(0)
	}
}
