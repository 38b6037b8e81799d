package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/collision"
	"moto-sim/internal/config"
)

// Input is the rider's control state for one step.
type Input struct {
	Drive     float64 `json:"drive"` // -1..1, negative brakes
	Pull      float64 `json:"pull"`  // -1..1, positive leans back
	ChangeDir bool    `json:"changeDir"`
}

// BikeState is everything a renderer or a replay needs to draw the bike.
// Rider points are world positions with the rider mirrored for the facing.
type BikeState struct {
	Frame      mgl64.Vec2 `json:"frame"`
	RearWheel  mgl64.Vec2 `json:"rearWheel"`
	FrontWheel mgl64.Vec2 `json:"frontWheel"`
	FrameRot   float64    `json:"frameRot"`
	RearRot    float64    `json:"rearRot"`
	FrontRot   float64    `json:"frontRot"`

	Elbow     mgl64.Vec2 `json:"elbow"`
	Shoulder  mgl64.Vec2 `json:"shoulder"`
	LowerBody mgl64.Vec2 `json:"lowerBody"`
	Knee      mgl64.Vec2 `json:"knee"`
	Head      mgl64.Vec2 `json:"head"`

	RPM         float64 `json:"rpm"`
	FacingRight bool    `json:"facingRight"`
}

// HeadPosition derives the head from the torso: the neck continues the
// lower body to shoulder line. A collapsed torso puts the head on the
// shoulder.
func HeadPosition(shoulder, lowerBody mgl64.Vec2, neck float64) mgl64.Vec2 {
	v := shoulder.Sub(lowerBody)
	if v.Len() == 0 {
		return shoulder
	}
	return shoulder.Add(v.Normalize().Mul(neck))
}

// StepResult reports what happened during one bike step.
type StepResult struct {
	HeadHit        bool
	RearContacts   int
	FrontContacts  int
	DynamicTouched bool
	Sleeping       bool
}

type timedForce struct {
	force      mgl64.Vec2
	start, end float64
}

// Bike is the player's motorbike: a frame and two wheels in a Solver, held
// together by spring suspensions. The rider is rigid on the frame.
type Bike struct {
	cfg    config.PhysicsConfig
	solver Solver

	frame, rear, front BodyID
	wheelMoment        float64

	state   BikeState
	gravity mgl64.Vec2
	time    float64

	prevFq, prevRq mgl64.Vec2
	stillFrames    int
	dynamicTouched bool

	attitude        float64
	lastAttitudeDir float64
	nextAttitude    float64

	forces []timedForce

	prevHead    mgl64.Vec2
	firstUpdate bool

	maxContacts int
	contacts    []collision.Contact
}

// NewBike creates the bike bodies in solver with the wheels resting on
// start.
func NewBike(cfg config.PhysicsConfig, solver Solver, start mgl64.Vec2, facingRight bool, maxContacts int) *Bike {
	if maxContacts <= 0 {
		maxContacts = 100
	}
	b := &Bike{
		cfg:         cfg,
		solver:      solver,
		gravity:     mgl64.Vec2{0, -cfg.Gravity},
		maxContacts: maxContacts,
		contacts:    make([]collision.Contact, 0, maxContacts),
		wheelMoment: 0.5 * cfg.WheelMass * cfg.WheelRadius * cfg.WheelRadius,
	}
	frameMoment := cfg.FrameMass * (cfg.FrameWidth*cfg.FrameWidth + cfg.FrameHeight*cfg.FrameHeight) / 12

	framePos := b.framePosFor(start)
	b.frame = solver.CreateBody(cfg.FrameMass, frameMoment, framePos)
	b.rear = solver.CreateBody(cfg.WheelMass, b.wheelMoment, framePos.Add(vec(cfg.RearWheelAnchor)))
	b.front = solver.CreateBody(cfg.WheelMass, b.wheelMoment, framePos.Add(vec(cfg.FrontWheelAnchor)))

	b.state.FacingRight = facingRight
	b.reset()
	return b
}

func vec(v config.Vec) mgl64.Vec2 { return mgl64.Vec2{v.X, v.Y} }

func (b *Bike) framePosFor(start mgl64.Vec2) mgl64.Vec2 {
	return start.Add(mgl64.Vec2{0, b.cfg.WheelRadius - b.cfg.RearWheelAnchor.Y})
}

func (b *Bike) reset() {
	b.prevFq, b.prevRq = mgl64.Vec2{}, mgl64.Vec2{}
	b.stillFrames = 0
	b.attitude, b.lastAttitudeDir, b.nextAttitude = 0, 0, 0
	b.firstUpdate = true
	b.state.RPM = b.cfg.EngineRPMMin
	b.extract()
}

// State returns the bike state after the last step.
func (b *Bike) State() BikeState { return b.state }

// SetGravity sets the gravity applied from the next step.
func (b *Bike) SetGravity(g mgl64.Vec2) { b.gravity = g }

// Time returns the bike's game time.
func (b *Bike) Time() float64 { return b.time }

// ChangeDirection flips the facing and mirrors the rider.
func (b *Bike) ChangeDirection() {
	b.state.FacingRight = !b.state.FacingRight
	b.extract()
}

// Reinit places the bike at start, at rest, with the given facing.
func (b *Bike) Reinit(start mgl64.Vec2, facingRight bool) {
	framePos := b.framePosFor(start)
	b.solver.SetTransform(b.frame, framePos, 0)
	b.solver.SetTransform(b.rear, framePos.Add(vec(b.cfg.RearWheelAnchor)), 0)
	b.solver.SetTransform(b.front, framePos.Add(vec(b.cfg.FrontWheelAnchor)), 0)
	b.enableAll()
	b.forces = b.forces[:0]
	b.state.FacingRight = facingRight
	b.reset()
}

// PlayerPosition returns the frame position and facing.
func (b *Bike) PlayerPosition() (mgl64.Vec2, bool) { return b.state.Frame, b.state.FacingRight }

// SetPlayerPosition teleports the bike so its frame sits at pos.
func (b *Bike) SetPlayerPosition(pos mgl64.Vec2, facingRight bool) {
	d := pos.Sub(b.state.Frame)
	for _, id := range []BodyID{b.frame, b.rear, b.front} {
		b.solver.SetTransform(id, b.solver.Position(id).Add(d), b.solver.Rotation(id))
	}
	b.enableAll()
	b.state.FacingRight = facingRight
	b.prevHead = b.prevHead.Add(d)
	b.extract()
}

// AddPlayerForce queues a force on the frame for game times in [start, end).
func (b *Bike) AddPlayerForce(force mgl64.Vec2, start, end float64) {
	b.forces = append(b.forces, timedForce{force, start, end})
}

func (b *Bike) externalForce(t float64) mgl64.Vec2 {
	var sum mgl64.Vec2
	keep := b.forces[:0]
	for _, f := range b.forces {
		if t >= f.start && t < f.end {
			sum = sum.Add(f.force)
		}
		if t < f.end {
			keep = append(keep, f)
		}
	}
	b.forces = keep
	return sum
}

func (b *Bike) enableAll() {
	b.solver.Enable(b.frame)
	b.solver.Enable(b.rear)
	b.solver.Enable(b.front)
}

func (b *Bike) disableAll() {
	b.solver.Disable(b.frame)
	b.solver.Disable(b.rear)
	b.solver.Disable(b.front)
}

// toWorld maps a frame-local offset to world space. Rider offsets are
// mirrored when facing left; wheel anchors are not.
func (b *Bike) toWorld(local config.Vec, mirror bool) mgl64.Vec2 {
	l := vec(local)
	if mirror && !b.state.FacingRight {
		l[0] = -l[0]
	}
	return b.state.Frame.Add(mgl64.Rotate2D(b.state.FrameRot).Mul2x1(l))
}

// Step advances the bike by dt: forces first, then one solver step, then
// the head check against ix.
func (b *Bike) Step(dt float64, in Input, ix *collision.Index) StepResult {
	var res StepResult
	cfg := &b.cfg
	s := b.solver
	b.time += dt
	t := b.time

	if in.ChangeDir {
		b.ChangeDirection()
	}

	s.SetGravity(b.gravity)

	// Sleep heuristic: all three bodies still for long enough and nothing
	// dynamic touched last step.
	if still(s.LinearVelocity(b.front), cfg.SleepEps) &&
		still(s.LinearVelocity(b.rear), cfg.SleepEps) &&
		still(s.LinearVelocity(b.frame), cfg.SleepEps) {
		b.stillFrames++
	} else {
		b.stillFrames = 0
	}
	sleep := b.stillFrames > cfg.SleepFrames && !b.dynamicTouched
	if sleep {
		b.disableAll()
	} else {
		b.enableAll()
	}

	if f := b.externalForce(t); f != (mgl64.Vec2{}) {
		b.stillFrames = 0
		sleep = false
		b.enableAll()
		s.AddForce(b.frame, f, b.state.Frame)
	}

	rearAnchor := b.toWorld(cfg.RearWheelAnchor, false)
	frontAnchor := b.toWorld(cfg.FrontWheelAnchor, false)
	if !sleep {
		b.prevFq = b.suspension(b.front, frontAnchor, b.state.FrontWheel, b.prevFq)
		b.prevRq = b.suspension(b.rear, rearAnchor, b.state.RearWheel, b.prevRq)
	}

	// Attitude
	if in.Pull != 0 && (t > b.nextAttitude || in.Pull*b.lastAttitudeDir < 0) {
		b.attitude = in.Pull * cfg.AttitudeTorque
		b.lastAttitudeDir = b.attitude
		b.nextAttitude = t + cfg.AttitudeCooldown*math.Abs(in.Pull)
	}
	if b.attitude != 0 {
		b.stillFrames = 0
		sleep = false
		b.enableAll()
		s.AddTorque(b.frame, b.attitude)
	}
	b.attitude *= cfg.AttitudeDefactor
	if math.Abs(b.attitude) < 100 {
		b.attitude = 0
	}

	rearAV := s.AngularVelocity(b.rear)
	frontAV := s.AngularVelocity(b.front)

	if !sleep {
		s.AddTorque(b.rear, -rearAV*b.rollResistance(rearAV))
		s.AddTorque(b.front, -frontAV*b.rollResistance(frontAV))
	}

	// RPM follows the driven wheel.
	f := -rearAV
	if !b.state.FacingRight {
		f = frontAV
	}
	f = math.Max(f, 0)
	rpm := cfg.EngineRPMMin + (cfg.EngineRPMMax-cfg.EngineRPMMin)*(f/cfg.WheelRollVelocityMax)*in.Drive
	b.state.RPM = mgl64.Clamp(rpm, cfg.EngineRPMMin, cfg.EngineRPMMax)

	switch {
	case in.Drive < 0:
		if !sleep {
			s.AddTorque(b.rear, rearAV*cfg.BrakeFactor*in.Drive)
			s.AddTorque(b.front, frontAV*cfg.BrakeFactor*in.Drive)
		}
	case in.Drive > 0:
		if b.state.FacingRight {
			if rearAV > -cfg.WheelRollVelocityMax {
				b.stillFrames = 0
				b.enableAll()
				s.AddTorque(b.rear, -cfg.MaxEngine*cfg.EngineDamp*in.Drive)
			}
		} else if frontAV < cfg.WheelRollVelocityMax {
			b.stillFrames = 0
			b.enableAll()
			s.AddTorque(b.front, cfg.MaxEngine*cfg.EngineDamp*in.Drive)
		}
	}

	// Wheel contacts
	ix.ClearDynamicTouched()
	res.FrontContacts = b.wheelContacts(b.front, b.state.FrontWheel, ix, dt)
	res.RearContacts = b.wheelContacts(b.rear, b.state.RearWheel, ix, dt)
	res.DynamicTouched = ix.DynamicTouched()
	b.dynamicTouched = res.DynamicTouched

	s.StepWorld(dt)
	b.extract()

	res.HeadHit = ix.CheckCircle(b.state.Head, cfg.HeadSize)
	if !res.HeadHit && !b.firstUpdate {
		b.contacts = ix.CollideLine(b.prevHead, b.state.Head, 1, b.contacts[:0])
		res.HeadHit = len(b.contacts) > 0
	}
	b.prevHead = b.state.Head
	b.firstUpdate = false
	res.Sleeping = sleep
	return res
}

func still(v mgl64.Vec2, eps float64) bool {
	return math.Abs(v.X()) < eps && math.Abs(v.Y()) < eps
}

func (b *Bike) rollResistance(av float64) float64 {
	if av > -b.cfg.WheelRollVelocityMax && av < b.cfg.WheelRollVelocityMax {
		return b.cfg.WheelRollResistance
	}
	return b.cfg.WheelRollResistanceMax
}

// suspension pulls wheel toward anchor and the frame the other way. It
// returns the new compression vector.
func (b *Bike) suspension(wheel BodyID, anchor, wheelPos, prevQ mgl64.Vec2) mgl64.Vec2 {
	q := anchor.Sub(wheelPos)
	qv := q.Sub(prevQ)
	total := q.Mul(b.cfg.SuspensionSpring).Add(qv.Mul(b.cfg.SuspensionDamp))
	b.solver.AddForce(wheel, total, wheelPos)
	b.solver.AddForce(b.frame, total.Mul(-1), anchor)
	return q
}

// wheelContacts turns the wheel's level contacts into penalty forces: a
// spring-damper along the normal and grip-limited friction along the
// surface.
func (b *Bike) wheelContacts(wheel BodyID, center mgl64.Vec2, ix *collision.Index, dt float64) int {
	r := b.cfg.WheelRadius
	b.contacts = ix.CollideCircle(center, r, b.maxContacts, b.contacts[:0])
	if len(b.contacts) == 0 {
		return 0
	}
	if ix.DynamicTouched() {
		b.enableAll()
	}
	if !b.solver.Enabled(wheel) {
		return len(b.contacts)
	}

	v := b.solver.LinearVelocity(wheel)
	av := b.solver.AngularVelocity(wheel)
	// Effective mass of the contact point along the surface, including spin.
	effMass := 1 / (1/b.cfg.WheelMass + r*r/b.wheelMoment)

	for _, c := range b.contacts {
		arm := c.Pos.Sub(center)
		vp := v.Add(mgl64.Vec2{-av * arm.Y(), av * arm.X()})
		n := c.Normal
		tangent := mgl64.Vec2{-n.Y(), n.X()}

		fn := b.cfg.ContactStiffness*c.Depth - b.cfg.ContactDamping*vp.Dot(n)
		if fn < 0 {
			fn = 0
		}
		grip := c.Grip
		if grip <= 0 {
			grip = b.cfg.DefaultGrip
		}
		limit := grip * fn
		ft := mgl64.Clamp(-vp.Dot(tangent)*effMass/dt*0.5, -limit, limit)

		b.solver.AddForce(wheel, n.Mul(fn).Add(tangent.Mul(ft)), c.Pos)
	}
	return len(b.contacts)
}

// extract reads the solver bodies into the state.
func (b *Bike) extract() {
	s := b.solver
	b.state.Frame = s.Position(b.frame)
	b.state.FrameRot = s.Rotation(b.frame)
	b.state.RearWheel = s.Position(b.rear)
	b.state.RearRot = s.Rotation(b.rear)
	b.state.FrontWheel = s.Position(b.front)
	b.state.FrontRot = s.Rotation(b.front)

	b.state.Elbow = b.toWorld(b.cfg.Elbow, true)
	b.state.Shoulder = b.toWorld(b.cfg.Shoulder, true)
	b.state.LowerBody = b.toWorld(b.cfg.LowerBody, true)
	b.state.Knee = b.toWorld(b.cfg.Knee, true)
	b.state.Head = HeadPosition(b.state.Shoulder, b.state.LowerBody, b.cfg.NeckLength)
}
