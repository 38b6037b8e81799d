package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MotionKind selects how a dynamic block moves on its own.
type MotionKind uint8

const (
	MotionNone MotionKind = iota
	MotionRotation
	MotionTranslation
	MotionSelfRotation
)

// Motion is a scripted continuous block movement. Displacement is a pure
// function of time, so seeking a replay backwards needs no motion state.
type Motion struct {
	Kind      MotionKind
	InitAngle float64    // rotation: starting angle on the circle
	Radius    float64    // rotation: circle radius
	Offset    mgl64.Vec2 // translation: far end of the back-and-forth
	Period    float64    // seconds per full cycle
	Start     float64    // game time the motion starts
	End       float64    // game time the motion stops; 0 runs forever
}

// Displacement returns the translation and rotation the motion adds to the
// block's base transform at game time t.
func (m Motion) Displacement(t float64) (mgl64.Vec2, float64) {
	if m.Kind == MotionNone || m.Period == 0 {
		return mgl64.Vec2{}, 0
	}

	e := t - m.Start
	if e < 0 {
		e = 0
	}
	if m.End > 0 && t > m.End {
		e = m.End - m.Start
	}
	cycles := e / m.Period

	switch m.Kind {
	case MotionRotation:
		a := m.InitAngle + 2*math.Pi*cycles
		return mgl64.Vec2{
			(math.Cos(a) - math.Cos(m.InitAngle)) * m.Radius,
			(math.Sin(a) - math.Sin(m.InitAngle)) * m.Radius,
		}, 0

	case MotionTranslation:
		phase := cycles - math.Floor(cycles)
		tri := 2 * phase
		if phase > 0.5 {
			tri = 2 - 2*phase
		}
		return m.Offset.Mul(tri), 0

	case MotionSelfRotation:
		return mgl64.Vec2{}, 2 * math.Pi * cycles
	}
	return mgl64.Vec2{}, 0
}
