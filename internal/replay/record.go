// Package replay records bike snapshots and events during live play and
// plays them back with interpolation, scrubbing and speed control. It also
// runs ghosts: replays played next to a live session for comparison.
package replay

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/config"
	"moto-sim/internal/physics"
	"moto-sim/internal/wire"
)

// RecordSize is the encoded size of one Snapshot.
const RecordSize = 40

// Snapshot flags
const (
	FlagFacingLeft  uint8 = 0x01
	FlagFacingRight uint8 = 0x02
)

// Snapshot is one quantized bike sample. Joint and wheel positions are 8-bit
// offsets from the frame, scaled by the per-axis spread of the sample, and
// rotations are 2x2 matrices packed into 16 bits.
type Snapshot struct {
	Flags    uint8
	Time     float32
	FrameX   float32
	FrameY   float32
	MaxXDiff float32
	MaxYDiff float32

	RearRot  uint16
	FrontRot uint16
	FrameRot uint16
	RPM      uint8

	RearWheel  [2]int8
	FrontWheel [2]int8
	Elbow      [2]int8
	Shoulder   [2]int8
	LowerBody  [2]int8
	Knee       [2]int8
}

// FacingRight reports the recorded facing.
func (s *Snapshot) FacingRight() bool { return s.Flags&FlagFacingLeft == 0 }

func (s *Snapshot) encode(w *wire.Writer) {
	w.U8(s.Flags)
	w.F32(s.Time)
	w.F32(s.FrameX)
	w.F32(s.FrameY)
	w.F32(s.MaxXDiff)
	w.F32(s.MaxYDiff)
	w.U16(s.RearRot)
	w.U16(s.FrontRot)
	w.U16(s.FrameRot)
	w.U8(s.RPM)
	for _, p := range s.points() {
		w.I8(p[0])
		w.I8(p[1])
	}
}

func (s *Snapshot) decode(r *wire.Reader) {
	s.Flags = r.U8()
	s.Time = r.F32()
	s.FrameX = r.F32()
	s.FrameY = r.F32()
	s.MaxXDiff = r.F32()
	s.MaxYDiff = r.F32()
	s.RearRot = r.U16()
	s.FrontRot = r.U16()
	s.FrameRot = r.U16()
	s.RPM = r.U8()
	for _, p := range s.points() {
		p[0] = r.I8()
		p[1] = r.I8()
	}
}

// points lists the delta-encoded positions in record order.
func (s *Snapshot) points() [6]*[2]int8 {
	return [6]*[2]int8{&s.RearWheel, &s.FrontWheel, &s.Elbow, &s.Shoulder, &s.LowerBody, &s.Knee}
}

// =============================================================================
// QUANTIZATION
// =============================================================================

// MatrixTo16Bits packs the first column of the rotation matrix for angle,
// 8 bits per component.
func MatrixTo16Bits(angle float64) uint16 {
	c1 := clampByte(int(float32(math.Cos(angle))*127 + 127))
	c2 := clampByte(int(float32(math.Sin(angle))*127 + 127))
	return uint16(c1)<<8 | uint16(c2)
}

// Bits16ToMatrix unpacks a rotation packed by MatrixTo16Bits and returns
// its angle. A null column decodes as the identity.
func Bits16ToMatrix(n uint16) float64 {
	c := (float64(n>>8) - 127) / 127
	s := (float64(n&0xff) - 127) / 127
	if c == 0 && s == 0 {
		return 0
	}
	return math.Atan2(s, c)
}

// MapCoordTo8Bits maps coord to a signed byte relative to ref, where
// ±maxDiff spans ±127.
func MapCoordTo8Bits(ref, maxDiff, coord float32) int8 {
	if maxDiff == 0 {
		return 0
	}
	n := int((127 * (coord - ref)) / maxDiff)
	if n < -127 {
		n = -127
	}
	if n > 127 {
		n = 127
	}
	return int8(n)
}

// Map8BitsToCoord is the inverse of MapCoordTo8Bits.
func Map8BitsToCoord(ref, maxDiff float32, c int8) float32 {
	return ref + (float32(c)/127)*maxDiff
}

func clampByte(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

// =============================================================================
// BIKE STATE CONVERSION
// =============================================================================

// FromState quantizes a bike state sampled at game time t.
func FromState(st physics.BikeState, t float64, cfg config.PhysicsConfig) Snapshot {
	s := Snapshot{
		Time:     float32(t),
		FrameX:   float32(st.Frame.X()),
		FrameY:   float32(st.Frame.Y()),
		RearRot:  MatrixTo16Bits(st.RearRot),
		FrontRot: MatrixTo16Bits(st.FrontRot),
		FrameRot: MatrixTo16Bits(st.FrameRot),
	}
	if st.FacingRight {
		s.Flags = FlagFacingRight
	} else {
		s.Flags = FlagFacingLeft
	}

	pts := [6]mgl64.Vec2{st.RearWheel, st.FrontWheel, st.Elbow, st.Shoulder, st.LowerBody, st.Knee}
	for _, p := range pts {
		s.MaxXDiff = max(s.MaxXDiff, float32(math.Abs(st.Frame.X()-p.X())))
		s.MaxYDiff = max(s.MaxYDiff, float32(math.Abs(st.Frame.Y()-p.Y())))
	}
	for i, dst := range s.points() {
		dst[0] = MapCoordTo8Bits(s.FrameX, s.MaxXDiff, float32(pts[i].X()))
		dst[1] = MapCoordTo8Bits(s.FrameY, s.MaxYDiff, float32(pts[i].Y()))
	}

	if span := cfg.EngineRPMMax - cfg.EngineRPMMin; span > 0 {
		s.RPM = clampByte(int((st.RPM - cfg.EngineRPMMin) / span * 255))
	}
	return s
}

// ToState decodes the snapshot into a bike state of the same shape the
// physics step produces. The head is derived from the torso.
func (s *Snapshot) ToState(cfg config.PhysicsConfig) physics.BikeState {
	at := func(p [2]int8) mgl64.Vec2 {
		return mgl64.Vec2{
			float64(Map8BitsToCoord(s.FrameX, s.MaxXDiff, p[0])),
			float64(Map8BitsToCoord(s.FrameY, s.MaxYDiff, p[1])),
		}
	}
	st := physics.BikeState{
		Frame:       mgl64.Vec2{float64(s.FrameX), float64(s.FrameY)},
		RearWheel:   at(s.RearWheel),
		FrontWheel:  at(s.FrontWheel),
		FrameRot:    Bits16ToMatrix(s.FrameRot),
		RearRot:     Bits16ToMatrix(s.RearRot),
		FrontRot:    Bits16ToMatrix(s.FrontRot),
		Elbow:       at(s.Elbow),
		Shoulder:    at(s.Shoulder),
		LowerBody:   at(s.LowerBody),
		Knee:        at(s.Knee),
		RPM:         cfg.EngineRPMMin + (cfg.EngineRPMMax-cfg.EngineRPMMin)*float64(s.RPM)/255,
		FacingRight: s.FacingRight(),
	}
	st.Head = physics.HeadPosition(st.Shoulder, st.LowerBody, cfg.NeckLength)
	return st
}

// Interpolate blends two decoded states at fraction f, clamped to [0,1].
// Positions and RPM are linear, rotations take the shorter arc. States
// with different facings do not blend: a is returned.
func Interpolate(a, b physics.BikeState, f float64, cfg config.PhysicsConfig) physics.BikeState {
	f = mgl64.Clamp(f, 0, 1)
	if a.FacingRight != b.FacingRight {
		return a
	}
	lerp := func(p, q mgl64.Vec2) mgl64.Vec2 { return p.Add(q.Sub(p).Mul(f)) }

	out := physics.BikeState{
		Frame:       lerp(a.Frame, b.Frame),
		RearWheel:   lerp(a.RearWheel, b.RearWheel),
		FrontWheel:  lerp(a.FrontWheel, b.FrontWheel),
		FrameRot:    lerpAngle(a.FrameRot, b.FrameRot, f),
		RearRot:     lerpAngle(a.RearRot, b.RearRot, f),
		FrontRot:    lerpAngle(a.FrontRot, b.FrontRot, f),
		Elbow:       lerp(a.Elbow, b.Elbow),
		Shoulder:    lerp(a.Shoulder, b.Shoulder),
		LowerBody:   lerp(a.LowerBody, b.LowerBody),
		Knee:        lerp(a.Knee, b.Knee),
		RPM:         a.RPM + (b.RPM-a.RPM)*f,
		FacingRight: a.FacingRight,
	}
	out.Head = physics.HeadPosition(out.Shoulder, out.LowerBody, cfg.NeckLength)
	return out
}

func lerpAngle(a, b, f float64) float64 {
	d := math.Remainder(b-a, 2*math.Pi)
	return a + d*f
}
