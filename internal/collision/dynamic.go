package collision

import (
	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/geom"
)

// Line is one collision segment. Normal points out of the solid (the right
// normal of a counter-clockwise outline).
type Line struct {
	P0, P1 mgl64.Vec2
	Normal mgl64.Vec2
	Grip   float64
}

// Bounds returns the segment's bounding box.
func (l Line) Bounds() geom.Rect {
	r := geom.EmptyRect()
	r.Extend(l.P0)
	r.Extend(l.P1)
	return r
}

func lineFromEdge(e geom.Edge, grip float64) Line {
	return Line{P0: e.P0, P1: e.P1, Normal: e.Normal, Grip: grip}
}

// DynamicBlock is a movable piece of level geometry. Its line buffer is
// sized once from the block outline and overwritten on every transform
// change; the number of lines never changes.
type DynamicBlock struct {
	ID   string
	Grip float64

	local    []geom.Edge // block-local outline
	lines    []Line      // world space, len(lines) == len(local)
	bounds   geom.Rect
	position mgl64.Vec2
	center   mgl64.Vec2
	rotation float64
}

// NewDynamicBlock builds a block from its block-local CCW outline, placed at
// position with no rotation.
func NewDynamicBlock(id string, outline []mgl64.Vec2, position mgl64.Vec2, grip float64) *DynamicBlock {
	local := geom.OutlineEdges(outline)
	b := &DynamicBlock{
		ID:       id,
		Grip:     grip,
		local:    local,
		lines:    make([]Line, len(local)),
		position: position,
	}
	b.update()
	return b
}

// Position returns the block translation.
func (b *DynamicBlock) Position() mgl64.Vec2 { return b.position }

// Rotation returns the block rotation in radians.
func (b *DynamicBlock) Rotation() float64 { return b.rotation }

// Center returns the local rotation center.
func (b *DynamicBlock) Center() mgl64.Vec2 { return b.center }

// SetPosition moves the block and refreshes its lines.
func (b *DynamicBlock) SetPosition(p mgl64.Vec2) {
	b.position = p
	b.update()
}

// SetRotation rotates the block around its center and refreshes its lines.
func (b *DynamicBlock) SetRotation(angle float64) {
	b.rotation = angle
	b.update()
}

// SetCenter changes the local rotation center.
func (b *DynamicBlock) SetCenter(c mgl64.Vec2) {
	b.center = c
	b.update()
}

// SetTransform sets position and rotation with a single line refresh.
func (b *DynamicBlock) SetTransform(p mgl64.Vec2, angle float64) {
	b.position = p
	b.rotation = angle
	b.update()
}

// Lines returns the world-space line buffer. The slice is owned by the
// block and rewritten on the next transform change.
func (b *DynamicBlock) Lines() []Line { return b.lines }

// Bounds returns the world-space bounding box of the current lines.
func (b *DynamicBlock) Bounds() geom.Rect { return b.bounds }

// TransformPoint maps a block-local point to world space.
func (b *DynamicBlock) TransformPoint(p mgl64.Vec2) mgl64.Vec2 {
	rot := mgl64.Rotate2D(b.rotation)
	return rot.Mul2x1(p.Sub(b.center)).Add(b.position).Add(b.center)
}

func (b *DynamicBlock) update() {
	rot := mgl64.Rotate2D(b.rotation)
	b.bounds = geom.EmptyRect()
	for i, e := range b.local {
		p0 := rot.Mul2x1(e.P0.Sub(b.center)).Add(b.position).Add(b.center)
		p1 := rot.Mul2x1(e.P1.Sub(b.center)).Add(b.position).Add(b.center)
		b.lines[i] = Line{P0: p0, P1: p1, Normal: rot.Mul2x1(e.Normal), Grip: b.Grip}
		b.bounds.Extend(p0)
		b.bounds.Extend(p1)
	}
}
