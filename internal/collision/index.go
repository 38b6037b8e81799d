package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/geom"
)

const (
	minLineExtent = 0.0001
	endpointSlack = 0.0001
	minDepth      = 0.01 // shallower contacts are reported with zero depth
	mergeDistance = 0.1  // contacts closer than this on both axes are merged
)

// Contact is one wheel/ground (or head/ground) touch point.
type Contact struct {
	Pos     mgl64.Vec2
	Normal  mgl64.Vec2 // unit, pointing away from the surface
	Depth   float64
	Grip    float64
	Dynamic bool
}

// Index holds the static lines in a Grid plus the dynamic blocks, which are
// tested by bounding box.
type Index struct {
	grid    *Grid
	lines   []Line
	dynamic []*DynamicBlock

	dynamicTouched bool
}

// NewIndex creates an empty index over bounds.
func NewIndex(bounds geom.Rect, cellSize float64) *Index {
	return &Index{grid: NewGrid(bounds, cellSize)}
}

// AddStatic registers immutable lines for the given edges.
func (ix *Index) AddStatic(edges []geom.Edge, grip float64) {
	for _, e := range edges {
		l := lineFromEdge(e, grip)
		id := uint32(len(ix.lines))
		ix.lines = append(ix.lines, l)
		ix.grid.Insert(id, l.Bounds())
	}
}

// AddDynamic registers a dynamic block. The index reads its line buffer on
// every query, so transform changes need no re-registration.
func (ix *Index) AddDynamic(b *DynamicBlock) {
	ix.dynamic = append(ix.dynamic, b)
}

// DynamicBlocks returns the registered dynamic blocks.
func (ix *Index) DynamicBlocks() []*DynamicBlock { return ix.dynamic }

// DynamicBlock looks a dynamic block up by id.
func (ix *Index) DynamicBlock(id string) (*DynamicBlock, bool) {
	for _, b := range ix.dynamic {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// StaticLines returns the immutable lines (read-only).
func (ix *Index) StaticLines() []Line { return ix.lines }

// Stats returns grid statistics.
func (ix *Index) Stats() GridStats { return ix.grid.Stats() }

// DynamicTouched reports whether a CollideCircle or CollideLine call since
// the last ClearDynamicTouched produced a contact on a dynamic block.
func (ix *Index) DynamicTouched() bool { return ix.dynamicTouched }

// ClearDynamicTouched resets the dynamic-touch flag.
func (ix *Index) ClearDynamicTouched() { ix.dynamicTouched = false }

// CollideCircle appends to dst the contacts of a circle with the geometry,
// stopping at maxContacts entries in dst.
func (ix *Index) CollideCircle(center mgl64.Vec2, r float64, maxContacts int, dst []Contact) []Contact {
	box := circleBox(center, r)

	for _, b := range ix.dynamic {
		if !b.bounds.Overlaps(box) {
			continue
		}
		for _, l := range b.lines {
			n := len(dst)
			dst = collideCircleLine(l, center, r, maxContacts, true, dst)
			if len(dst) != n {
				ix.dynamicTouched = true
			}
		}
	}

	for _, id := range ix.grid.Query(box) {
		dst = collideCircleLine(ix.lines[id], center, r, maxContacts, false, dst)
	}
	return dst
}

// CheckCircle reports whether the circle touches any line.
func (ix *Index) CheckCircle(center mgl64.Vec2, r float64) bool {
	box := circleBox(center, r)

	for _, b := range ix.dynamic {
		if !b.bounds.Overlaps(box) {
			continue
		}
		for _, l := range b.lines {
			if checkCircleLine(l, center, r) {
				return true
			}
		}
	}
	for _, id := range ix.grid.Query(box) {
		if checkCircleLine(ix.lines[id], center, r) {
			return true
		}
	}
	return false
}

// CollideLine appends to dst the intersections of segment p0-p1 with the
// geometry. Contacts have zero depth.
func (ix *Index) CollideLine(p0, p1 mgl64.Vec2, maxContacts int, dst []Contact) []Contact {
	box := geom.EmptyRect()
	box.Extend(p0)
	box.Extend(p1)

	for _, b := range ix.dynamic {
		if !b.bounds.Overlaps(box) {
			continue
		}
		for _, l := range b.lines {
			n := len(dst)
			dst = collideSegmentLine(l, p0, p1, maxContacts, true, dst)
			if len(dst) != n {
				ix.dynamicTouched = true
			}
		}
	}
	for _, id := range ix.grid.Query(box) {
		dst = collideSegmentLine(ix.lines[id], p0, p1, maxContacts, false, dst)
	}
	return dst
}

func circleBox(c mgl64.Vec2, r float64) geom.Rect {
	return geom.Rect{
		Min: mgl64.Vec2{c.X() - r, c.Y() - r},
		Max: mgl64.Vec2{c.X() + r, c.Y() + r},
	}
}

func degenerate(l Line) bool {
	v := l.P1.Sub(l.P0)
	return math.Abs(v.X()) < minLineExtent && math.Abs(v.Y()) < minLineExtent
}

// behind reports whether p is on the solid side of l.
func behind(l Line, p mgl64.Vec2) bool {
	return l.Normal.Dot(p.Sub(l.P0)) < 0
}

func checkCircleLine(l Line, c mgl64.Vec2, r float64) bool {
	if behind(l, c) || degenerate(l) {
		return false
	}
	if l.P0.Sub(c).LenSqr() <= r*r || l.P1.Sub(c).LenSqr() <= r*r {
		return true
	}
	_, _, n := segmentCircle(c, r, l.P0, l.P1)
	return n > 0
}

func collideCircleLine(l Line, c mgl64.Vec2, r float64, maxContacts int, dynamic bool, dst []Contact) []Contact {
	if behind(l, c) || degenerate(l) {
		return dst
	}

	for _, p := range [2]mgl64.Vec2{l.P0, l.P1} {
		d := c.Sub(p)
		dist := d.Len()
		if dist > r+endpointSlack {
			continue
		}
		n := l.Normal
		if dist > 0 {
			n = d.Mul(1 / dist)
		}
		dst = addContact(dst, maxContacts, Contact{
			Pos: p, Normal: n, Depth: clampDepth(r - dist), Grip: l.Grip, Dynamic: dynamic,
		})
	}

	t1, t2, n := segmentCircle(c, r, l.P0, l.P1)
	if n > 0 {
		depth := clampDepth(r - math.Abs(l.Normal.Dot(l.P0.Sub(c))))
		dst = addContact(dst, maxContacts, Contact{
			Pos: t1, Normal: l.Normal, Depth: depth, Grip: l.Grip, Dynamic: dynamic,
		})
		if n > 1 {
			dst = addContact(dst, maxContacts, Contact{
				Pos: t2, Normal: l.Normal, Depth: depth, Grip: l.Grip, Dynamic: dynamic,
			})
		}
	}
	return dst
}

func collideSegmentLine(l Line, p0, p1 mgl64.Vec2, maxContacts int, dynamic bool, dst []Contact) []Contact {
	if degenerate(l) {
		return dst
	}
	t, ok := segmentIntersect(p0, p1, l.P0, l.P1)
	if !ok {
		return dst
	}
	return addContact(dst, maxContacts, Contact{Pos: t, Normal: l.Normal, Grip: l.Grip, Dynamic: dynamic})
}

func clampDepth(d float64) float64 {
	if d < minDepth {
		return 0
	}
	return d
}

// addContact appends c unless the list is full or a contact already sits
// within mergeDistance of it.
func addContact(dst []Contact, maxContacts int, c Contact) []Contact {
	if len(dst) >= maxContacts {
		return dst
	}
	for _, o := range dst {
		if math.Abs(o.Pos.X()-c.Pos.X()) < mergeDistance && math.Abs(o.Pos.Y()-c.Pos.Y()) < mergeDistance {
			return dst
		}
	}
	return append(dst, c)
}

// segmentCircle returns the intersections of segment a0-a1 with the circle
// boundary, ordered along the segment.
func segmentCircle(c mgl64.Vec2, r float64, a0, a1 mgl64.Vec2) (mgl64.Vec2, mgl64.Vec2, int) {
	d := a1.Sub(a0)
	f := a0.Sub(c)
	a := d.Dot(d)
	if a == 0 {
		return mgl64.Vec2{}, mgl64.Vec2{}, 0
	}
	b := 2 * f.Dot(d)
	cc := f.Dot(f) - r*r
	disc := b*b - 4*a*cc
	if disc < 0 {
		return mgl64.Vec2{}, mgl64.Vec2{}, 0
	}
	sq := math.Sqrt(disc)
	ta := (-b - sq) / (2 * a)
	tb := (-b + sq) / (2 * a)

	var pts [2]mgl64.Vec2
	n := 0
	if ta >= 0 && ta <= 1 {
		pts[n] = a0.Add(d.Mul(ta))
		n++
	}
	if tb >= 0 && tb <= 1 && disc > 0 {
		pts[n] = a0.Add(d.Mul(tb))
		n++
	}
	return pts[0], pts[1], n
}

// segmentIntersect returns the crossing point of segments a and b.
// Parallel segments never intersect.
func segmentIntersect(a0, a1, b0, b1 mgl64.Vec2) (mgl64.Vec2, bool) {
	da := a1.Sub(a0)
	db := b1.Sub(b0)
	den := da.X()*db.Y() - da.Y()*db.X()
	if den == 0 {
		return mgl64.Vec2{}, false
	}
	w := b0.Sub(a0)
	s := (w.X()*db.Y() - w.Y()*db.X()) / den
	t := (w.X()*da.Y() - w.Y()*da.X()) / den
	if s < 0 || s > 1 || t < 0 || t > 1 {
		return mgl64.Vec2{}, false
	}
	return a0.Add(da.Mul(s)), true
}
