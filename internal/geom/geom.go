// Package geom holds the 2D primitives shared by the level compiler and the
// collision layer: oriented edges, textured vertices, convex polygons and
// axis-aligned boxes.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// TextureScale maps level units to texture space (4 units per texture repeat).
const TextureScale = 0.25

// Edge is an oriented segment with its unit normal (p1-p0 rotated -90°).
// For counter-clockwise outlines the normal points out of the solid.
type Edge struct {
	P0, P1 mgl64.Vec2
	Normal mgl64.Vec2
}

// NewEdge builds an edge and computes its normal. ok is false when the two
// endpoints coincide and no normal exists.
func NewEdge(p0, p1 mgl64.Vec2) (Edge, bool) {
	d := p1.Sub(p0)
	n := mgl64.Vec2{d.Y(), -d.X()}
	l := n.Len()
	if l < 1e-12 {
		return Edge{}, false
	}
	return Edge{P0: p0, P1: p1, Normal: n.Mul(1 / l)}, true
}

// OutlineEdges returns the closed ring of edges for a vertex loop, skipping
// zero-length edges.
func OutlineEdges(vertices []mgl64.Vec2) []Edge {
	edges := make([]Edge, 0, len(vertices))
	for i := range vertices {
		j := (i + 1) % len(vertices)
		if e, ok := NewEdge(vertices[i], vertices[j]); ok {
			edges = append(edges, e)
		}
	}
	return edges
}

// Vertex is a polygon corner with its texture coordinate.
type Vertex struct {
	Pos mgl64.Vec2 `json:"pos" msgpack:"p"`
	UV  mgl64.Vec2 `json:"uv" msgpack:"t"`
}

// Polygon is a convex polygon produced by the geometry compiler.
type Polygon struct {
	Vertices []Vertex `json:"vertices" msgpack:"v"`
}

// SignedArea returns the shoelace area of a vertex loop (positive for CCW).
func SignedArea(points []mgl64.Vec2) float64 {
	var a float64
	for i := range points {
		j := (i + 1) % len(points)
		a += points[i].X()*points[j].Y() - points[j].X()*points[i].Y()
	}
	return a / 2
}

// Points returns the vertex positions.
func (p Polygon) Points() []mgl64.Vec2 {
	pts := make([]mgl64.Vec2, len(p.Vertices))
	for i, v := range p.Vertices {
		pts[i] = v.Pos
	}
	return pts
}

// Area returns the signed area of the polygon.
func (p Polygon) Area() float64 {
	return SignedArea(p.Points())
}

// IsConvex reports whether every turn of the loop is a left turn (collinear
// corners within eps are accepted).
func (p Polygon) IsConvex(eps float64) bool {
	n := len(p.Vertices)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		a := p.Vertices[i].Pos
		b := p.Vertices[(i+1)%n].Pos
		c := p.Vertices[(i+2)%n].Pos
		if cross(b.Sub(a), c.Sub(b)) < -eps {
			return false
		}
	}
	return true
}

// Translate returns a copy of the polygon moved by d.
func (p Polygon) Translate(d mgl64.Vec2) Polygon {
	out := Polygon{Vertices: make([]Vertex, len(p.Vertices))}
	for i, v := range p.Vertices {
		out.Vertices[i] = Vertex{Pos: v.Pos.Add(d), UV: v.UV}
	}
	return out
}

func cross(a, b mgl64.Vec2) float64 {
	return a.X()*b.Y() - a.Y()*b.X()
}

// Rect is an axis-aligned box.
type Rect struct {
	Min mgl64.Vec2 `json:"min" msgpack:"min"`
	Max mgl64.Vec2 `json:"max" msgpack:"max"`
}

// EmptyRect returns an inverted box ready to be grown with Extend.
func EmptyRect() Rect {
	return Rect{
		Min: mgl64.Vec2{math.Inf(1), math.Inf(1)},
		Max: mgl64.Vec2{math.Inf(-1), math.Inf(-1)},
	}
}

// Extend grows the box to contain p.
func (r *Rect) Extend(p mgl64.Vec2) {
	r.Min = mgl64.Vec2{math.Min(r.Min.X(), p.X()), math.Min(r.Min.Y(), p.Y())}
	r.Max = mgl64.Vec2{math.Max(r.Max.X(), p.X()), math.Max(r.Max.Y(), p.Y())}
}

// IsEmpty reports whether the box contains no point.
func (r Rect) IsEmpty() bool {
	return r.Min.X() > r.Max.X() || r.Min.Y() > r.Max.Y()
}

// Overlaps reports whether two boxes intersect (touching counts).
func (r Rect) Overlaps(o Rect) bool {
	return r.Min.X() <= o.Max.X() && o.Min.X() <= r.Max.X() &&
		r.Min.Y() <= o.Max.Y() && o.Min.Y() <= r.Max.Y()
}

// Contains reports whether p lies inside the box.
func (r Rect) Contains(p mgl64.Vec2) bool {
	return p.X() >= r.Min.X() && p.X() <= r.Max.X() &&
		p.Y() >= r.Min.Y() && p.Y() <= r.Max.Y()
}

// Clamp intersects the box with limits.
func (r Rect) Clamp(limits Rect) Rect {
	return Rect{
		Min: mgl64.Vec2{math.Max(r.Min.X(), limits.Min.X()), math.Max(r.Min.Y(), limits.Min.Y())},
		Max: mgl64.Vec2{math.Min(r.Max.X(), limits.Max.X()), math.Min(r.Max.Y(), limits.Max.Y())},
	}
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Max.X() - r.Min.X() }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Max.Y() - r.Min.Y() }
