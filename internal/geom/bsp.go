package geom

import (
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Plane tolerances of the convex decomposition. Changing them changes which
// edges are treated as coincident walls and therefore the polygon count of
// existing levels.
const (
	PolyPlaneEps  = 1e-5 // vertex-vs-plane classification
	LinePlaneEps  = 1e-4 // edge endpoint-vs-plane classification
	SplitTLimit   = 1e-4 // accepted overshoot of the intersection parameter
	NormalEqEps   = 1e-4 // coincident walls facing the same way
	DefaultMaxBSP = 256  // recursion guard
	minLeafArea   = 1e-9
	dupVertexEps  = 1e-9
)

type side uint8

const (
	onPlane side = iota
	inFront
	inBack
)

// Options tunes a compilation.
type Options struct {
	// Limits clamps the root quad when non-nil (the level's declared bounds).
	Limits *Rect
	// MaxDepth bounds the recursion; 0 means DefaultMaxBSP.
	MaxDepth int
	// UVOffset is added to positions before texture scaling.
	UVOffset mgl64.Vec2
	// Label prefixes log lines (usually the block id).
	Label string
}

// Result is the output of Compile. ErrorCount counts recoverable anomalies;
// a nonzero value is a quality warning, not a failure.
type Result struct {
	Polygons   []Polygon
	ErrorCount int
}

// compiler owns the edge arena for one compilation. Edge sets are slices of
// indices into lines; split pieces are appended to the arena.
type compiler struct {
	lines    []Edge
	polys    []Polygon
	errors   int
	maxDepth int
	opts     Options
}

// Compile decomposes the solid described by edges into convex polygons.
// Edges are expected to form closed counter-clockwise loops (solid on the
// left of each edge).
func Compile(edges []Edge, opts Options) Result {
	if len(edges) == 0 {
		return Result{}
	}

	c := &compiler{
		lines:    make([]Edge, len(edges), len(edges)*2),
		maxDepth: opts.MaxDepth,
		opts:     opts,
	}
	if c.maxDepth <= 0 {
		c.maxDepth = DefaultMaxBSP
	}
	copy(c.lines, edges)

	box := EmptyRect()
	set := make([]int32, len(edges))
	for i, e := range edges {
		box.Extend(e.P0)
		box.Extend(e.P1)
		set[i] = int32(i)
	}
	if opts.Limits != nil {
		box = box.Clamp(*opts.Limits)
	}
	if box.IsEmpty() {
		c.errors++
		c.warn("bounding box empty after clamping to limits")
		return Result{ErrorCount: c.errors}
	}

	root := []mgl64.Vec2{
		{box.Min.X(), box.Min.Y()},
		{box.Max.X(), box.Min.Y()},
		{box.Max.X(), box.Max.Y()},
		{box.Min.X(), box.Max.Y()},
	}
	c.recurse(root, set, 0)

	return Result{Polygons: c.polys, ErrorCount: c.errors}
}

// CompileOutline is a convenience wrapper for a single closed vertex loop.
func CompileOutline(vertices []mgl64.Vec2, opts Options) Result {
	return Compile(OutlineEdges(vertices), opts)
}

func (c *compiler) recurse(space []mgl64.Vec2, set []int32, depth int) {
	if depth >= c.maxDepth {
		c.errors++
		c.warn("recursion depth %d reached, closing subspace as leaf", depth)
		c.leaf(space, set)
		return
	}

	best := c.findBestSplitter(set)
	if best < 0 {
		c.leaf(space, set)
		return
	}

	splitter := c.lines[best]
	front, back := c.splitLines(set, splitter)
	frontSpace, backSpace := c.splitPoly(space, splitter, true)

	if len(frontSpace) > 0 {
		c.recurse(frontSpace, front, depth+1)
	}
	if len(backSpace) > 0 {
		c.recurse(backSpace, back, depth+1)
	}
}

// leaf cuts the subspace by every remaining edge, keeping the front part.
func (c *compiler) leaf(space []mgl64.Vec2, set []int32) {
	poly := space
	for _, idx := range set {
		if len(poly) == 0 {
			break
		}
		poly, _ = c.splitPoly(poly, c.lines[idx], false)
	}

	poly = dedupe(poly)
	if len(poly) == 0 {
		// Fully cut away: the subspace lies outside the solid.
		return
	}
	if len(poly) < 3 || SignedArea(poly) <= minLeafArea {
		c.errors++
		c.warn("degenerate leaf with %d vertices discarded", len(poly))
		return
	}

	out := Polygon{Vertices: make([]Vertex, len(poly))}
	for i, p := range poly {
		out.Vertices[i] = Vertex{Pos: p, UV: p.Add(c.opts.UVOffset).Mul(TextureScale)}
	}
	c.polys = append(c.polys, out)
}

// findBestSplitter returns the arena index of the lowest scoring edge that
// leaves something on both sides, or -1.
func (c *compiler) findBestSplitter(set []int32) int32 {
	best := int32(-1)
	bestScore := -1
	for _, cand := range set {
		front, back, splits := c.probe(set, c.lines[cand])
		if front == 0 || back == 0 {
			continue
		}
		score := abs(back-front) + 2*splits
		if bestScore == -1 || score < bestScore {
			best = cand
			bestScore = score
		}
	}
	return best
}

func (c *compiler) probe(set []int32, s Edge) (front, back, splits int) {
	for _, idx := range set {
		switch classifyLine(c.lines[idx], s) {
		case inFront:
			front++
		case inBack:
			back++
		default:
			front++
			back++
			splits++
		}
	}
	return front, back, splits
}

// classifyLine returns onPlane when the edge straddles the splitter and must
// be cut.
func classifyLine(l, s Edge) side {
	r0 := classify(s, l.P0, LinePlaneEps)
	r1 := classify(s, l.P1, LinePlaneEps)

	switch {
	case (r0 == inFront && r1 != inBack) || (r1 == inFront && r0 != inBack):
		return inFront
	case (r0 == inBack && r1 != inFront) || (r1 == inBack && r0 != inFront):
		return inBack
	case r0 == onPlane && r1 == onPlane:
		// Coincident wall. One facing the same way bounds the front (solid)
		// side of the plane, so it stays with the front subspace; one facing
		// the other way bounds the back side.
		if almostEqual(l.Normal, s.Normal) {
			return inFront
		}
		return inBack
	}
	return onPlane
}

func (c *compiler) splitLines(set []int32, s Edge) (front, back []int32) {
	front = make([]int32, 0, len(set))
	back = make([]int32, 0, len(set))

	for _, idx := range set {
		l := c.lines[idx]
		switch classifyLine(l, s) {
		case inFront:
			front = append(front, idx)
		case inBack:
			back = append(back, idx)
		default:
			v := l.P1.Sub(l.P0)
			den := v.Dot(s.Normal)
			if den == 0 {
				c.errors++
				c.warn("zero denominator splitting edge %v-%v", l.P0, l.P1)
				continue
			}
			t := -s.Normal.Dot(l.P0.Sub(s.P0)) / den
			if t <= -SplitTLimit || t >= 1+SplitTLimit {
				c.errors++
				c.warn("intersection parameter %.6f out of range", t)
				continue
			}
			sect := l.P0.Add(v.Mul(t))
			a, okA := NewEdge(l.P0, sect)
			b, okB := NewEdge(sect, l.P1)

			// The piece holding P0 goes to P0's side.
			p0Front := classify(s, l.P0, LinePlaneEps) == inFront
			if okA {
				id := c.push(a)
				if p0Front {
					front = append(front, id)
				} else {
					back = append(back, id)
				}
			}
			if okB {
				id := c.push(b)
				if p0Front {
					back = append(back, id)
				} else {
					front = append(front, id)
				}
			}
		}
	}
	return front, back
}

// splitPoly splits a convex loop by the splitter's plane. When wantBack is
// false the back loop is not built.
func (c *compiler) splitPoly(poly []mgl64.Vec2, s Edge, wantBack bool) (front, back []mgl64.Vec2) {
	if len(poly) == 0 {
		c.errors++
		c.warn("empty polygon encountered")
		return nil, nil
	}

	rels := make([]side, len(poly))
	var nFront, nBack int
	for i, p := range poly {
		rels[i] = classify(s, p, PolyPlaneEps)
		switch rels[i] {
		case inFront:
			nFront++
		case inBack:
			nBack++
		}
	}

	switch {
	case nFront == 0 && nBack == 0:
		c.errors++
		c.warn("polygon fully plane aligned")
		return nil, nil
	case nBack == 0:
		return append([]mgl64.Vec2(nil), poly...), nil
	case nFront == 0:
		if wantBack {
			back = append([]mgl64.Vec2(nil), poly...)
		}
		return nil, back
	}

	front = make([]mgl64.Vec2, 0, len(poly)+2)
	if wantBack {
		back = make([]mgl64.Vec2, 0, len(poly)+2)
	}
	for i, p := range poly {
		j := (i + 1) % len(poly)
		split := false

		switch rels[i] {
		case onPlane:
			front = append(front, p)
			if wantBack {
				back = append(back, p)
			}
		case inFront:
			front = append(front, p)
			split = rels[j] == inBack
		case inBack:
			if wantBack {
				back = append(back, p)
			}
			split = rels[j] == inFront
		}
		if !split {
			continue
		}

		v := poly[j].Sub(p)
		den := v.Dot(s.Normal)
		if den == 0 {
			c.errors++
			c.warn("zero denominator splitting polygon")
			continue
		}
		t := -s.Normal.Dot(p.Sub(s.P0)) / den
		if t > -SplitTLimit && t < 1+SplitTLimit {
			sect := p.Add(v.Mul(t))
			front = append(front, sect)
			if wantBack {
				back = append(back, sect)
			}
		}
	}
	return front, back
}

func (c *compiler) push(e Edge) int32 {
	c.lines = append(c.lines, e)
	return int32(len(c.lines) - 1)
}

func (c *compiler) warn(format string, args ...interface{}) {
	if c.opts.Label != "" {
		format = "[" + c.opts.Label + "] " + format
	}
	log.Printf("⚠️ BSP: "+format, args...)
}

// classify places p relative to the splitter: front is the side the normal
// points away from (the solid side for CCW input).
func classify(s Edge, p mgl64.Vec2, eps float64) side {
	d := s.Normal.Dot(s.P0.Sub(p))
	switch {
	case math.Abs(d) < eps:
		return onPlane
	case d < 0:
		return inBack
	default:
		return inFront
	}
}

func almostEqual(a, b mgl64.Vec2) bool {
	return math.Abs(a.X()-b.X()) < NormalEqEps && math.Abs(a.Y()-b.Y()) < NormalEqEps
}

// dedupe drops consecutive duplicate points, including last-vs-first.
func dedupe(poly []mgl64.Vec2) []mgl64.Vec2 {
	if len(poly) < 2 {
		return poly
	}
	out := poly[:0:0]
	for _, p := range poly {
		if len(out) > 0 && out[len(out)-1].ApproxEqualThreshold(p, dupVertexEps) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0].ApproxEqualThreshold(out[len(out)-1], dupVertexEps) {
		out = out[:len(out)-1]
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
