package level

import (
	"log"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/collision"
	"moto-sim/internal/geom"
)

// CompiledBlock is a block after convex decomposition. Static blocks hold
// world-space polygons; dynamic blocks hold block-local polygons and their
// local outline, transformed at runtime.
type CompiledBlock struct {
	ID         string         `json:"id" msgpack:"id"`
	Position   mgl64.Vec2     `json:"position" msgpack:"pos"`
	Grip       float64        `json:"grip" msgpack:"grip"`
	Background bool           `json:"background" msgpack:"bg"`
	Dynamic    bool           `json:"dynamic" msgpack:"dyn"`
	Outline    []mgl64.Vec2   `json:"outline" msgpack:"outline"`
	Polygons   []geom.Polygon `json:"polygons" msgpack:"polys"`
	Errors     int            `json:"errors" msgpack:"errs"`
}

// Compiled is everything the simulation needs from a level. It is what the
// cache stores, so the compiler can be skipped on unchanged input.
type Compiled struct {
	ID         string          `json:"id" msgpack:"id"`
	Name       string          `json:"name" msgpack:"name"`
	Hash       string          `json:"hash" msgpack:"hash"`
	Bounds     geom.Rect       `json:"bounds" msgpack:"bounds"`
	Gravity    float64         `json:"gravity" msgpack:"g"`
	Blocks     []CompiledBlock `json:"blocks" msgpack:"blocks"`
	Entities   []EntityDef     `json:"entities" msgpack:"entities"`
	Zones      []ZoneDef       `json:"zones" msgpack:"zones"`
	Motions    []MotionDef     `json:"motions" msgpack:"motions"`
	ErrorCount int             `json:"errorCount" msgpack:"errs"`
}

// CompileOptions configures Compile.
type CompileOptions struct {
	MaxDepth int
}

// Compile runs the geometry compiler over every block. Blocks are compiled
// separately; the level error count is the sum over blocks.
func Compile(src *Source, opts CompileOptions) *Compiled {
	out := &Compiled{
		ID:       src.ID,
		Name:     src.Name,
		Hash:     src.Hash,
		Gravity:  src.Gravity,
		Entities: src.Entities,
		Zones:    src.Zones,
		Motions:  src.Motions,
		Blocks:   make([]CompiledBlock, 0, len(src.Blocks)),
	}

	var limits *geom.Rect
	if !src.Limits.IsEmpty() && src.Limits.Width() > 0 && src.Limits.Height() > 0 {
		l := src.Limits
		limits = &l
	}

	bounds := geom.EmptyRect()
	for _, b := range src.Blocks {
		cb := compileBlock(b, limits, opts)
		out.ErrorCount += cb.Errors
		out.Blocks = append(out.Blocks, cb)

		for _, v := range b.Vertices {
			bounds.Extend(v.Add(b.Position))
		}
	}
	if limits != nil {
		bounds = *limits
	}
	out.Bounds = bounds

	if out.ErrorCount > 0 {
		log.Printf("⚠️ Level %s compiled with %d geometry errors", src.ID, out.ErrorCount)
	}
	return out
}

func compileBlock(b BlockDef, limits *geom.Rect, opts CompileOptions) CompiledBlock {
	cb := CompiledBlock{
		ID:         b.ID,
		Position:   b.Position,
		Grip:       b.Grip,
		Background: b.Background,
		Dynamic:    b.Dynamic,
	}

	gopts := geom.Options{MaxDepth: opts.MaxDepth, Label: b.ID}
	if b.Dynamic {
		// Local space; texture follows the block's initial placement.
		cb.Outline = append([]mgl64.Vec2(nil), b.Vertices...)
		gopts.UVOffset = b.Position
	} else {
		cb.Outline = make([]mgl64.Vec2, len(b.Vertices))
		for i, v := range b.Vertices {
			cb.Outline[i] = v.Add(b.Position)
		}
		gopts.Limits = limits
	}

	res := geom.CompileOutline(cb.Outline, gopts)
	if b.TextureScale != 1 {
		for i := range res.Polygons {
			for j := range res.Polygons[i].Vertices {
				v := &res.Polygons[i].Vertices[j]
				v.UV = v.UV.Mul(b.TextureScale)
			}
		}
	}
	cb.Polygons = res.Polygons
	cb.Errors = res.ErrorCount
	return cb
}

// BuildIndex registers the level's collision geometry: static non-background
// outlines go into the grid, dynamic blocks get their own line buffers.
func (c *Compiled) BuildIndex(cellSize float64) *collision.Index {
	ix := collision.NewIndex(c.Bounds, cellSize)
	for _, b := range c.Blocks {
		if b.Background {
			continue
		}
		if b.Dynamic {
			ix.AddDynamic(collision.NewDynamicBlock(b.ID, b.Outline, b.Position, b.Grip))
			continue
		}
		ix.AddStatic(geom.OutlineEdges(b.Outline), b.Grip)
	}
	return ix
}

// PolygonCount returns the number of convex polygons over all blocks.
func (c *Compiled) PolygonCount() int {
	n := 0
	for _, b := range c.Blocks {
		n += len(b.Polygons)
	}
	return n
}

// Block looks a compiled block up by id.
func (c *Compiled) Block(id string) (*CompiledBlock, bool) {
	for i := range c.Blocks {
		if c.Blocks[i].ID == id {
			return &c.Blocks[i], true
		}
	}
	return nil, false
}

// PlayerStart returns the start position, or the origin when absent.
func (c *Compiled) PlayerStart() mgl64.Vec2 {
	for _, e := range c.Entities {
		if e.Kind == KindPlayerStart {
			return e.Position
		}
	}
	return mgl64.Vec2{}
}
