// Package level holds the source level model handed over by the level
// parser, its compilation into convex polygons and the compiled-level cache.
package level

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/geom"
)

// Sentinel errors
var (
	ErrInvalidLevel = errors.New("invalid level")
)

// DefaultGrip is the surface grip of blocks that do not set one.
const DefaultGrip = 20.0

// EntityKind identifies what a level entity does when the bike touches it.
type EntityKind string

const (
	KindPlayerStart    EntityKind = "PlayerStart"
	KindStrawberry     EntityKind = "Strawberry"
	KindWrecker        EntityKind = "Wrecker"
	KindEndOfLevel     EntityKind = "EndOfLevel"
	KindCheckpoint     EntityKind = "Checkpoint"
	KindParticleSource EntityKind = "ParticleSource"
	KindSprite         EntityKind = "Sprite"
	KindDummy          EntityKind = "Dummy"
)

var validKinds = map[EntityKind]bool{
	KindPlayerStart: true, KindStrawberry: true, KindWrecker: true, KindEndOfLevel: true,
	KindCheckpoint: true, KindParticleSource: true, KindSprite: true, KindDummy: true,
}

// BlockDef is a designer-authored block. Vertices are block-local; the
// block sits at Position.
type BlockDef struct {
	ID           string       `json:"id" msgpack:"id"`
	Position     mgl64.Vec2   `json:"position" msgpack:"pos"`
	Vertices     []mgl64.Vec2 `json:"vertices" msgpack:"verts"`
	Grip         float64      `json:"grip,omitempty" msgpack:"grip"`
	Background   bool         `json:"background,omitempty" msgpack:"bg"`
	Dynamic      bool         `json:"dynamic,omitempty" msgpack:"dyn"`
	TextureScale float64      `json:"textureScale,omitempty" msgpack:"ts"`
	EdgeEffects  []string     `json:"edgeEffects,omitempty" msgpack:"fx"`
}

// EntityDef is a level entity as authored.
type EntityDef struct {
	ID       string     `json:"id" msgpack:"id"`
	Kind     EntityKind `json:"kind" msgpack:"kind"`
	Position mgl64.Vec2 `json:"position" msgpack:"pos"`
	Radius   float64    `json:"radius" msgpack:"r"`
}

// ZoneDef is a named set of boxes.
type ZoneDef struct {
	ID    string      `json:"id" msgpack:"id"`
	Boxes []geom.Rect `json:"boxes" msgpack:"boxes"`
}

// MotionDef starts a continuous dynamic-block motion when the level begins.
// Kind is "rotation", "translation" or "selfRotation".
type MotionDef struct {
	Block  string     `json:"block" msgpack:"block"`
	Kind   string     `json:"kind" msgpack:"kind"`
	Radius float64    `json:"radius,omitempty" msgpack:"r"`
	Offset mgl64.Vec2 `json:"offset,omitempty" msgpack:"off"`
	Period float64    `json:"period" msgpack:"period"` // seconds per cycle
	Count  int        `json:"count,omitempty" msgpack:"n"` // 0 runs forever
}

// Source is the parsed level description.
type Source struct {
	ID       string      `json:"id" msgpack:"id"`
	Name     string      `json:"name" msgpack:"name"`
	Limits   geom.Rect   `json:"limits" msgpack:"limits"`
	Gravity  float64     `json:"gravity,omitempty" msgpack:"g"`
	Blocks   []BlockDef  `json:"blocks" msgpack:"blocks"`
	Entities []EntityDef `json:"entities" msgpack:"entities"`
	Zones    []ZoneDef   `json:"zones,omitempty" msgpack:"zones"`
	Motions  []MotionDef `json:"motions,omitempty" msgpack:"motions"`

	// Hash is the hex SHA-256 of the bytes the source was decoded from.
	Hash string `json:"-" msgpack:"-"`
}

// Load decodes and validates a level description.
func Load(r io.Reader) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read level: %w", err)
	}
	return Parse(data)
}

// LoadFile reads a level description from disk.
func LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read level %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a level description, fills defaults and normalizes every
// block outline to counter-clockwise winding.
func Parse(data []byte) (*Source, error) {
	var src Source
	if err := json.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}
	sum := sha256.Sum256(data)
	src.Hash = hex.EncodeToString(sum[:])

	if err := src.normalize(); err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *Source) normalize() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing level id", ErrInvalidLevel)
	}

	seen := make(map[string]bool, len(s.Blocks))
	for i := range s.Blocks {
		b := &s.Blocks[i]
		if b.ID == "" {
			b.ID = fmt.Sprintf("block%d", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("%w: duplicate block id %q", ErrInvalidLevel, b.ID)
		}
		seen[b.ID] = true

		if len(b.Vertices) < 3 {
			return fmt.Errorf("%w: block %q has %d vertices", ErrInvalidLevel, b.ID, len(b.Vertices))
		}
		if b.Grip == 0 {
			b.Grip = DefaultGrip
		}
		if b.TextureScale == 0 {
			b.TextureScale = 1
		}
		if geom.SignedArea(b.Vertices) < 0 {
			reverse(b.Vertices)
			b.EdgeEffects = reverseEdgeTags(b.EdgeEffects)
		}
	}

	ents := make(map[string]bool, len(s.Entities))
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.ID == "" {
			e.ID = fmt.Sprintf("entity%d", i)
		}
		if ents[e.ID] {
			return fmt.Errorf("%w: duplicate entity id %q", ErrInvalidLevel, e.ID)
		}
		ents[e.ID] = true
		if !validKinds[e.Kind] {
			return fmt.Errorf("%w: entity %q has unknown kind %q", ErrInvalidLevel, e.ID, e.Kind)
		}
		if e.Radius <= 0 {
			e.Radius = 0.5
		}
	}

	for _, m := range s.Motions {
		if !seen[m.Block] {
			return fmt.Errorf("%w: motion references unknown block %q", ErrInvalidLevel, m.Block)
		}
	}
	return nil
}

// reverseEdgeTags remaps per-edge tags after the vertex loop was reversed:
// edge k of the reversed loop is edge n-2-k of the original.
func reverseEdgeTags(tags []string) []string {
	n := len(tags)
	if n == 0 {
		return tags
	}
	out := make([]string, n)
	for k := range out {
		out[k] = tags[((n-2-k)%n+n)%n]
	}
	return out
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
