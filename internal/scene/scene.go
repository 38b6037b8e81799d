// Package scene is the mutable world state of one running level: live and
// destroyed entities, zones, dynamic block placement, gravity and the
// presentation hints (camera, arrow, messages) that events write.
//
// A Scene is owned by exactly one simulation loop and is not safe for
// concurrent use. Scripts and events receive it as an explicit handle.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/collision"
	"moto-sim/internal/geom"
	"moto-sim/internal/level"
)

// Lookup errors returned by mutators.
var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrUnknownBlock  = errors.New("unknown dynamic block")
	ErrUnknownZone   = errors.New("unknown zone")
	ErrNoPlayer      = errors.New("no player attached")
)

// Entity is a live or destroyed level object.
type Entity struct {
	ID       string           `json:"id"`
	Kind     level.EntityKind `json:"kind"`
	Position mgl64.Vec2       `json:"position"`
	Radius   float64          `json:"radius"`
	Touched  bool             `json:"touched"`
}

// Zone is a set of boxes plus whether the player is currently inside.
type Zone struct {
	ID     string      `json:"id"`
	Boxes  []geom.Rect `json:"boxes"`
	Inside bool        `json:"inside"`
}

// Contains reports whether any box of the zone contains p.
func (z *Zone) Contains(p mgl64.Vec2) bool {
	for _, b := range z.Boxes {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// Arrow is the pointer hint shown to the player.
type Arrow struct {
	Visible bool       `json:"visible"`
	InGame  bool       `json:"inGame"` // world coordinates when true, screen otherwise
	Pos     mgl64.Vec2 `json:"pos"`
	Angle   float64    `json:"angle"`
}

// Camera holds the script-controlled camera adjustments.
type Camera struct {
	Zoom     float64    `json:"zoom"`
	Offset   mgl64.Vec2 `json:"offset"`
	Rotation float64    `json:"rotation"`
}

// Block is a dynamic block's script-visible placement. The collision lines
// follow base + motion displacement.
type Block struct {
	dyn     *collision.DynamicBlock
	basePos mgl64.Vec2
	baseRot float64
	motion  Motion
}

// Position returns the base position (without motion displacement).
func (b *Block) Position() mgl64.Vec2 { return b.basePos }

// Rotation returns the base rotation.
func (b *Block) Rotation() float64 { return b.baseRot }

// Center returns the rotation center.
func (b *Block) Center() mgl64.Vec2 { return b.dyn.Center() }

// Motion returns the active motion.
func (b *Block) Motion() Motion { return b.motion }

// Player is the hook through which events reach the bike.
type Player interface {
	PlayerPosition() (pos mgl64.Vec2, facingRight bool)
	SetPlayerPosition(pos mgl64.Vec2, facingRight bool)
	AddPlayerForce(force mgl64.Vec2, start, end float64)
}

// Scene is the runtime world state.
type Scene struct {
	live      map[string]*Entity
	destroyed map[string]*Entity
	zones     []*Zone
	blocks    map[string]*Block
	index     *collision.Index

	gravity  mgl64.Vec2
	camera   Camera
	arrow    Arrow
	messages []string
	penalty  float64
	time     float64
	dead     bool
	won      bool

	player Player
}

// New builds the scene for a compiled level. index must be the collision
// index built from the same level.
func New(lvl *level.Compiled, index *collision.Index, gravity float64) *Scene {
	if lvl.Gravity != 0 {
		gravity = lvl.Gravity
	}
	s := &Scene{
		live:      make(map[string]*Entity, len(lvl.Entities)),
		destroyed: make(map[string]*Entity),
		blocks:    make(map[string]*Block),
		index:     index,
		gravity:   mgl64.Vec2{0, -gravity},
		camera:    Camera{Zoom: 1},
	}
	for _, e := range lvl.Entities {
		s.live[e.ID] = &Entity{ID: e.ID, Kind: e.Kind, Position: e.Position, Radius: e.Radius}
	}
	for _, z := range lvl.Zones {
		s.zones = append(s.zones, &Zone{ID: z.ID, Boxes: z.Boxes})
	}
	for _, d := range index.DynamicBlocks() {
		s.blocks[d.ID] = &Block{dyn: d, basePos: d.Position(), baseRot: d.Rotation()}
	}
	return s
}

// AttachPlayer sets the bike hook used by player events.
func (s *Scene) AttachPlayer(p Player) { s.player = p }

// PlayerHook returns the attached player or ErrNoPlayer.
func (s *Scene) PlayerHook() (Player, error) {
	if s.player == nil {
		return nil, ErrNoPlayer
	}
	return s.player, nil
}

// Index returns the collision index.
func (s *Scene) Index() *collision.Index { return s.index }

// Time returns the game time of the last motion update.
func (s *Scene) Time() float64 { return s.time }

// =============================================================================
// ENTITIES
// =============================================================================

// Entity returns a live entity.
func (s *Scene) Entity(id string) (*Entity, bool) {
	e, ok := s.live[id]
	return e, ok
}

// IsDestroyed reports whether id sits in the destroyed table.
func (s *Scene) IsDestroyed(id string) bool {
	_, ok := s.destroyed[id]
	return ok
}

// LiveEntities returns the live entities sorted by id.
func (s *Scene) LiveEntities() []*Entity {
	return sortedEntities(s.live)
}

// DestroyedEntities returns the destroyed entities sorted by id.
func (s *Scene) DestroyedEntities() []*Entity {
	return sortedEntities(s.destroyed)
}

func sortedEntities(m map[string]*Entity) []*Entity {
	out := make([]*Entity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DestroyEntity moves a live entity to the destroyed table.
func (s *Scene) DestroyEntity(id string) error {
	e, ok := s.live[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	delete(s.live, id)
	s.destroyed[id] = e
	return nil
}

// RestoreEntity moves a destroyed entity back to the live set.
func (s *Scene) RestoreEntity(id string) error {
	e, ok := s.destroyed[id]
	if !ok {
		return fmt.Errorf("%w: %s not destroyed", ErrUnknownEntity, id)
	}
	delete(s.destroyed, id)
	s.live[id] = e
	return nil
}

// SetEntityPosition moves a live entity and returns its previous position.
func (s *Scene) SetEntityPosition(id string, p mgl64.Vec2) (mgl64.Vec2, error) {
	e, ok := s.live[id]
	if !ok {
		return mgl64.Vec2{}, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	prev := e.Position
	e.Position = p
	return prev, nil
}

// SetEntityTouched sets the touched flag and returns the previous value.
func (s *Scene) SetEntityTouched(id string, touched bool) (bool, error) {
	e, ok := s.live[id]
	if !ok {
		e, ok = s.destroyed[id]
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	prev := e.Touched
	e.Touched = touched
	return prev, nil
}

// CountLive returns how many live entities have the given kind.
func (s *Scene) CountLive(kind level.EntityKind) int {
	n := 0
	for _, e := range s.live {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Touching returns the live entities whose circle overlaps any of the given
// circles, sorted by id.
func (s *Scene) Touching(centers []mgl64.Vec2, radius float64) []*Entity {
	var out []*Entity
	for _, e := range s.live {
		for _, c := range centers {
			r := e.Radius + radius
			if e.Position.Sub(c).LenSqr() <= r*r {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// ZONES
// =============================================================================

// Zones returns the zones in level order.
func (s *Scene) Zones() []*Zone { return s.zones }

// Zone looks a zone up by id.
func (s *Scene) Zone(id string) (*Zone, bool) {
	for _, z := range s.zones {
		if z.ID == id {
			return z, true
		}
	}
	return nil, false
}

// SetZoneInside sets a zone's flag and returns the previous value.
func (s *Scene) SetZoneInside(id string, inside bool) (bool, error) {
	z, ok := s.Zone(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownZone, id)
	}
	prev := z.Inside
	z.Inside = inside
	return prev, nil
}

// ZoneTransition is a change of membership detected by ZoneTransitions.
type ZoneTransition struct {
	ZoneID string
	Enter  bool
}

// ZoneTransitions compares the zone flags against the given sample points
// and returns the changes without applying them.
func (s *Scene) ZoneTransitions(points []mgl64.Vec2) []ZoneTransition {
	var out []ZoneTransition
	for _, z := range s.zones {
		in := false
		for _, p := range points {
			if z.Contains(p) {
				in = true
				break
			}
		}
		if in != z.Inside {
			out = append(out, ZoneTransition{ZoneID: z.ID, Enter: in})
		}
	}
	return out
}

// =============================================================================
// DYNAMIC BLOCKS
// =============================================================================

// Block looks a dynamic block up by id.
func (s *Scene) Block(id string) (*Block, error) {
	b, ok := s.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	return b, nil
}

// SetBlockPosition sets a block's base position and returns the previous one.
func (s *Scene) SetBlockPosition(id string, p mgl64.Vec2) (mgl64.Vec2, error) {
	b, err := s.Block(id)
	if err != nil {
		return mgl64.Vec2{}, err
	}
	prev := b.basePos
	b.basePos = p
	s.refresh(b)
	return prev, nil
}

// SetBlockRotation sets a block's base rotation and returns the previous one.
func (s *Scene) SetBlockRotation(id string, angle float64) (float64, error) {
	b, err := s.Block(id)
	if err != nil {
		return 0, err
	}
	prev := b.baseRot
	b.baseRot = angle
	s.refresh(b)
	return prev, nil
}

// SetBlockCenter sets a block's rotation center and returns the previous one.
func (s *Scene) SetBlockCenter(id string, c mgl64.Vec2) (mgl64.Vec2, error) {
	b, err := s.Block(id)
	if err != nil {
		return mgl64.Vec2{}, err
	}
	prev := b.dyn.Center()
	b.dyn.SetCenter(c)
	return prev, nil
}

// SetBlockMotion replaces a block's motion and returns the previous one.
func (s *Scene) SetBlockMotion(id string, m Motion) (Motion, error) {
	b, err := s.Block(id)
	if err != nil {
		return Motion{}, err
	}
	prev := b.motion
	b.motion = m
	s.refresh(b)
	return prev, nil
}

// UpdateMotions moves every dynamic block to its placement at game time t.
func (s *Scene) UpdateMotions(t float64) {
	s.time = t
	for _, b := range s.blocks {
		if b.motion.Kind != MotionNone {
			s.refresh(b)
		}
	}
}

func (s *Scene) refresh(b *Block) {
	d, a := b.motion.Displacement(s.time)
	b.dyn.SetTransform(b.basePos.Add(d), b.baseRot+a)
}

// =============================================================================
// ENVIRONMENT & PRESENTATION
// =============================================================================

// Gravity returns the gravity vector.
func (s *Scene) Gravity() mgl64.Vec2 { return s.gravity }

// SetGravity sets the gravity vector and returns the previous one.
func (s *Scene) SetGravity(g mgl64.Vec2) mgl64.Vec2 {
	prev := s.gravity
	s.gravity = g
	return prev
}

// Camera returns the camera adjustments.
func (s *Scene) Camera() Camera { return s.camera }

// SetCamera replaces the camera adjustments and returns the previous ones.
func (s *Scene) SetCamera(c Camera) Camera {
	prev := s.camera
	s.camera = c
	return prev
}

// Arrow returns the arrow hint.
func (s *Scene) Arrow() Arrow { return s.arrow }

// SetArrow replaces the arrow hint and returns the previous one.
func (s *Scene) SetArrow(a Arrow) Arrow {
	prev := s.arrow
	s.arrow = a
	return prev
}

// Messages returns the on-screen messages, oldest first.
func (s *Scene) Messages() []string { return s.messages }

// PushMessage appends a message.
func (s *Scene) PushMessage(m string) { s.messages = append(s.messages, m) }

// PopMessage removes the newest message.
func (s *Scene) PopMessage() {
	if len(s.messages) > 0 {
		s.messages = s.messages[:len(s.messages)-1]
	}
}

// ReplaceMessages sets the message list and returns the previous one.
func (s *Scene) ReplaceMessages(m []string) []string {
	prev := s.messages
	s.messages = m
	return prev
}

// Penalty returns the accumulated penalty time in seconds.
func (s *Scene) Penalty() float64 { return s.penalty }

// AddPenalty adds (or with a negative value removes) penalty seconds.
func (s *Scene) AddPenalty(sec float64) { s.penalty += sec }

// Dead reports whether the player died.
func (s *Scene) Dead() bool { return s.dead }

// SetDead sets the death flag and returns the previous value.
func (s *Scene) SetDead(v bool) bool {
	prev := s.dead
	s.dead = v
	return prev
}

// Won reports whether the player finished the level.
func (s *Scene) Won() bool { return s.won }

// SetWon sets the finish flag and returns the previous value.
func (s *Scene) SetWon(v bool) bool {
	prev := s.won
	s.won = v
	return prev
}
