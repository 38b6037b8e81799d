package event

import (
	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/scene"
	"moto-sim/internal/wire"
)

// Payload is the kind-specific part of an event. The set of payloads is
// closed; Apply records whatever Revert needs to undo it, so a payload
// instance belongs to exactly one log.
type Payload interface {
	Kind() Kind
	Apply(s *scene.Scene) error
	Revert(s *scene.Scene) error
	encode(w *wire.Writer)
}

func vec(x, y float32) mgl64.Vec2 { return mgl64.Vec2{float64(x), float64(y)} }

// =============================================================================
// PLAYER & RULES
// =============================================================================

// PlayerDies marks the run as lost.
type PlayerDies struct {
	ByEntity bool `json:"byEntity"` // false when the head hit the ground

	prev bool
}

func (*PlayerDies) Kind() Kind { return KindPlayerDies }

func (p *PlayerDies) Apply(s *scene.Scene) error {
	p.prev = s.SetDead(true)
	return nil
}

func (p *PlayerDies) Revert(s *scene.Scene) error {
	s.SetDead(p.prev)
	return nil
}

func (p *PlayerDies) encode(w *wire.Writer) { w.Bool(p.ByEntity) }

func decodePlayerDies(r *wire.Reader) Payload { return &PlayerDies{ByEntity: r.Bool()} }

// PlayerWins marks the run as finished.
type PlayerWins struct {
	prev bool
}

func (*PlayerWins) Kind() Kind { return KindPlayerWins }

func (p *PlayerWins) Apply(s *scene.Scene) error {
	p.prev = s.SetWon(true)
	return nil
}

func (p *PlayerWins) Revert(s *scene.Scene) error {
	s.SetWon(p.prev)
	return nil
}

func (*PlayerWins) encode(*wire.Writer) {}

func decodePlayerWins(*wire.Reader) Payload { return &PlayerWins{} }

// PlayerEntersZone sets a zone's inside flag.
type PlayerEntersZone struct {
	Zone string `json:"zone"`

	prev bool
}

func (*PlayerEntersZone) Kind() Kind { return KindPlayerEntersZone }

func (p *PlayerEntersZone) Apply(s *scene.Scene) (err error) {
	p.prev, err = s.SetZoneInside(p.Zone, true)
	return err
}

func (p *PlayerEntersZone) Revert(s *scene.Scene) error {
	_, err := s.SetZoneInside(p.Zone, p.prev)
	return err
}

func (p *PlayerEntersZone) encode(w *wire.Writer) { w.Str(p.Zone) }

func decodePlayerEntersZone(r *wire.Reader) Payload { return &PlayerEntersZone{Zone: r.Str()} }

// PlayerLeavesZone clears a zone's inside flag.
type PlayerLeavesZone struct {
	Zone string `json:"zone"`

	prev bool
}

func (*PlayerLeavesZone) Kind() Kind { return KindPlayerLeavesZone }

func (p *PlayerLeavesZone) Apply(s *scene.Scene) (err error) {
	p.prev, err = s.SetZoneInside(p.Zone, false)
	return err
}

func (p *PlayerLeavesZone) Revert(s *scene.Scene) error {
	_, err := s.SetZoneInside(p.Zone, p.prev)
	return err
}

func (p *PlayerLeavesZone) encode(w *wire.Writer) { w.Str(p.Zone) }

func decodePlayerLeavesZone(r *wire.Reader) Payload { return &PlayerLeavesZone{Zone: r.Str()} }

// PlayerTouchesEntity flags an entity as touched by the bike or the head.
type PlayerTouchesEntity struct {
	Entity string `json:"entity"`
	Head   bool   `json:"head"`

	prev bool
}

func (*PlayerTouchesEntity) Kind() Kind { return KindPlayerTouchesEntity }

func (p *PlayerTouchesEntity) Apply(s *scene.Scene) (err error) {
	p.prev, err = s.SetEntityTouched(p.Entity, true)
	return err
}

func (p *PlayerTouchesEntity) Revert(s *scene.Scene) error {
	_, err := s.SetEntityTouched(p.Entity, p.prev)
	return err
}

func (p *PlayerTouchesEntity) encode(w *wire.Writer) {
	w.Str(p.Entity)
	w.Bool(p.Head)
}

func decodePlayerTouchesEntity(r *wire.Reader) Payload {
	return &PlayerTouchesEntity{Entity: r.Str(), Head: r.Bool()}
}

// EntityDestroyed moves an entity to the destroyed table. X/Y is where it
// was, for effects.
type EntityDestroyed struct {
	Entity string  `json:"entity"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
}

func (*EntityDestroyed) Kind() Kind { return KindEntityDestroyed }

func (p *EntityDestroyed) Apply(s *scene.Scene) error  { return s.DestroyEntity(p.Entity) }
func (p *EntityDestroyed) Revert(s *scene.Scene) error { return s.RestoreEntity(p.Entity) }

func (p *EntityDestroyed) encode(w *wire.Writer) {
	w.Str(p.Entity)
	w.F32(p.X)
	w.F32(p.Y)
}

func decodeEntityDestroyed(r *wire.Reader) Payload {
	return &EntityDestroyed{Entity: r.Str(), X: r.F32(), Y: r.F32()}
}

// PenaltyTime adds seconds to the finish time.
type PenaltyTime struct {
	Seconds float32 `json:"seconds"`
}

func (*PenaltyTime) Kind() Kind { return KindPenaltyTime }

func (p *PenaltyTime) Apply(s *scene.Scene) error {
	s.AddPenalty(float64(p.Seconds))
	return nil
}

func (p *PenaltyTime) Revert(s *scene.Scene) error {
	s.AddPenalty(-float64(p.Seconds))
	return nil
}

func (p *PenaltyTime) encode(w *wire.Writer) { w.F32(p.Seconds) }

func decodePenaltyTime(r *wire.Reader) Payload { return &PenaltyTime{Seconds: r.F32()} }

// =============================================================================
// BIKE (suppressed during playback)
// =============================================================================

// SetPlayerPosition teleports the bike.
type SetPlayerPosition struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Right bool    `json:"right"`

	prevPos   mgl64.Vec2
	prevRight bool
}

func (*SetPlayerPosition) Kind() Kind { return KindSetPlayerPosition }

func (p *SetPlayerPosition) Apply(s *scene.Scene) error {
	h, err := s.PlayerHook()
	if err != nil {
		return err
	}
	p.prevPos, p.prevRight = h.PlayerPosition()
	h.SetPlayerPosition(vec(p.X, p.Y), p.Right)
	return nil
}

func (p *SetPlayerPosition) Revert(s *scene.Scene) error {
	h, err := s.PlayerHook()
	if err != nil {
		return err
	}
	h.SetPlayerPosition(p.prevPos, p.prevRight)
	return nil
}

func (p *SetPlayerPosition) encode(w *wire.Writer) {
	w.F32(p.X)
	w.F32(p.Y)
	w.Bool(p.Right)
}

func decodeSetPlayerPosition(r *wire.Reader) Payload {
	return &SetPlayerPosition{X: r.F32(), Y: r.F32(), Right: r.Bool()}
}

// AddForceToPlayer queues an external force on the bike frame between Start
// and End (game seconds). A force already integrated cannot be taken back,
// so Revert does nothing.
type AddForceToPlayer struct {
	FX    float32 `json:"fx"`
	FY    float32 `json:"fy"`
	Start float32 `json:"start"`
	End   float32 `json:"end"`
}

func (*AddForceToPlayer) Kind() Kind { return KindAddForceToPlayer }

func (p *AddForceToPlayer) Apply(s *scene.Scene) error {
	h, err := s.PlayerHook()
	if err != nil {
		return err
	}
	h.AddPlayerForce(vec(p.FX, p.FY), float64(p.Start), float64(p.End))
	return nil
}

func (*AddForceToPlayer) Revert(*scene.Scene) error { return nil }

func (p *AddForceToPlayer) encode(w *wire.Writer) {
	w.F32(p.FX)
	w.F32(p.FY)
	w.F32(p.Start)
	w.F32(p.End)
}

func decodeAddForceToPlayer(r *wire.Reader) Payload {
	return &AddForceToPlayer{FX: r.F32(), FY: r.F32(), Start: r.F32(), End: r.F32()}
}

// =============================================================================
// WORLD
// =============================================================================

// SetGravity replaces the gravity vector.
type SetGravity struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`

	prev mgl64.Vec2
}

func (*SetGravity) Kind() Kind { return KindSetGravity }

func (p *SetGravity) Apply(s *scene.Scene) error {
	p.prev = s.SetGravity(vec(p.X, p.Y))
	return nil
}

func (p *SetGravity) Revert(s *scene.Scene) error {
	s.SetGravity(p.prev)
	return nil
}

func (p *SetGravity) encode(w *wire.Writer) {
	w.F32(p.X)
	w.F32(p.Y)
}

func decodeSetGravity(r *wire.Reader) Payload { return &SetGravity{X: r.F32(), Y: r.F32()} }

// SetEntityPos moves a live entity.
type SetEntityPos struct {
	Entity string  `json:"entity"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`

	prev mgl64.Vec2
}

func (*SetEntityPos) Kind() Kind { return KindSetEntityPos }

func (p *SetEntityPos) Apply(s *scene.Scene) (err error) {
	p.prev, err = s.SetEntityPosition(p.Entity, vec(p.X, p.Y))
	return err
}

func (p *SetEntityPos) Revert(s *scene.Scene) error {
	_, err := s.SetEntityPosition(p.Entity, p.prev)
	return err
}

func (p *SetEntityPos) encode(w *wire.Writer) {
	w.Str(p.Entity)
	w.F32(p.X)
	w.F32(p.Y)
}

func decodeSetEntityPos(r *wire.Reader) Payload {
	return &SetEntityPos{Entity: r.Str(), X: r.F32(), Y: r.F32()}
}

// MoveBlock shifts a dynamic block's base position by (DX, DY).
type MoveBlock struct {
	Block string  `json:"block"`
	DX    float32 `json:"dx"`
	DY    float32 `json:"dy"`
}

func (*MoveBlock) Kind() Kind { return KindMoveBlock }

func (p *MoveBlock) Apply(s *scene.Scene) error  { return p.shift(s, vec(p.DX, p.DY)) }
func (p *MoveBlock) Revert(s *scene.Scene) error { return p.shift(s, vec(-p.DX, -p.DY)) }

func (p *MoveBlock) shift(s *scene.Scene, d mgl64.Vec2) error {
	b, err := s.Block(p.Block)
	if err != nil {
		return err
	}
	_, err = s.SetBlockPosition(p.Block, b.Position().Add(d))
	return err
}

func (p *MoveBlock) encode(w *wire.Writer) {
	w.Str(p.Block)
	w.F32(p.DX)
	w.F32(p.DY)
}

func decodeMoveBlock(r *wire.Reader) Payload {
	return &MoveBlock{Block: r.Str(), DX: r.F32(), DY: r.F32()}
}

// SetBlockPos places a dynamic block.
type SetBlockPos struct {
	Block string  `json:"block"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`

	prev mgl64.Vec2
}

func (*SetBlockPos) Kind() Kind { return KindSetBlockPos }

func (p *SetBlockPos) Apply(s *scene.Scene) (err error) {
	p.prev, err = s.SetBlockPosition(p.Block, vec(p.X, p.Y))
	return err
}

func (p *SetBlockPos) Revert(s *scene.Scene) error {
	_, err := s.SetBlockPosition(p.Block, p.prev)
	return err
}

func (p *SetBlockPos) encode(w *wire.Writer) {
	w.Str(p.Block)
	w.F32(p.X)
	w.F32(p.Y)
}

func decodeSetBlockPos(r *wire.Reader) Payload {
	return &SetBlockPos{Block: r.Str(), X: r.F32(), Y: r.F32()}
}

// SetBlockCenter moves a dynamic block's rotation center.
type SetBlockCenter struct {
	Block string  `json:"block"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`

	prev mgl64.Vec2
}

func (*SetBlockCenter) Kind() Kind { return KindSetBlockCenter }

func (p *SetBlockCenter) Apply(s *scene.Scene) (err error) {
	p.prev, err = s.SetBlockCenter(p.Block, vec(p.X, p.Y))
	return err
}

func (p *SetBlockCenter) Revert(s *scene.Scene) error {
	_, err := s.SetBlockCenter(p.Block, p.prev)
	return err
}

func (p *SetBlockCenter) encode(w *wire.Writer) {
	w.Str(p.Block)
	w.F32(p.X)
	w.F32(p.Y)
}

func decodeSetBlockCenter(r *wire.Reader) Payload {
	return &SetBlockCenter{Block: r.Str(), X: r.F32(), Y: r.F32()}
}

// SetBlockRotation sets a dynamic block's base angle in radians.
type SetBlockRotation struct {
	Block string  `json:"block"`
	Angle float32 `json:"angle"`

	prev float64
}

func (*SetBlockRotation) Kind() Kind { return KindSetBlockRotation }

func (p *SetBlockRotation) Apply(s *scene.Scene) (err error) {
	p.prev, err = s.SetBlockRotation(p.Block, float64(p.Angle))
	return err
}

func (p *SetBlockRotation) Revert(s *scene.Scene) error {
	_, err := s.SetBlockRotation(p.Block, p.prev)
	return err
}

func (p *SetBlockRotation) encode(w *wire.Writer) {
	w.Str(p.Block)
	w.F32(p.Angle)
}

func decodeSetBlockRotation(r *wire.Reader) Payload {
	return &SetBlockRotation{Block: r.Str(), Angle: r.F32()}
}

// =============================================================================
// BLOCK MOTIONS
// =============================================================================

// motionSlot is the shared undo logic of the motion-setting kinds.
type motionSlot struct {
	prev scene.Motion
}

func (m *motionSlot) set(s *scene.Scene, block string, next scene.Motion) (err error) {
	m.prev, err = s.SetBlockMotion(block, next)
	return err
}

func (m *motionSlot) restore(s *scene.Scene, block string) error {
	_, err := s.SetBlockMotion(block, m.prev)
	return err
}

// SetDynamicBlockRotation moves a block around a circle.
type SetDynamicBlockRotation struct {
	Block     string  `json:"block"`
	InitAngle float32 `json:"initAngle"`
	Radius    float32 `json:"radius"`
	Period    float32 `json:"period"`
	Start     float32 `json:"start"`
	End       float32 `json:"end"`

	slot motionSlot
}

func (*SetDynamicBlockRotation) Kind() Kind { return KindSetDynamicBlockRotation }

func (p *SetDynamicBlockRotation) Apply(s *scene.Scene) error {
	return p.slot.set(s, p.Block, scene.Motion{
		Kind:      scene.MotionRotation,
		InitAngle: float64(p.InitAngle),
		Radius:    float64(p.Radius),
		Period:    float64(p.Period),
		Start:     float64(p.Start),
		End:       float64(p.End),
	})
}

func (p *SetDynamicBlockRotation) Revert(s *scene.Scene) error { return p.slot.restore(s, p.Block) }

func (p *SetDynamicBlockRotation) encode(w *wire.Writer) {
	w.Str(p.Block)
	w.F32(p.InitAngle)
	w.F32(p.Radius)
	w.F32(p.Period)
	w.F32(p.Start)
	w.F32(p.End)
}

func decodeSetDynamicBlockRotation(r *wire.Reader) Payload {
	return &SetDynamicBlockRotation{
		Block:     r.Str(),
		InitAngle: r.F32(),
		Radius:    r.F32(),
		Period:    r.F32(),
		Start:     r.F32(),
		End:       r.F32(),
	}
}

// SetDynamicBlockTranslation moves a block back and forth along (X, Y).
type SetDynamicBlockTranslation struct {
	Block  string  `json:"block"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Period float32 `json:"period"`
	Start  float32 `json:"start"`
	End    float32 `json:"end"`

	slot motionSlot
}

func (*SetDynamicBlockTranslation) Kind() Kind { return KindSetDynamicBlockTranslation }

func (p *SetDynamicBlockTranslation) Apply(s *scene.Scene) error {
	return p.slot.set(s, p.Block, scene.Motion{
		Kind:   scene.MotionTranslation,
		Offset: vec(p.X, p.Y),
		Period: float64(p.Period),
		Start:  float64(p.Start),
		End:    float64(p.End),
	})
}

func (p *SetDynamicBlockTranslation) Revert(s *scene.Scene) error {
	return p.slot.restore(s, p.Block)
}

func (p *SetDynamicBlockTranslation) encode(w *wire.Writer) {
	w.Str(p.Block)
	w.F32(p.X)
	w.F32(p.Y)
	w.F32(p.Period)
	w.F32(p.Start)
	w.F32(p.End)
}

func decodeSetDynamicBlockTranslation(r *wire.Reader) Payload {
	return &SetDynamicBlockTranslation{
		Block:  r.Str(),
		X:      r.F32(),
		Y:      r.F32(),
		Period: r.F32(),
		Start:  r.F32(),
		End:    r.F32(),
	}
}

// SetDynamicBlockSelfRotation spins a block around its center.
type SetDynamicBlockSelfRotation struct {
	Block  string  `json:"block"`
	Period float32 `json:"period"`
	Start  float32 `json:"start"`
	End    float32 `json:"end"`

	slot motionSlot
}

func (*SetDynamicBlockSelfRotation) Kind() Kind { return KindSetDynamicBlockSelfRotation }

func (p *SetDynamicBlockSelfRotation) Apply(s *scene.Scene) error {
	return p.slot.set(s, p.Block, scene.Motion{
		Kind:   scene.MotionSelfRotation,
		Period: float64(p.Period),
		Start:  float64(p.Start),
		End:    float64(p.End),
	})
}

func (p *SetDynamicBlockSelfRotation) Revert(s *scene.Scene) error {
	return p.slot.restore(s, p.Block)
}

func (p *SetDynamicBlockSelfRotation) encode(w *wire.Writer) {
	w.Str(p.Block)
	w.F32(p.Period)
	w.F32(p.Start)
	w.F32(p.End)
}

func decodeSetDynamicBlockSelfRotation(r *wire.Reader) Payload {
	return &SetDynamicBlockSelfRotation{Block: r.Str(), Period: r.F32(), Start: r.F32(), End: r.F32()}
}

// SetDynamicBlockNone stops a block's motion.
type SetDynamicBlockNone struct {
	Block string `json:"block"`

	slot motionSlot
}

func (*SetDynamicBlockNone) Kind() Kind { return KindSetDynamicBlockNone }

func (p *SetDynamicBlockNone) Apply(s *scene.Scene) error {
	return p.slot.set(s, p.Block, scene.Motion{})
}

func (p *SetDynamicBlockNone) Revert(s *scene.Scene) error { return p.slot.restore(s, p.Block) }

func (p *SetDynamicBlockNone) encode(w *wire.Writer) { w.Str(p.Block) }

func decodeSetDynamicBlockNone(r *wire.Reader) Payload { return &SetDynamicBlockNone{Block: r.Str()} }

// =============================================================================
// PRESENTATION
// =============================================================================

// Message shows a line of text.
type Message struct {
	Text string `json:"text"`
}

func (*Message) Kind() Kind { return KindMessage }

func (p *Message) Apply(s *scene.Scene) error {
	s.PushMessage(p.Text)
	return nil
}

func (p *Message) Revert(s *scene.Scene) error {
	s.PopMessage()
	return nil
}

func (p *Message) encode(w *wire.Writer) { w.Str(p.Text) }

func decodeMessage(r *wire.Reader) Payload { return &Message{Text: r.Str()} }

// ClearMessages removes every message.
type ClearMessages struct {
	prev []string
}

func (*ClearMessages) Kind() Kind { return KindClearMessages }

func (p *ClearMessages) Apply(s *scene.Scene) error {
	p.prev = s.ReplaceMessages(nil)
	return nil
}

func (p *ClearMessages) Revert(s *scene.Scene) error {
	s.ReplaceMessages(p.prev)
	return nil
}

func (*ClearMessages) encode(*wire.Writer) {}

func decodeClearMessages(*wire.Reader) Payload { return &ClearMessages{} }

// PlaceInGameArrow points the arrow hint at a world position.
type PlaceInGameArrow struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Angle float32 `json:"angle"`

	prev scene.Arrow
}

func (*PlaceInGameArrow) Kind() Kind { return KindPlaceInGameArrow }

func (p *PlaceInGameArrow) Apply(s *scene.Scene) error {
	p.prev = s.SetArrow(scene.Arrow{Visible: true, InGame: true, Pos: vec(p.X, p.Y), Angle: float64(p.Angle)})
	return nil
}

func (p *PlaceInGameArrow) Revert(s *scene.Scene) error {
	s.SetArrow(p.prev)
	return nil
}

func (p *PlaceInGameArrow) encode(w *wire.Writer) {
	w.F32(p.X)
	w.F32(p.Y)
	w.F32(p.Angle)
}

func decodePlaceInGameArrow(r *wire.Reader) Payload {
	return &PlaceInGameArrow{X: r.F32(), Y: r.F32(), Angle: r.F32()}
}

// PlaceScreenArrow points the arrow hint at a screen position.
type PlaceScreenArrow struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Angle float32 `json:"angle"`

	prev scene.Arrow
}

func (*PlaceScreenArrow) Kind() Kind { return KindPlaceScreenArrow }

func (p *PlaceScreenArrow) Apply(s *scene.Scene) error {
	p.prev = s.SetArrow(scene.Arrow{Visible: true, Pos: vec(p.X, p.Y), Angle: float64(p.Angle)})
	return nil
}

func (p *PlaceScreenArrow) Revert(s *scene.Scene) error {
	s.SetArrow(p.prev)
	return nil
}

func (p *PlaceScreenArrow) encode(w *wire.Writer) {
	w.F32(p.X)
	w.F32(p.Y)
	w.F32(p.Angle)
}

func decodePlaceScreenArrow(r *wire.Reader) Payload {
	return &PlaceScreenArrow{X: r.F32(), Y: r.F32(), Angle: r.F32()}
}

// HideArrow hides the arrow hint and keeps its placement.
type HideArrow struct {
	prev scene.Arrow
}

func (*HideArrow) Kind() Kind { return KindHideArrow }

func (p *HideArrow) Apply(s *scene.Scene) error {
	a := s.Arrow()
	a.Visible = false
	p.prev = s.SetArrow(a)
	return nil
}

func (p *HideArrow) Revert(s *scene.Scene) error {
	s.SetArrow(p.prev)
	return nil
}

func (*HideArrow) encode(*wire.Writer) {}

func decodeHideArrow(*wire.Reader) Payload { return &HideArrow{} }

// CameraZoom sets the camera zoom factor.
type CameraZoom struct {
	Zoom float32 `json:"zoom"`

	prev scene.Camera
}

func (*CameraZoom) Kind() Kind { return KindCameraZoom }

func (p *CameraZoom) Apply(s *scene.Scene) error {
	c := s.Camera()
	c.Zoom = float64(p.Zoom)
	p.prev = s.SetCamera(c)
	return nil
}

func (p *CameraZoom) Revert(s *scene.Scene) error {
	s.SetCamera(p.prev)
	return nil
}

func (p *CameraZoom) encode(w *wire.Writer) { w.F32(p.Zoom) }

func decodeCameraZoom(r *wire.Reader) Payload { return &CameraZoom{Zoom: r.F32()} }

// CameraMove shifts the camera offset.
type CameraMove struct {
	DX float32 `json:"dx"`
	DY float32 `json:"dy"`

	prev scene.Camera
}

func (*CameraMove) Kind() Kind { return KindCameraMove }

func (p *CameraMove) Apply(s *scene.Scene) error {
	c := s.Camera()
	c.Offset = c.Offset.Add(vec(p.DX, p.DY))
	p.prev = s.SetCamera(c)
	return nil
}

func (p *CameraMove) Revert(s *scene.Scene) error {
	s.SetCamera(p.prev)
	return nil
}

func (p *CameraMove) encode(w *wire.Writer) {
	w.F32(p.DX)
	w.F32(p.DY)
}

func decodeCameraMove(r *wire.Reader) Payload { return &CameraMove{DX: r.F32(), DY: r.F32()} }

// CameraRotate sets the camera rotation in radians.
type CameraRotate struct {
	Angle float32 `json:"angle"`

	prev scene.Camera
}

func (*CameraRotate) Kind() Kind { return KindCameraRotate }

func (p *CameraRotate) Apply(s *scene.Scene) error {
	c := s.Camera()
	c.Rotation = float64(p.Angle)
	p.prev = s.SetCamera(c)
	return nil
}

func (p *CameraRotate) Revert(s *scene.Scene) error {
	s.SetCamera(p.prev)
	return nil
}

func (p *CameraRotate) encode(w *wire.Writer) { w.F32(p.Angle) }

func decodeCameraRotate(r *wire.Reader) Payload { return &CameraRotate{Angle: r.F32()} }
