package game

import (
	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/event"
	"moto-sim/internal/scene"
)

// Script is the handle level scripts act through. Every mutator creates an
// event at the session's current time, applies it and records it, so the
// change is replayed and can be rewound. Only live sessions accept
// mutations; replay sessions get them from the recording.
type Script struct {
	s *Session
}

func (sc *Script) fire(p event.Payload) error {
	if sc.s.closed {
		return ErrSessionClosed
	}
	if sc.s.mode != ModeLive {
		return ErrNotLive
	}
	return sc.s.fire(p)
}

// =============================================================================
// QUERIES
// =============================================================================

// Time returns the current game time.
func (sc *Script) Time() float64 { return sc.s.time }

// PlayerPosition returns the bike frame position and facing.
func (sc *Script) PlayerPosition() (mgl64.Vec2, bool) {
	st := sc.s.state
	return st.Frame, st.FacingRight
}

// EntityPosition looks up a live entity.
func (sc *Script) EntityPosition(id string) (mgl64.Vec2, bool) {
	e, ok := sc.s.scene.Entity(id)
	if !ok {
		return mgl64.Vec2{}, false
	}
	return e.Position, true
}

// IsEntityDestroyed reports whether id was destroyed.
func (sc *Script) IsEntityDestroyed(id string) bool { return sc.s.scene.IsDestroyed(id) }

// BlockPosition returns a dynamic block's base position.
func (sc *Script) BlockPosition(id string) (mgl64.Vec2, error) {
	b, err := sc.s.scene.Block(id)
	if err != nil {
		return mgl64.Vec2{}, err
	}
	return b.Position(), nil
}

// IsPlayerInZone reports the zone's inside flag.
func (sc *Script) IsPlayerInZone(id string) bool {
	z, ok := sc.s.scene.Zone(id)
	return ok && z.Inside
}

// Gravity returns the current gravity vector.
func (sc *Script) Gravity() mgl64.Vec2 { return sc.s.scene.Gravity() }

// Scene exposes the scene read-only state. Writes must go through the
// mutators so they are recorded.
func (sc *Script) Scene() *scene.Scene { return sc.s.scene }

// =============================================================================
// WORLD
// =============================================================================

func (sc *Script) MoveBlock(id string, dx, dy float64) error {
	return sc.fire(&event.MoveBlock{Block: id, DX: float32(dx), DY: float32(dy)})
}

func (sc *Script) SetBlockPos(id string, x, y float64) error {
	return sc.fire(&event.SetBlockPos{Block: id, X: float32(x), Y: float32(y)})
}

func (sc *Script) SetBlockCenter(id string, x, y float64) error {
	return sc.fire(&event.SetBlockCenter{Block: id, X: float32(x), Y: float32(y)})
}

func (sc *Script) SetBlockRotation(id string, angle float64) error {
	return sc.fire(&event.SetBlockRotation{Block: id, Angle: float32(angle)})
}

func (sc *Script) SetGravity(x, y float64) error {
	return sc.fire(&event.SetGravity{X: float32(x), Y: float32(y)})
}

func (sc *Script) SetEntityPos(id string, x, y float64) error {
	return sc.fire(&event.SetEntityPos{Entity: id, X: float32(x), Y: float32(y)})
}

// PenaltyTime adds sec to the finish time.
func (sc *Script) PenaltyTime(sec float64) error {
	return sc.fire(&event.PenaltyTime{Seconds: float32(sec)})
}

// =============================================================================
// DYNAMIC BLOCK MOTIONS
// =============================================================================

// SetDynamicBlockRotation moves the block around a circle of the given
// radius. end 0 runs forever.
func (sc *Script) SetDynamicBlockRotation(id string, initAngle, radius, period, start, end float64) error {
	return sc.fire(&event.SetDynamicBlockRotation{
		Block:     id,
		InitAngle: float32(initAngle),
		Radius:    float32(radius),
		Period:    float32(period),
		Start:     float32(start),
		End:       float32(end),
	})
}

// SetDynamicBlockTranslation moves the block back and forth to (x, y) and
// back once per period.
func (sc *Script) SetDynamicBlockTranslation(id string, x, y, period, start, end float64) error {
	return sc.fire(&event.SetDynamicBlockTranslation{
		Block:  id,
		X:      float32(x),
		Y:      float32(y),
		Period: float32(period),
		Start:  float32(start),
		End:    float32(end),
	})
}

// SetDynamicBlockSelfRotation spins the block around its center.
func (sc *Script) SetDynamicBlockSelfRotation(id string, period, start, end float64) error {
	return sc.fire(&event.SetDynamicBlockSelfRotation{
		Block:  id,
		Period: float32(period),
		Start:  float32(start),
		End:    float32(end),
	})
}

// SetDynamicBlockNone stops the block's motion.
func (sc *Script) SetDynamicBlockNone(id string) error {
	return sc.fire(&event.SetDynamicBlockNone{Block: id})
}

// =============================================================================
// PRESENTATION
// =============================================================================

func (sc *Script) Message(text string) error { return sc.fire(&event.Message{Text: text}) }

func (sc *Script) ClearMessages() error { return sc.fire(&event.ClearMessages{}) }

func (sc *Script) PlaceInGameArrow(x, y, angle float64) error {
	return sc.fire(&event.PlaceInGameArrow{X: float32(x), Y: float32(y), Angle: float32(angle)})
}

func (sc *Script) PlaceScreenArrow(x, y, angle float64) error {
	return sc.fire(&event.PlaceScreenArrow{X: float32(x), Y: float32(y), Angle: float32(angle)})
}

func (sc *Script) HideArrow() error { return sc.fire(&event.HideArrow{}) }

func (sc *Script) CameraZoom(z float64) error {
	return sc.fire(&event.CameraZoom{Zoom: float32(z)})
}

func (sc *Script) CameraMove(dx, dy float64) error {
	return sc.fire(&event.CameraMove{DX: float32(dx), DY: float32(dy)})
}

func (sc *Script) CameraRotate(angle float64) error {
	return sc.fire(&event.CameraRotate{Angle: float32(angle)})
}

// =============================================================================
// BIKE
// =============================================================================

// SetPlayerPosition teleports the bike frame to (x, y).
func (sc *Script) SetPlayerPosition(x, y float64, right bool) error {
	if err := sc.fire(&event.SetPlayerPosition{X: float32(x), Y: float32(y), Right: right}); err != nil {
		return err
	}
	sc.s.state = sc.s.bike.State()
	return nil
}

// AddForceToPlayer pushes the bike frame with (fx, fy) between start and
// end game seconds.
func (sc *Script) AddForceToPlayer(fx, fy, start, end float64) error {
	return sc.fire(&event.AddForceToPlayer{FX: float32(fx), FY: float32(fy), Start: float32(start), End: float32(end)})
}
