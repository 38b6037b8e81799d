package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"moto-sim/internal/wire"
)

// Decoding errors
var (
	ErrInvalidEvent = errors.New("invalid event")
	ErrUnknownKind  = errors.New("unknown event kind")
)

// Event is a payload stamped with the game time it fired at. Time is kept
// at replay precision so an event re-encodes to the same bytes.
type Event struct {
	Time    float32
	Payload Payload
}

// New stamps p with game time t.
func New(t float64, p Payload) Event {
	return Event{Time: float32(t), Payload: p}
}

// Kind returns the payload kind.
func (e Event) Kind() Kind { return e.Payload.Kind() }

// Encode appends time f32 | kind u8 | payload.
func (e Event) Encode(w *wire.Writer) {
	w.F32(e.Time)
	w.U8(uint8(e.Payload.Kind()))
	e.Payload.encode(w)
}

// Decode reads one event.
func Decode(r *wire.Reader) (Event, error) {
	t := r.F32()
	k := Kind(r.U8())
	if err := r.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if !k.Valid() {
		return Event{}, fmt.Errorf("%w: %w %d at offset %d", ErrInvalidEvent, ErrUnknownKind, k, r.Offset()-1)
	}
	p := kinds[k].decode(r)
	if err := r.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: %s payload: %w", ErrInvalidEvent, k, err)
	}
	return Event{Time: t, Payload: p}, nil
}

// Marshal encodes a single event.
func Marshal(e Event) ([]byte, error) {
	w := wire.NewWriter(16)
	e.Encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes exactly one event from b.
func Unmarshal(b []byte) (Event, error) {
	r := wire.NewReader(b)
	e, err := Decode(r)
	if err != nil {
		return Event{}, err
	}
	if r.Remaining() != 0 {
		return Event{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidEvent, r.Remaining())
	}
	return e, nil
}

// Clone returns a copy of e with fresh undo state, so the same recorded
// event can sit in several logs. An event that cannot be encoded cannot be
// cloned.
func (e Event) Clone() (Event, error) {
	b, err := Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("clone %s: %w", e.Kind(), err)
	}
	c, err := Unmarshal(b)
	if err != nil {
		return Event{}, fmt.Errorf("clone %s: %w", e.Kind(), err)
	}
	return c, nil
}

// MarshalJSON renders the event for the journal and the API.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time    float32 `json:"time"`
		Kind    string  `json:"kind"`
		Payload Payload `json:"payload"`
	}{e.Time, e.Kind().String(), e.Payload})
}
