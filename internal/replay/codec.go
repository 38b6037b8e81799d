package replay

import (
	"errors"
	"fmt"
	"os"

	"moto-sim/internal/event"
	"moto-sim/internal/wire"
)

// File format constants
const (
	Magic   = "XMRP"
	Version = 1
)

// Replay errors
var (
	ErrInvalidReplay = errors.New("invalid replay")
	ErrLevelMismatch = errors.New("replay recorded on another level")
)

// Replay is a recorded run: the level it was played on, bike snapshots at a
// fixed rate and every event that fired, in firing order.
type Replay struct {
	LevelID    string
	Player     string
	SampleRate float32
	Finished   bool
	FinishTime float32

	Snapshots []Snapshot
	Events    []event.Event
}

// Duration returns the time of the last snapshot.
func (rp *Replay) Duration() float64 {
	if len(rp.Snapshots) == 0 {
		return 0
	}
	return float64(rp.Snapshots[len(rp.Snapshots)-1].Time)
}

// Encode serializes rp. Decoding the result gives rp back, and encoding a
// decoded file reproduces its bytes.
func Encode(rp *Replay) ([]byte, error) {
	w := wire.NewWriter(64 + len(rp.Snapshots)*RecordSize + len(rp.Events)*16)
	w.Raw([]byte(Magic))
	w.U8(Version)
	w.Str(rp.LevelID)
	w.Str(rp.Player)
	w.F32(rp.SampleRate)
	w.U16(RecordSize)
	w.Bool(rp.Finished)
	w.F32(rp.FinishTime)

	w.U32(uint32(len(rp.Snapshots)))
	for i := range rp.Snapshots {
		rp.Snapshots[i].encode(w)
	}
	w.U32(uint32(len(rp.Events)))
	for _, e := range rp.Events {
		e.Encode(w)
	}

	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encode replay: %w", err)
	}
	return w.Bytes(), nil
}

// Decode parses a replay file. Every failure wraps ErrInvalidReplay.
func Decode(b []byte) (*Replay, error) {
	r := wire.NewReader(b)
	if magic := r.Raw(len(Magic)); r.Err() != nil || string(magic) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidReplay)
	}
	if v := r.U8(); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidReplay, v)
	}

	rp := &Replay{
		LevelID:    r.Str(),
		Player:     r.Str(),
		SampleRate: r.F32(),
	}
	if size := r.U16(); r.Err() == nil && size != RecordSize {
		return nil, fmt.Errorf("%w: record size %d, want %d", ErrInvalidReplay, size, RecordSize)
	}
	rp.Finished = r.Bool()
	rp.FinishTime = r.F32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidReplay, err)
	}

	n := int(r.U32())
	if r.Err() != nil || n*RecordSize > r.Remaining() {
		return nil, fmt.Errorf("%w: %d snapshots do not fit in %d bytes", ErrInvalidReplay, n, r.Remaining())
	}
	rp.Snapshots = make([]Snapshot, n)
	for i := range rp.Snapshots {
		rp.Snapshots[i].decode(r)
		if i > 0 && rp.Snapshots[i].Time < rp.Snapshots[i-1].Time {
			return nil, fmt.Errorf("%w: snapshot %d goes back in time", ErrInvalidReplay, i)
		}
	}

	n = int(r.U32())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReplay, err)
	}
	// Events are at least five bytes each.
	if n*5 > r.Remaining() {
		return nil, fmt.Errorf("%w: %d events do not fit in %d bytes", ErrInvalidReplay, n, r.Remaining())
	}
	rp.Events = make([]event.Event, 0, n)
	for i := 0; i < n; i++ {
		e, err := event.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %w", ErrInvalidReplay, i, err)
		}
		rp.Events = append(rp.Events, e)
	}

	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidReplay, r.Remaining())
	}
	return rp, nil
}

// ReadFile loads and decodes a replay file.
func ReadFile(path string) (*Replay, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	return Decode(b)
}

// WriteFile encodes rp to path.
func WriteFile(path string, rp *Replay) error {
	b, err := Encode(rp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write replay: %w", err)
	}
	return nil
}
