package event

import (
	"log"
	"math"
	"sort"

	"moto-sim/internal/scene"
)

// Log is the time-ordered event list of one scene plus a cursor. Entries
// with time <= cursor are applied and form a prefix of the list; moving the
// cursor applies forward or reverts backward, one entry at a time, so undo
// slots are always consumed in LIFO order.
type Log struct {
	scene    *scene.Scene
	replay   bool
	entries  []Event
	skipped  []bool // applied entries whose Apply failed; nothing to revert
	n        int    // applied prefix length
	cursor   float64
	failures int
	observer Observer
}

// NewLog returns an empty log bound to s. In replay mode the bike-driving
// kinds are skipped.
func NewLog(s *scene.Scene, replay bool) *Log {
	return &Log{scene: s, replay: replay, cursor: math.Inf(-1)}
}

// SetObserver installs the apply/revert outcome sink.
func (l *Log) SetObserver(o Observer) { l.observer = o }

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.entries) }

// Applied returns the length of the applied prefix.
func (l *Log) Applied() int { return l.n }

// IsApplied reports whether entry i is applied.
func (l *Log) IsApplied(i int) bool { return i < l.n }

// Cursor returns the time the log was last moved to.
func (l *Log) Cursor() float64 { return l.cursor }

// Failures returns how many apply or revert calls failed.
func (l *Log) Failures() int { return l.failures }

// Entries returns the events in time order. The slice must not be modified.
func (l *Log) Entries() []Event { return l.entries }

// Insert adds e after every entry with the same or an earlier time. The
// cursor does not move: e is applied at once when its time is not after
// the cursor.
func (l *Log) Insert(e Event) {
	t := e.Time
	pos := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].Time > t })
	for l.n > pos {
		l.revert()
	}
	l.entries = append(l.entries, Event{})
	copy(l.entries[pos+1:], l.entries[pos:])
	l.entries[pos] = e
	l.skipped = append(l.skipped, false)
	copy(l.skipped[pos+1:], l.skipped[pos:])
	l.skipped[pos] = false
	l.advance(l.cursor)
}

// Fire moves the cursor to the event time if needed and inserts e, applying
// it. Live play uses this for every event it creates.
func (l *Log) Fire(e Event) {
	if t := float64(e.Time); t > l.cursor {
		l.cursor = t
	}
	l.Insert(e)
}

// SeekTo moves the cursor to t, applying entries up to t and reverting the
// ones after it.
func (l *Log) SeekTo(t float64) {
	l.cursor = t
	l.advance(t)
	for l.n > 0 && float64(l.entries[l.n-1].Time) > t {
		l.revert()
	}
}

// Reset reverts every applied entry.
func (l *Log) Reset() { l.SeekTo(math.Inf(-1)) }

func (l *Log) advance(t float64) {
	for l.n < len(l.entries) && float64(l.entries[l.n].Time) <= t {
		e := l.entries[l.n]
		l.n++
		if l.suppressed(e) {
			continue
		}
		if err := e.Payload.Apply(l.scene); err != nil {
			l.skipped[l.n-1] = true
			l.fail("apply", e, err)
			continue
		}
		if l.observer != nil {
			l.observer.EventApplied(e.Kind())
		}
	}
}

func (l *Log) revert() {
	l.n--
	e := l.entries[l.n]
	if l.skipped[l.n] {
		l.skipped[l.n] = false
		return
	}
	if l.suppressed(e) {
		return
	}
	if err := e.Payload.Revert(l.scene); err != nil {
		l.fail("revert", e, err)
		return
	}
	if l.observer != nil {
		l.observer.EventReverted(e.Kind())
	}
}

func (l *Log) suppressed(e Event) bool {
	return l.replay && e.Kind().Policy() == SuppressedInReplay
}

func (l *Log) fail(op string, e Event, err error) {
	l.failures++
	log.Printf("⚠️ Event %s at %.3fs failed to %s: %v", e.Kind(), e.Time, op, err)
	if l.observer != nil {
		l.observer.EventFailed(e.Kind())
	}
}
