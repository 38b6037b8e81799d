package replay

import (
	"log"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/physics"
)

// Status is the playback state reported to callers.
type Status struct {
	Cursor     float64 `json:"cursor"`
	Duration   float64 `json:"duration"`
	Speed      float64 `json:"speed"`
	Paused     bool    `json:"paused"`
	Snapshot   int     `json:"snapshot"`
	Exact      bool    `json:"exact"`
	AtEnd      bool    `json:"atEnd"`
	Finished   bool    `json:"finished"`
	FinishTime float64 `json:"finishTime"`
}

// Player plays a Replay. The cursor is in game seconds; every move of the
// cursor also seeks the event log, so scene state follows the cursor in
// both directions.
//
// With parity enabled, even frames look the bracketing snapshots up again
// and show the earlier one exactly when the bracket changed; odd frames only
// interpolate inside the cached bracket.
type Player struct {
	rp     *Replay
	phys   config.PhysicsConfig
	events *event.Log
	parity bool

	cursor     float64
	speed      float64
	savedSpeed float64
	paused     bool
	ended      bool

	frame      uint64
	bracket    int
	t0, t1     float64
	prev, next physics.BikeState
	state      physics.BikeState
	exact      bool
}

// NewPlayer prepares rp for playback from its start. When events is not
// nil, the replay's events are loaded into it and follow the cursor.
func NewPlayer(rp *Replay, phys config.PhysicsConfig, events *event.Log) *Player {
	p := &Player{
		rp:      rp,
		phys:    phys,
		events:  events,
		parity:  true,
		speed:   1,
		bracket: -1,
	}
	if events != nil {
		for _, e := range rp.Events {
			c, err := e.Clone()
			if err != nil {
				log.Printf("⚠️ Replay event at %.3fs skipped: %v", e.Time, err)
				continue
			}
			events.Insert(c)
		}
	}
	p.SeekTo(0)
	return p
}

// SetParity switches exact/interpolated frame alternation on or off. With
// parity off every frame looks the bracket up again.
func (p *Player) SetParity(on bool) { p.parity = on }

// Replay returns the replay being played.
func (p *Player) Replay() *Replay { return p.rp }

// State returns the bike state for the current frame.
func (p *Player) State() physics.BikeState { return p.state }

// Cursor returns the playback time.
func (p *Player) Cursor() float64 { return p.cursor }

// Speed returns the current multiplier; zero while paused.
func (p *Player) Speed() float64 { return p.speed }

// Paused reports whether playback is paused.
func (p *Player) Paused() bool { return p.paused }

// AtEnd reports whether the cursor reached the last snapshot.
func (p *Player) AtEnd() bool { return p.cursor >= p.rp.Duration() }

// Status returns a summary of the playback state.
func (p *Player) Status() Status {
	return Status{
		Cursor:     p.cursor,
		Duration:   p.rp.Duration(),
		Speed:      p.speed,
		Paused:     p.paused,
		Snapshot:   max(p.bracket, 0),
		Exact:      p.exact,
		AtEnd:      p.AtEnd(),
		Finished:   p.rp.Finished,
		FinishTime: float64(p.rp.FinishTime),
	}
}

// Advance moves the cursor by realDt scaled by the speed and returns the
// state for this frame.
func (p *Player) Advance(realDt float64) physics.BikeState {
	return p.MoveTo(p.cursor + realDt*p.speed)
}

// MoveTo plays one frame at time t, following the parity rule.
func (p *Player) MoveTo(t float64) physics.BikeState {
	p.frame++
	p.cursor = p.clamp(t)
	p.update(!p.parity || p.frame%2 == 0)
	return p.state
}

// SeekTo jumps to t. The frame shown is always exact or interpolated from a
// fresh lookup.
func (p *Player) SeekTo(t float64) {
	p.cursor = p.clamp(t)
	p.bracket = -1
	p.update(true)
}

// FastForward jumps n snapshots ahead.
func (p *Player) FastForward(n int) { p.jump(n) }

// FastRewind jumps n snapshots back.
func (p *Player) FastRewind(n int) { p.jump(-n) }

func (p *Player) jump(n int) {
	snaps := p.rp.Snapshots
	if len(snaps) == 0 {
		return
	}
	i := min(max(p.locate(p.cursor)+n, 0), len(snaps)-1)
	p.SeekTo(float64(snaps[i].Time))
}

// SetSpeed sets the multiplier and leaves pause.
func (p *Player) SetSpeed(v float64) {
	p.speed = v
	p.paused = false
}

// Faster adds inc to the speed. It does nothing while paused.
func (p *Player) Faster(inc float64) {
	if !p.paused {
		p.speed += inc
	}
}

// Slower subtracts inc from the speed. It does nothing while paused.
func (p *Player) Slower(inc float64) {
	if !p.paused {
		p.speed -= inc
	}
}

// Pause stops the cursor and remembers the speed.
func (p *Player) Pause() {
	if p.paused {
		return
	}
	p.savedSpeed = p.speed
	p.speed = 0
	p.paused = true
}

// Resume restores the speed saved by Pause.
func (p *Player) Resume() {
	if !p.paused {
		return
	}
	p.speed = p.savedSpeed
	p.paused = false
}

func (p *Player) clamp(t float64) float64 {
	return mgl64.Clamp(t, 0, p.rp.Duration())
}

// locate returns the index of the last snapshot at or before t, or 0.
func (p *Player) locate(t float64) int {
	snaps := p.rp.Snapshots
	i := sort.Search(len(snaps), func(i int) bool { return float64(snaps[i].Time) > t }) - 1
	return max(i, 0)
}

func (p *Player) update(relocate bool) {
	if p.events != nil {
		p.events.SeekTo(p.cursor)
	}
	if len(p.rp.Snapshots) == 0 {
		return
	}

	if relocate || p.bracket < 0 {
		if i := p.locate(p.cursor); i != p.bracket {
			p.setBracket(i)
			p.state = p.prev
			p.exact = true
			p.checkEnd()
			return
		}
	}

	f := 0.0
	if p.t1 > p.t0 {
		f = (p.cursor - p.t0) / (p.t1 - p.t0)
	}
	p.state = Interpolate(p.prev, p.next, f, p.phys)
	p.exact = false
	p.checkEnd()
}

func (p *Player) setBracket(i int) {
	snaps := p.rp.Snapshots
	p.bracket = i
	p.prev = snaps[i].ToState(p.phys)
	p.t0 = float64(snaps[i].Time)
	if i+1 < len(snaps) {
		p.next = snaps[i+1].ToState(p.phys)
		p.t1 = float64(snaps[i+1].Time)
	} else {
		p.next, p.t1 = p.prev, p.t0
	}
}

func (p *Player) checkEnd() {
	end := p.AtEnd()
	if end && !p.ended {
		log.Printf("📼 Replay of %s by %s reached its end at %.2fs (finished=%v)",
			p.rp.LevelID, p.rp.Player, p.cursor, p.rp.Finished)
	}
	p.ended = end
}

// =============================================================================
// AUTO SPEED
// =============================================================================

// AutoSpeed steers a playback speed so that simulated time keeps pace with
// target times real time.
type AutoSpeed struct {
	target   float64
	gain     float64
	min, max float64
	speed    float64
}

// NewAutoSpeed starts at speed 1.
func NewAutoSpeed(cfg config.ReplayConfig, target float64) *AutoSpeed {
	return &AutoSpeed{
		target: target,
		gain:   cfg.AutoSpeedGain,
		min:    cfg.MinAutoSpeed,
		max:    cfg.MaxAutoSpeed,
		speed:  1,
	}
}

// Speed returns the current speed.
func (a *AutoSpeed) Speed() float64 { return a.speed }

// Update nudges the speed from the total real and simulated time elapsed
// so far and returns it. A single nudge never exceeds 0.1.
func (a *AutoSpeed) Update(realElapsed, simElapsed float64) float64 {
	nudge := mgl64.Clamp(a.gain*(a.target*realElapsed-simElapsed), -0.1, 0.1)
	a.speed = mgl64.Clamp(a.speed+nudge, a.min, a.max)
	return a.speed
}
