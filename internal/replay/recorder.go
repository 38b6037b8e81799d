package replay

import (
	"log"

	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/physics"
)

// sampleEps absorbs the drift of summed fixed steps against the sample
// clock.
const sampleEps = 1e-9

// Recorder builds a Replay during live play. Snapshots are taken at a fixed
// rate regardless of the step rate; events are kept with their exact time.
type Recorder struct {
	rp   *Replay
	phys config.PhysicsConfig

	interval float64
	next     float64
	done     bool
}

// NewRecorder starts a replay of levelID played by player.
func NewRecorder(levelID, player string, cfg config.ReplayConfig, phys config.PhysicsConfig) *Recorder {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = config.DefaultReplay().SampleRate
	}
	return &Recorder{
		rp: &Replay{
			LevelID:    levelID,
			Player:     player,
			SampleRate: float32(rate),
		},
		phys:     phys,
		interval: 1 / rate,
	}
}

// Sample records st when game time t has reached the next sample time. It
// reports whether a snapshot was taken.
func (r *Recorder) Sample(t float64, st physics.BikeState) bool {
	if r.done || t+sampleEps < r.next {
		return false
	}
	r.rp.Snapshots = append(r.rp.Snapshots, FromState(st, t, r.phys))
	r.next += r.interval
	// A stalled caller takes one sample, not a burst.
	if r.next <= t {
		r.next = t + r.interval
	}
	return true
}

// RecordEvent appends e. The replay keeps its own copy, so an event that
// cannot be encoded is rejected.
func (r *Recorder) RecordEvent(e event.Event) error {
	if r.done {
		return nil
	}
	c, err := e.Clone()
	if err != nil {
		return err
	}
	r.rp.Events = append(r.rp.Events, c)
	return nil
}

// Snapshots returns the number of snapshots taken so far.
func (r *Recorder) Snapshots() int { return len(r.rp.Snapshots) }

// Events returns the number of events recorded so far.
func (r *Recorder) Events() int { return len(r.rp.Events) }

// Finish closes the replay with a last snapshot at t and returns it. Later
// calls return the same replay.
func (r *Recorder) Finish(st physics.BikeState, finished bool, t float64) *Replay {
	if r.done {
		return r.rp
	}
	if n := len(r.rp.Snapshots); n == 0 || float64(r.rp.Snapshots[n-1].Time) < float64(float32(t)) {
		r.rp.Snapshots = append(r.rp.Snapshots, FromState(st, t, r.phys))
	}
	r.rp.Finished = finished
	r.rp.FinishTime = float32(t)
	r.done = true
	log.Printf("📼 Recorded %s: %d snapshots, %d events, finished=%v at %.2fs",
		r.rp.LevelID, len(r.rp.Snapshots), len(r.rp.Events), finished, t)
	return r.rp
}
