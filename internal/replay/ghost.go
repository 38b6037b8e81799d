package replay

import (
	"fmt"

	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/level"
	"moto-sim/internal/physics"
	"moto-sim/internal/scene"
)

// Ghost plays a replay next to a live session. It owns a scene and an event
// log of its own, so nothing it does reaches the live game.
type Ghost struct {
	player *Player
	scene  *scene.Scene
	log    *event.Log

	prevTime float64
	finished bool
	dead     bool

	pickups []float64 // ghost strawberry times, ascending
	diff    float64
}

// NewGhost loads rp against lvl. The replay must have been recorded on the
// same level.
func NewGhost(rp *Replay, lvl *level.Compiled, phys config.PhysicsConfig, cellSize float64) (*Ghost, error) {
	if rp.LevelID != lvl.ID {
		return nil, fmt.Errorf("ghost of level %q on level %q: %w", rp.LevelID, lvl.ID, ErrLevelMismatch)
	}
	sc := scene.New(lvl, lvl.BuildIndex(cellSize), phys.Gravity)
	g := &Ghost{
		scene: sc,
		log:   event.NewLog(sc, true),
	}
	g.player = NewPlayer(rp, phys, g.log)
	g.player.SetParity(false)

	strawberries := make(map[string]bool)
	for _, e := range lvl.Entities {
		if e.Kind == level.KindStrawberry {
			strawberries[e.ID] = true
		}
	}
	for _, e := range rp.Events {
		if d, ok := e.Payload.(*event.EntityDestroyed); ok && strawberries[d.Entity] {
			g.pickups = append(g.pickups, float64(e.Time))
		}
	}
	return g, nil
}

// UpdateTo moves the ghost to game time t. Going back in time rewinds it and
// clears its end state.
func (g *Ghost) UpdateTo(t float64) physics.BikeState {
	if t < g.prevTime {
		g.finished, g.dead = false, false
	}
	g.player.MoveTo(t)
	g.prevTime = t

	if g.player.AtEnd() && len(g.player.rp.Snapshots) > 0 {
		if g.player.rp.Finished {
			g.finished = true
		} else {
			g.dead = true
		}
	}
	return g.State()
}

// State returns the ghost bike. The engine is idle once the run is over.
func (g *Ghost) State() physics.BikeState {
	st := g.player.State()
	if g.finished || g.dead {
		st.RPM = 0
	}
	return st
}

// Finished reports whether the ghost reached the end of a finished run.
func (g *Ghost) Finished() bool { return g.finished }

// Dead reports whether the ghost reached the end of an unfinished run.
func (g *Ghost) Dead() bool { return g.dead }

// FinishTime returns the recorded finish time.
func (g *Ghost) FinishTime() float64 { return float64(g.player.rp.FinishTime) }

// PlayerName returns who recorded the ghost.
func (g *Ghost) PlayerName() string { return g.player.rp.Player }

// Scene returns the ghost's private scene.
func (g *Ghost) Scene() *scene.Scene { return g.scene }

// Pickups returns the ghost's strawberry pickup times.
func (g *Ghost) Pickups() []float64 { return g.pickups }

// UpdateDiffToPlayer compares the live player's latest pickup against the
// ghost's pickup with the same rank. Nothing changes until the player has a
// pickup the ghost also made.
func (g *Ghost) UpdateDiffToPlayer(playerPickups []float64) {
	n := len(playerPickups)
	if n == 0 || len(g.pickups) < n {
		return
	}
	g.diff = playerPickups[n-1] - g.pickups[n-1]
}

// DiffToPlayer returns the last computed difference in seconds. Positive
// means the player is behind the ghost.
func (g *Ghost) DiffToPlayer() float64 { return g.diff }
