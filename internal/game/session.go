package game

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"moto-sim/internal/collision"
	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/level"
	"moto-sim/internal/physics"
	"moto-sim/internal/replay"
	"moto-sim/internal/scene"
)

// Session errors
var (
	ErrLevelNotFound = errors.New("replay level is not the loaded level")
	ErrSessionClosed = errors.New("session closed")
	ErrNotLive       = errors.New("session is not live")
	ErrNotReplay     = errors.New("session is not a replay")
	ErrRunOver       = errors.New("run is over")
	ErrNoCheckpoint  = errors.New("no checkpoint reached")
	ErrEventFailed   = errors.New("event failed to apply")
)

// Mode says whether a session simulates or plays a recording back.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeReplay Mode = "replay"
)

// Options are the optional parts of a session.
type Options struct {
	Player  string         // name stored in the recorded replay
	Ghost   *replay.Replay // played next to the session when set
	Journal *Journal       // receives every fired event when set

	// AutoSpeed, when positive, steers replay playback so simulated time
	// runs AutoSpeed times faster than real time.
	AutoSpeed float64
}

// Session is one level being played or replayed. It is not safe for
// concurrent use; the Engine serializes access.
type Session struct {
	id   string
	mode Mode
	cfg  config.AppConfig

	lvl    *level.Compiled
	index  *collision.Index
	scene  *scene.Scene
	events *event.Log

	// live
	bike       *physics.Bike
	loop       *physics.Loop
	recorder   *replay.Recorder
	input      physics.Input
	result     *replay.Replay
	checkpoint *mgl64.Vec2

	// replay
	player      *replay.Player
	auto        *replay.AutoSpeed
	realElapsed float64

	ghost   *replay.Ghost
	journal *Journal
	script  *Script

	time      float64
	state     physics.BikeState
	pickups   []float64
	lastSteps int
	closed    bool
}

func newSession(lvl *level.Compiled, cfg config.AppConfig, mode Mode, opts Options) *Session {
	index := lvl.BuildIndex(cfg.Spatial.GridCellSize)
	s := &Session{
		id:      uuid.NewString(),
		mode:    mode,
		cfg:     cfg,
		lvl:     lvl,
		index:   index,
		scene:   scene.New(lvl, index, cfg.Physics.Gravity),
		journal: opts.Journal,
	}
	s.script = &Script{s: s}
	return s
}

// NewLiveSession starts a run of lvl with the bike on the player start.
// Level motions start at time zero and are recorded like any other event.
func NewLiveSession(lvl *level.Compiled, cfg config.AppConfig, opts Options) (*Session, error) {
	s := newSession(lvl, cfg, ModeLive, opts)
	if opts.Ghost != nil {
		g, err := replay.NewGhost(opts.Ghost, lvl, cfg.Physics, cfg.Spatial.GridCellSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLevelNotFound, err)
		}
		s.ghost = g
	}

	s.events = event.NewLog(s.scene, false)
	s.bike = physics.NewBike(cfg.Physics, physics.NewCPSolver(), lvl.PlayerStart(), true, cfg.Simulation.MaxContacts)
	s.bike.SetGravity(s.scene.Gravity())
	s.scene.AttachPlayer(s.bike)
	s.loop = physics.NewLoop(cfg.Simulation)
	s.recorder = replay.NewRecorder(lvl.ID, opts.Player, cfg.Replay, cfg.Physics)

	if err := s.startMotions(); err != nil {
		return nil, err
	}
	s.state = s.bike.State()
	s.recorder.Sample(0, s.state)

	log.Printf("🎮 Live session %s on %s (%d polygons, %d motions)",
		s.id, lvl.ID, lvl.PolygonCount(), len(lvl.Motions))
	return s, nil
}

// NewReplaySession plays rp back on lvl. A replay recorded on another level
// is refused with ErrLevelNotFound.
func NewReplaySession(lvl *level.Compiled, rp *replay.Replay, cfg config.AppConfig, opts Options) (*Session, error) {
	if rp.LevelID != lvl.ID {
		return nil, fmt.Errorf("%w: replay of %q, loaded %q", ErrLevelNotFound, rp.LevelID, lvl.ID)
	}
	s := newSession(lvl, cfg, ModeReplay, opts)
	if opts.Ghost != nil {
		g, err := replay.NewGhost(opts.Ghost, lvl, cfg.Physics, cfg.Spatial.GridCellSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLevelNotFound, err)
		}
		s.ghost = g
	}

	s.events = event.NewLog(s.scene, true)
	s.player = replay.NewPlayer(rp, cfg.Physics, s.events)
	if opts.AutoSpeed > 0 {
		s.auto = replay.NewAutoSpeed(cfg.Replay, opts.AutoSpeed)
	}
	s.syncPlayer()

	log.Printf("📼 Replay session %s: %s by %s, %.2fs, %d events",
		s.id, rp.LevelID, rp.Player, rp.Duration(), len(rp.Events))
	return s, nil
}

// startMotions turns the level's motion definitions into dynamic block
// events at time zero.
func (s *Session) startMotions() error {
	for _, m := range s.lvl.Motions {
		end := 0.0
		if m.Count > 0 {
			end = float64(m.Count) * m.Period
		}
		var err error
		switch m.Kind {
		case "rotation":
			err = s.script.SetDynamicBlockRotation(m.Block, 0, m.Radius, m.Period, 0, end)
		case "translation":
			err = s.script.SetDynamicBlockTranslation(m.Block, m.Offset.X(), m.Offset.Y(), m.Period, 0, end)
		case "selfRotation":
			err = s.script.SetDynamicBlockSelfRotation(m.Block, m.Period, 0, end)
		default:
			err = fmt.Errorf("unknown motion kind %q", m.Kind)
		}
		if err != nil {
			return fmt.Errorf("start motion of %s: %w", m.Block, err)
		}
	}
	s.scene.UpdateMotions(0)
	return nil
}

// =============================================================================
// FRAME
// =============================================================================

// Frame advances the session by realDt seconds of wall time and returns how
// many physics steps ran. Replay sessions move the playback cursor instead.
func (s *Session) Frame(realDt float64) int {
	if s.closed {
		return 0
	}
	if s.mode == ModeReplay {
		s.replayFrame(realDt)
		return 0
	}

	s.lastSteps = 0
	if !s.Over() {
		s.lastSteps = s.loop.Advance(realDt, s.step)
	}
	s.state = s.bike.State()
	if s.ghost != nil {
		s.ghost.UpdateTo(s.time)
	}
	return s.lastSteps
}

func (s *Session) step() {
	if s.Over() {
		return
	}
	dt := s.loop.StepSize()
	s.time += dt

	s.scene.UpdateMotions(s.time)
	s.bike.SetGravity(s.scene.Gravity())
	res := s.bike.Step(dt, s.input, s.index)
	s.input.ChangeDir = false

	s.detect(res)
	s.recorder.Sample(s.time, s.bike.State())
	if s.Over() {
		s.finish()
	}
}

// detect turns what the bike touched during the last step into events.
func (s *Session) detect(res physics.StepResult) {
	st := s.bike.State()

	for _, tr := range s.scene.ZoneTransitions([]mgl64.Vec2{st.Frame, st.RearWheel, st.FrontWheel}) {
		if tr.Enter {
			s.fire(&event.PlayerEntersZone{Zone: tr.ZoneID})
		} else {
			s.fire(&event.PlayerLeavesZone{Zone: tr.ZoneID})
		}
	}

	for _, t := range s.touching(st) {
		if s.Over() {
			return
		}
		e := t.entity
		if !e.Touched {
			s.fire(&event.PlayerTouchesEntity{Entity: e.ID, Head: t.head})
		}
		switch e.Kind {
		case level.KindStrawberry:
			s.fire(&event.EntityDestroyed{Entity: e.ID, X: float32(e.Position.X()), Y: float32(e.Position.Y())})
			s.pickups = append(s.pickups, s.time)
			if s.ghost != nil {
				s.ghost.UpdateDiffToPlayer(s.pickups)
			}
		case level.KindWrecker:
			s.fire(&event.PlayerDies{ByEntity: true})
		case level.KindEndOfLevel:
			if s.scene.CountLive(level.KindStrawberry) == 0 {
				s.fire(&event.PlayerWins{})
			}
		case level.KindCheckpoint:
			if s.checkpoint == nil || *s.checkpoint != e.Position {
				p := e.Position
				s.checkpoint = &p
				log.Printf("🎮 Checkpoint %s reached at %.2fs", e.ID, s.time)
			}
		}
	}

	if res.HeadHit && !s.Over() {
		s.fire(&event.PlayerDies{ByEntity: false})
	}
}

type touch struct {
	entity *scene.Entity
	head   bool
}

// touching merges body and head contacts in id order. An entity reached by
// both counts as a body touch.
func (s *Session) touching(st physics.BikeState) []touch {
	body := s.scene.Touching([]mgl64.Vec2{st.RearWheel, st.FrontWheel, st.Frame}, s.cfg.Physics.WheelRadius)
	head := s.scene.Touching([]mgl64.Vec2{st.Head}, s.cfg.Physics.HeadSize)

	out := make([]touch, 0, len(body)+len(head))
	i, j := 0, 0
	for i < len(body) || j < len(head) {
		switch {
		case j == len(head) || (i < len(body) && body[i].ID < head[j].ID):
			out = append(out, touch{body[i], false})
			i++
		case i == len(body) || head[j].ID < body[i].ID:
			out = append(out, touch{head[j], true})
			j++
		default:
			out = append(out, touch{body[i], false})
			i++
			j++
		}
	}
	return out
}

// fire stamps p with the session time, applies it and records it.
func (s *Session) fire(p event.Payload) error {
	e := event.New(s.time, p)
	failures := s.events.Failures()
	s.events.Fire(e)
	if s.recorder != nil {
		if err := s.recorder.RecordEvent(e); err != nil {
			log.Printf("⚠️ Event left out of the replay: %v", err)
		}
	}
	if s.journal != nil {
		s.journal.Record(s.id, e)
	}
	if s.events.Failures() > failures {
		return fmt.Errorf("%w: %s", ErrEventFailed, e.Kind())
	}
	return nil
}

func (s *Session) finish() {
	if s.result != nil {
		return
	}
	s.result = s.recorder.Finish(s.bike.State(), s.scene.Won(), s.time)
	log.Printf("🎮 Session %s over at %.2fs (won=%v, penalty=%.2fs, strawberries=%d)",
		s.id, s.time, s.scene.Won(), s.scene.Penalty(), len(s.pickups))
}

func (s *Session) replayFrame(realDt float64) {
	if s.auto != nil && !s.player.Paused() {
		s.realElapsed += realDt
		s.player.SetSpeed(s.auto.Update(s.realElapsed, s.player.Cursor()))
	}
	s.player.Advance(realDt)
	s.syncPlayer()
}

// syncPlayer copies the playback position into the session.
func (s *Session) syncPlayer() {
	s.time = s.player.Cursor()
	s.scene.UpdateMotions(s.time)
	s.state = s.player.State()
	if s.ghost != nil {
		s.ghost.UpdateTo(s.time)
	}
}

// =============================================================================
// LIVE CONTROLS
// =============================================================================

// SetInput replaces the rider input. A direction change is kept until the
// next step consumes it.
func (s *Session) SetInput(in physics.Input) error {
	if s.mode != ModeLive {
		return ErrNotLive
	}
	change := s.input.ChangeDir || in.ChangeDir
	s.input = in
	s.input.ChangeDir = change
	return nil
}

// RestartFromCheckpoint puts the bike back on the last checkpoint reached,
// at rest.
func (s *Session) RestartFromCheckpoint() error {
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.mode != ModeLive:
		return ErrNotLive
	case s.Over():
		return ErrRunOver
	case s.checkpoint == nil:
		return ErrNoCheckpoint
	}
	cp := *s.checkpoint
	right := s.bike.State().FacingRight
	s.bike.Reinit(cp, right)
	st := s.bike.State()
	s.fire(&event.SetPlayerPosition{X: float32(st.Frame.X()), Y: float32(st.Frame.Y()), Right: right})
	s.state = s.bike.State()
	log.Printf("🎮 Session %s restarted from checkpoint (%.2f, %.2f)", s.id, cp.X(), cp.Y())
	return nil
}

// Script returns the script context bound to this session.
func (s *Session) Script() *Script { return s.script }

// =============================================================================
// PLAYBACK CONTROLS
// =============================================================================

func (s *Session) playback() (*replay.Player, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.mode != ModeReplay {
		return nil, ErrNotReplay
	}
	return s.player, nil
}

// SetSpeed sets the playback multiplier. Manual speed turns auto speed off.
func (s *Session) SetSpeed(v float64) error {
	p, err := s.playback()
	if err != nil {
		return err
	}
	s.auto = nil
	p.SetSpeed(v)
	return nil
}

// Pause stops playback.
func (s *Session) Pause() error {
	p, err := s.playback()
	if err != nil {
		return err
	}
	p.Pause()
	return nil
}

// Resume restarts playback at the speed it was paused at.
func (s *Session) Resume() error {
	p, err := s.playback()
	if err != nil {
		return err
	}
	p.Resume()
	return nil
}

// SeekTo jumps playback to t seconds.
func (s *Session) SeekTo(t float64) error {
	p, err := s.playback()
	if err != nil {
		return err
	}
	p.SeekTo(t)
	s.syncPlayer()
	return nil
}

// FastForward jumps the configured number of snapshots ahead.
func (s *Session) FastForward() error {
	p, err := s.playback()
	if err != nil {
		return err
	}
	p.FastForward(s.cfg.Replay.SeekSnapshots)
	s.syncPlayer()
	return nil
}

// FastRewind jumps the configured number of snapshots back.
func (s *Session) FastRewind() error {
	p, err := s.playback()
	if err != nil {
		return err
	}
	p.FastRewind(s.cfg.Replay.SeekSnapshots)
	s.syncPlayer()
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (s *Session) ID() string { return s.id }
func (s *Session) Mode() Mode { return s.mode }
func (s *Session) Level() *level.Compiled { return s.lvl }
func (s *Session) Scene() *scene.Scene { return s.scene }
func (s *Session) Events() *event.Log { return s.events }
func (s *Session) Ghost() *replay.Ghost { return s.ghost }
func (s *Session) Time() float64 { return s.time }
func (s *Session) State() physics.BikeState { return s.state }
func (s *Session) Pickups() []float64 { return s.pickups }
func (s *Session) LastSteps() int { return s.lastSteps }
func (s *Session) Closed() bool { return s.closed }

// Over reports whether the rider died or finished.
func (s *Session) Over() bool { return s.scene.Dead() || s.scene.Won() }

// Checkpoint returns the last checkpoint reached.
func (s *Session) Checkpoint() (mgl64.Vec2, bool) {
	if s.checkpoint == nil {
		return mgl64.Vec2{}, false
	}
	return *s.checkpoint, true
}

// LoopResets returns how often the live loop dropped owed time.
func (s *Session) LoopResets() uint64 {
	if s.loop == nil {
		return 0
	}
	return s.loop.Resets()
}

// RecordedSnapshots returns the number of replay snapshots taken so far.
func (s *Session) RecordedSnapshots() int {
	if s.recorder == nil {
		return 0
	}
	return s.recorder.Snapshots()
}

// Playback returns the replay status, or false for live sessions.
func (s *Session) Playback() (replay.Status, bool) {
	if s.player == nil {
		return replay.Status{}, false
	}
	return s.player.Status(), true
}

// Replay returns the finished recording of a live session (nil while the
// run goes on) or the replay being played.
func (s *Session) Replay() *replay.Replay {
	if s.player != nil {
		return s.player.Replay()
	}
	return s.result
}

// Close ends the session. A live run still in progress is recorded as
// unfinished. Close is idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	if s.mode == ModeLive {
		s.finish()
	}
	s.closed = true
	log.Printf("🛑 Session %s closed at %.2fs", s.id, s.time)
}
