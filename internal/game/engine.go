package game

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"moto-sim/internal/config"
	"moto-sim/internal/event"
	"moto-sim/internal/level"
	"moto-sim/internal/replay"
)

// ErrNoSession is returned by commands issued before a session is loaded.
var ErrNoSession = errors.New("no session loaded")

// FrameStats describes one engine frame.
type FrameStats struct {
	Mode       Mode
	Duration   time.Duration
	Steps      int
	LoopResets uint64 // total for the session
	Recorded   int    // replay snapshots recorded so far
}

// Metrics receives per-frame numbers and event outcomes. The api package
// implements it.
type Metrics interface {
	event.Observer
	ObserveFrame(FrameStats)
}

// EventEntry is one event log line as served to readers.
type EventEntry struct {
	Index   int             `json:"index"`
	Applied bool            `json:"applied"`
	Event   json.RawMessage `json:"event"`
}

// Engine runs one session on a ticker goroutine. It is the session's only
// owner: commands take the engine lock, readers use snapshots.
type Engine struct {
	mu      sync.RWMutex
	session *Session

	frameRate  int
	running    bool
	ticker     *time.Ticker
	stopChan   chan struct{}
	frameCount uint64
	lastFrame  time.Time

	// Snapshot system for lock-free reader separation
	limits       ResourceLimits
	snapshotPool *SnapshotPool

	journal *Journal
	metrics Metrics

	onRunOver func(*replay.Replay)
	overFired bool
}

// NewEngine creates an idle engine. Load a session before starting it.
func NewEngine(cfg config.AppConfig) *Engine {
	frameRate := cfg.Simulation.FrameRate
	if frameRate <= 0 {
		frameRate = config.DefaultSimulation().FrameRate
	}
	return &Engine{
		frameRate:    frameRate,
		limits:       DefaultLimits,
		snapshotPool: NewSnapshotPool(DefaultLimits),
		journal:      NewJournal(),
	}
}

// SetMetrics installs the metrics sink. It also observes the event log of
// the current and every later session.
func (e *Engine) SetMetrics(m Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
	if e.session != nil {
		e.session.Events().SetObserver(m)
	}
}

// OnRunOver registers fn to receive the recording when a live run ends by
// death, victory or Close. fn runs under the engine lock and must not call
// back into the engine.
func (e *Engine) OnRunOver(fn func(*replay.Replay)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRunOver = fn
}

// Load replaces the running session. The previous one is closed.
func (e *Engine) Load(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		e.closeSession()
	}
	e.session = s
	e.overFired = false
	if e.metrics != nil {
		s.Events().SetObserver(e.metrics)
	}
	e.lastFrame = time.Now()
	e.ProduceSnapshot()
	log.Printf("🎮 Engine loaded %s session %s", s.Mode(), s.ID())
}

// Start begins the frame loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.lastFrame = time.Now()
	// Stop closes the channel, so every start gets a fresh one.
	e.stopChan = make(chan struct{})
	e.ticker = time.NewTicker(time.Second / time.Duration(e.frameRate))
	ticker, stop := e.ticker, e.stopChan
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🎮 Engine started at %d FPS", e.frameRate)
}

// Stop stops the frame loop and closes the session.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		if e.session != nil && !e.session.Closed() {
			e.closeSession()
			e.ProduceSnapshot()
		}
		return
	}

	e.running = false
	if e.ticker != nil {
		e.ticker.Stop()
	}
	close(e.stopChan)
	if e.session != nil {
		e.closeSession()
		e.ProduceSnapshot()
	}
	log.Println("🛑 Engine stopped")
}

// Running reports whether the frame loop is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// tick runs one frame with the wall time elapsed since the last one.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	dt := now.Sub(e.lastFrame).Seconds()
	e.lastFrame = now
	e.frame(dt)
}

// Advance runs one frame of dt seconds directly. Tests and tools use it
// instead of the ticker.
func (e *Engine) Advance(dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frame(dt)
}

// frame must be called with e.mu held.
func (e *Engine) frame(dt float64) {
	s := e.session
	if s == nil || s.Closed() {
		return
	}
	e.frameCount++
	start := time.Now()
	steps := s.Frame(dt)

	if e.metrics != nil {
		e.metrics.ObserveFrame(FrameStats{
			Mode:       s.Mode(),
			Duration:   time.Since(start),
			Steps:      steps,
			LoopResets: s.LoopResets(),
			Recorded:   s.RecordedSnapshots(),
		})
	}
	if s.Mode() == ModeLive && s.Over() {
		e.notifyOver()
	}
	e.ProduceSnapshot()
}

// closeSession must be called with e.mu held.
func (e *Engine) closeSession() {
	e.session.Close()
	if e.session.Mode() == ModeLive {
		e.notifyOver()
	}
}

func (e *Engine) notifyOver() {
	if e.overFired || e.onRunOver == nil {
		return
	}
	if rp := e.session.Replay(); rp != nil {
		e.overFired = true
		e.onRunOver(rp)
	}
}

// Do runs fn on the session under the engine lock and publishes a fresh
// snapshot afterwards. It is how commands reach the session.
func (e *Engine) Do(fn func(s *Session) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return ErrNoSession
	}
	err := fn(e.session)
	e.ProduceSnapshot()
	return err
}

// GetSnapshot returns the latest snapshot for lock-free reading.
func (e *Engine) GetSnapshot() *SessionSnapshot {
	return e.snapshotPool.AcquireRead()
}

// ProduceSnapshot copies the session into the next snapshot slot. Called at
// the end of each frame with e.mu held.
func (e *Engine) ProduceSnapshot() {
	if e.session == nil {
		return
	}
	snap := e.snapshotPool.AcquireWrite()
	snap.Frame = e.frameCount
	e.snapshotPool.fill(snap, e.session)
	e.snapshotPool.PublishWrite()
}

// Level returns the compiled level of the current session.
func (e *Engine) Level() *level.Compiled {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return nil
	}
	return e.session.Level()
}

// Events returns up to limit event log entries starting at from, plus the
// log length.
func (e *Engine) Events(from, limit int) ([]EventEntry, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return nil, 0
	}

	el := e.session.Events()
	entries := el.Entries()
	from = min(max(from, 0), len(entries))
	to := min(from+max(limit, 0), len(entries))

	out := make([]EventEntry, 0, to-from)
	for i := from; i < to; i++ {
		data, err := json.Marshal(entries[i])
		if err != nil {
			continue
		}
		out = append(out, EventEntry{Index: i, Applied: el.IsApplied(i), Event: data})
	}
	return out, len(entries)
}

// Journal returns the engine's event journal. Pass it to session options
// to have the session's events journaled.
func (e *Engine) Journal() *Journal { return e.journal }

// StartJournal starts the journal writer.
func (e *Engine) StartJournal(filePath string) error {
	return e.journal.Start(filePath)
}

// StopJournal flushes and stops the journal.
func (e *Engine) StopJournal() {
	e.journal.Stop()
}

// GetJournalStats returns journal statistics for monitoring.
func (e *Engine) GetJournalStats() map[string]interface{} {
	return e.journal.GetStats()
}

// GetLimits returns the snapshot resource limits.
func (e *Engine) GetLimits() ResourceLimits {
	return e.limits
}

// FrameCount returns the number of frames run.
func (e *Engine) FrameCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frameCount
}
