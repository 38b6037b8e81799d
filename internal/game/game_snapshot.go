package game

import (
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"moto-sim/internal/level"
	"moto-sim/internal/physics"
	"moto-sim/internal/replay"
	"moto-sim/internal/scene"
)

// ResourceLimits caps what a snapshot copies out of a session.
type ResourceLimits struct {
	MaxEntities int
	MaxZones    int
	MaxMessages int
	MaxBlocks   int
}

// DefaultLimits are sized for large levels.
var DefaultLimits = ResourceLimits{
	MaxEntities: 512,
	MaxZones:    64,
	MaxMessages: 16,
	MaxBlocks:   128,
}

// BlockSnapshot is a dynamic block's placement.
type BlockSnapshot struct {
	ID       string     `json:"id"`
	Position mgl64.Vec2 `json:"position"`
	Rotation float64    `json:"rotation"`
	Moving   bool       `json:"moving"`
}

// GhostSnapshot is the ghost bike and its standing against the player.
type GhostSnapshot struct {
	Player   string            `json:"player"`
	Bike     physics.BikeState `json:"bike"`
	Finished bool              `json:"finished"`
	Dead     bool              `json:"dead"`
	Diff     float64           `json:"diff"`
}

// SessionSnapshot is an immutable copy of a session for readers.
// Slices are pre-allocated and capped by ResourceLimits.
type SessionSnapshot struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Frame     uint64    `json:"frame"`

	SessionID string  `json:"sessionId"`
	LevelID   string  `json:"levelId"`
	Mode      Mode    `json:"mode"`
	Time      float64 `json:"time"`

	Bike     physics.BikeState `json:"bike"`
	Entities []scene.Entity    `json:"entities"`
	Zones    []scene.Zone      `json:"zones"`
	Blocks   []BlockSnapshot   `json:"blocks"`
	Messages []string          `json:"messages"`
	Arrow    scene.Arrow       `json:"arrow"`
	Camera   scene.Camera      `json:"camera"`
	Gravity  mgl64.Vec2        `json:"gravity"`

	Dead         bool    `json:"dead"`
	Won          bool    `json:"won"`
	Penalty      float64 `json:"penalty"`
	Strawberries int     `json:"strawberries"` // left to collect
	Pickups      int     `json:"pickups"`
	Checkpoint   bool    `json:"checkpoint"`

	HasGhost bool          `json:"hasGhost"`
	Ghost    GhostSnapshot `json:"ghost"`

	HasPlayback bool          `json:"hasPlayback"`
	Playback    replay.Status `json:"playback"`

	Events        int    `json:"events"`
	EventsApplied int    `json:"eventsApplied"`
	Steps         int    `json:"steps"`
	LoopResets    uint64 `json:"loopResets"`
	Recorded      int    `json:"recorded"`
	Closed        bool   `json:"closed"`
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering for lock-free producer/consumer.
type SnapshotPool struct {
	snapshots [3]SessionSnapshot
	limits    ResourceLimits
	writeIdx  uint32 // atomic - producer index
	readIdx   uint32 // atomic - consumer index
	sequence  uint64 // atomic - monotonic sequence
}

// NewSnapshotPool creates a pool with pre-allocated slices.
func NewSnapshotPool(limits ResourceLimits) *SnapshotPool {
	pool := &SnapshotPool{limits: limits}
	for i := 0; i < 3; i++ {
		pool.snapshots[i] = SessionSnapshot{
			Entities: make([]scene.Entity, 0, limits.MaxEntities),
			Zones:    make([]scene.Zone, 0, limits.MaxZones),
			Blocks:   make([]BlockSnapshot, 0, limits.MaxBlocks),
			Messages: make([]string, 0, limits.MaxMessages),
		}
	}
	return pool
}

// AcquireWrite gets the next write slot (producer only, called from the
// engine tick). Slices are reset with their capacity kept.
func (p *SnapshotPool) AcquireWrite() *SessionSnapshot {
	idx := (atomic.LoadUint32(&p.writeIdx) + 1) % 3
	atomic.StoreUint32(&p.writeIdx, idx)
	snap := &p.snapshots[idx]

	*snap = SessionSnapshot{
		Entities: snap.Entities[:0],
		Zones:    snap.Zones[:0],
		Blocks:   snap.Blocks[:0],
		Messages: snap.Messages[:0],
	}
	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite makes the last written snapshot the one readers get.
func (p *SnapshotPool) PublishWrite() {
	atomic.StoreUint32(&p.readIdx, atomic.LoadUint32(&p.writeIdx))
}

// AcquireRead gets the latest complete snapshot. Before the first publish
// it is the zero snapshot (Sequence 0).
func (p *SnapshotPool) AcquireRead() *SessionSnapshot {
	return &p.snapshots[atomic.LoadUint32(&p.readIdx)%3]
}

// GetLimits returns the resource limits.
func (p *SnapshotPool) GetLimits() ResourceLimits { return p.limits }

// fill copies s into snap, respecting the pool limits.
func (p *SnapshotPool) fill(snap *SessionSnapshot, s *Session) {
	sc := s.Scene()
	lim := p.limits

	snap.SessionID = s.ID()
	snap.LevelID = s.Level().ID
	snap.Mode = s.Mode()
	snap.Time = s.Time()
	snap.Bike = s.State()

	for _, e := range sc.LiveEntities() {
		if len(snap.Entities) >= lim.MaxEntities {
			break
		}
		snap.Entities = append(snap.Entities, *e)
	}
	for _, z := range sc.Zones() {
		if len(snap.Zones) >= lim.MaxZones {
			break
		}
		snap.Zones = append(snap.Zones, *z)
	}
	for _, d := range s.index.DynamicBlocks() {
		if len(snap.Blocks) >= lim.MaxBlocks {
			break
		}
		b, err := sc.Block(d.ID)
		if err != nil {
			continue
		}
		snap.Blocks = append(snap.Blocks, BlockSnapshot{
			ID:       d.ID,
			Position: d.Position(),
			Rotation: d.Rotation(),
			Moving:   b.Motion().Kind != scene.MotionNone,
		})
	}
	for _, m := range sc.Messages() {
		if len(snap.Messages) >= lim.MaxMessages {
			break
		}
		snap.Messages = append(snap.Messages, m)
	}

	snap.Arrow = sc.Arrow()
	snap.Camera = sc.Camera()
	snap.Gravity = sc.Gravity()
	snap.Dead = sc.Dead()
	snap.Won = sc.Won()
	snap.Penalty = sc.Penalty()
	snap.Strawberries = sc.CountLive(level.KindStrawberry)
	snap.Pickups = len(s.Pickups())
	_, snap.Checkpoint = s.Checkpoint()

	if g := s.Ghost(); g != nil {
		snap.HasGhost = true
		snap.Ghost = GhostSnapshot{
			Player:   g.PlayerName(),
			Bike:     g.State(),
			Finished: g.Finished(),
			Dead:     g.Dead(),
			Diff:     g.DiffToPlayer(),
		}
	}
	snap.Playback, snap.HasPlayback = s.Playback()

	snap.Events = s.Events().Len()
	snap.EventsApplied = s.Events().Applied()
	snap.Steps = s.LastSteps()
	snap.LoopResets = s.LoopResets()
	snap.Recorded = s.RecordedSnapshots()
	snap.Closed = s.Closed()
}
