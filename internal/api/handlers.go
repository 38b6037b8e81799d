package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"moto-sim/internal/game"
	"moto-sim/internal/geom"
	"moto-sim/internal/physics"
	"moto-sim/internal/replay"
)

// MaxEventsPage caps GET /api/events.
const MaxEventsPage = 500

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.GetSnapshot()
	if snap.Sequence == 0 {
		writeError(w, "no session loaded", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	// Lock-free snapshot; no engine lock on the polling path
	snap := h.engine.GetSnapshot()
	writeJSON(w, map[string]interface{}{
		"sequence":      snap.Sequence,
		"frame":         snap.Frame,
		"mode":          snap.Mode,
		"time":          snap.Time,
		"steps":         snap.Steps,
		"loopResets":    snap.LoopResets,
		"recorded":      snap.Recorded,
		"events":        snap.Events,
		"eventsApplied": snap.EventsApplied,
		"journal":       h.engine.GetJournalStats(),
	})
}

// levelView is the geometry a client needs to draw the level.
type levelView struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Bounds     geom.Rect   `json:"bounds"`
	ErrorCount int         `json:"errorCount"`
	Blocks     []blockView `json:"blocks"`
}

type blockView struct {
	ID         string         `json:"id"`
	Dynamic    bool           `json:"dynamic"`
	Background bool           `json:"background"`
	Errors     int            `json:"errors"`
	Polygons   []geom.Polygon `json:"polygons"`
}

func (h *routerHandlers) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	lvl := h.engine.Level()
	if lvl == nil {
		writeError(w, "no session loaded", http.StatusServiceUnavailable)
		return
	}

	view := levelView{
		ID:         lvl.ID,
		Name:       lvl.Name,
		Bounds:     lvl.Bounds,
		ErrorCount: lvl.ErrorCount,
		Blocks:     make([]blockView, 0, len(lvl.Blocks)),
	}
	for _, b := range lvl.Blocks {
		view.Blocks = append(view.Blocks, blockView{
			ID:         b.ID,
			Dynamic:    b.Dynamic,
			Background: b.Background,
			Errors:     b.Errors,
			Polygons:   b.Polygons,
		})
	}
	writeJSON(w, view)
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from", 0)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit = min(limit, MaxEventsPage)

	entries, total := h.engine.Events(from, limit)
	if entries == nil {
		entries = []game.EventEntry{}
	}
	writeJSON(w, map[string]interface{}{
		"total":  total,
		"from":   from,
		"events": entries,
	})
}

// replayView summarizes a recording without its snapshots.
type replayView struct {
	LevelID    string  `json:"levelId"`
	Player     string  `json:"player"`
	SampleRate float32 `json:"sampleRate"`
	Finished   bool    `json:"finished"`
	FinishTime float32 `json:"finishTime"`
	Duration   float64 `json:"duration"`
	Snapshots  int     `json:"snapshots"`
	Events     int     `json:"events"`

	Playback *replay.Status `json:"playback,omitempty"`
}

func (h *routerHandlers) currentReplay() (*replay.Replay, error) {
	var rp *replay.Replay
	err := h.engine.Do(func(s *game.Session) error {
		rp = s.Replay()
		return nil
	})
	return rp, err
}

func (h *routerHandlers) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	rp, err := h.currentReplay()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if rp == nil {
		writeError(w, "run still in progress", http.StatusNotFound)
		return
	}

	view := replayView{
		LevelID:    rp.LevelID,
		Player:     rp.Player,
		SampleRate: rp.SampleRate,
		Finished:   rp.Finished,
		FinishTime: rp.FinishTime,
		Duration:   rp.Duration(),
		Snapshots:  len(rp.Snapshots),
		Events:     len(rp.Events),
	}
	if snap := h.engine.GetSnapshot(); snap.HasPlayback {
		st := snap.Playback
		view.Playback = &st
	}
	writeJSON(w, view)
}

func (h *routerHandlers) handleGetReplayFile(w http.ResponseWriter, r *http.Request) {
	rp, err := h.currentReplay()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if rp == nil {
		writeError(w, "run still in progress", http.StatusNotFound)
		return
	}

	data, err := replay.Encode(rp)
	if err != nil {
		log.Printf("❌ Replay encode failed: %v", err)
		writeError(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.rpl"`, rp.LevelID))
	w.Write(data)
}

// =============================================================================
// CONTROLS
// =============================================================================

func (h *routerHandlers) handleInput(w http.ResponseWriter, r *http.Request) {
	var in physics.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if in.Drive < -1 || in.Drive > 1 || in.Pull < -1 || in.Pull > 1 {
		writeError(w, "drive and pull must be within [-1, 1]", http.StatusBadRequest)
		return
	}
	h.command(w, func(s *game.Session) error { return s.SetInput(in) })
}

func (h *routerHandlers) handleRestart(w http.ResponseWriter, r *http.Request) {
	h.command(w, func(s *game.Session) error { return s.RestartFromCheckpoint() })
}

func (h *routerHandlers) handleReplaySpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed *float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed == nil {
		writeError(w, "speed is required", http.StatusBadRequest)
		return
	}
	h.command(w, func(s *game.Session) error { return s.SetSpeed(*req.Speed) })
}

func (h *routerHandlers) handleReplayPause(w http.ResponseWriter, r *http.Request) {
	h.command(w, (*game.Session).Pause)
}

func (h *routerHandlers) handleReplayResume(w http.ResponseWriter, r *http.Request) {
	h.command(w, (*game.Session).Resume)
}

func (h *routerHandlers) handleReplaySeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time *float64 `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Time == nil {
		writeError(w, "time is required", http.StatusBadRequest)
		return
	}
	h.command(w, func(s *game.Session) error { return s.SeekTo(*req.Time) })
}

func (h *routerHandlers) handleReplayForward(w http.ResponseWriter, r *http.Request) {
	h.command(w, (*game.Session).FastForward)
}

func (h *routerHandlers) handleReplayRewind(w http.ResponseWriter, r *http.Request) {
	h.command(w, (*game.Session).FastRewind)
}

// command runs fn on the session and answers with the fresh snapshot time.
func (h *routerHandlers) command(w http.ResponseWriter, fn func(s *game.Session) error) {
	if err := h.engine.Do(fn); err != nil {
		writeSessionError(w, err)
		return
	}
	snap := h.engine.GetSnapshot()
	writeJSON(w, map[string]interface{}{
		"success":  true,
		"time":     snap.Time,
		"playback": snap.Playback,
	})
}

// Helper functions (package-level for reuse)

// writeSessionError maps session errors to status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrNoSession):
		code = http.StatusServiceUnavailable
	case errors.Is(err, game.ErrSessionClosed):
		code = http.StatusGone
	case errors.Is(err, game.ErrNotLive), errors.Is(err, game.ErrNotReplay),
		errors.Is(err, game.ErrRunOver), errors.Is(err, game.ErrNoCheckpoint):
		code = http.StatusConflict
	case errors.Is(err, game.ErrEventFailed):
		code = http.StatusUnprocessableEntity
	}
	writeError(w, err.Error(), code)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
