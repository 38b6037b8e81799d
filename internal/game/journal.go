package game

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"moto-sim/internal/event"
)

const (
	JournalBufferSize     = 1024                   // Circular buffer size
	MaxJournalPerSec      = 10000                  // Global rate limit
	MaxJournalPerSession  = 1000                   // Per-session rate limit per second
	BatchFlushSize        = 64                     // Entries per batch write
	BatchFlushInterval    = 100 * time.Millisecond // How often to flush
	SessionLimiterCleanup = 5 * time.Minute        // Cleanup interval for session limiters
)

// JournalVersion is written into every entry.
const JournalVersion uint8 = 1

// JournalEntry is one line of the journal file.
type JournalEntry struct {
	Version   uint8           `json:"version"`
	Sequence  uint64          `json:"sequence"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"`
}

// Journal is an append-only, rate-limited JSONL record of every event the
// sessions fire. It is for operators; replays do not depend on it.
type Journal struct {
	// Circular buffer (SPSC)
	buffer    [JournalBufferSize]JournalEntry
	writeHead uint64 // atomic - producer position
	readHead  uint64 // atomic - consumer position

	globalLimiter   *rate.Limiter
	sessionLimiters sync.Map // map[string]*sessionLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	fileMu   sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

type sessionLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// NewJournal creates a stopped journal.
func NewJournal() *Journal {
	return &Journal{
		globalLimiter: rate.NewLimiter(MaxJournalPerSec, MaxJournalPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and starts the writer. An empty path
// keeps entries in memory only.
func (j *Journal) Start(filePath string) error {
	if j.running.Load() {
		return nil
	}

	j.filePath = filePath
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		j.file = file
	}

	j.running.Store(true)
	j.writerWg.Add(2)
	go j.writerLoop()
	go j.cleanupLoop()

	log.Printf("📊 Event journal started (%s)", filePath)
	return nil
}

// Stop flushes what is buffered and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.writerWg.Wait()

		j.fileMu.Lock()
		if j.file != nil {
			j.file.Close()
		}
		j.fileMu.Unlock()
	})
}

// Record queues e for the session. It returns false when the journal is
// stopped, rate limited or the entry cannot be encoded.
func (j *Journal) Record(sessionID string, e event.Event) bool {
	if !j.running.Load() {
		return false
	}
	if !j.globalLimiter.Allow() || !j.sessionLimiter(sessionID).Allow() {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}

	data, err := json.Marshal(e)
	if err != nil {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}

	head := atomic.AddUint64(&j.writeHead, 1)
	tail := atomic.LoadUint64(&j.readHead)
	// Full: overwrite the oldest entry.
	if head-tail >= JournalBufferSize {
		atomic.AddUint64(&j.readHead, 1)
		atomic.AddUint64(&j.droppedCount, 1)
	}

	j.buffer[head%JournalBufferSize] = JournalEntry{
		Version:   JournalVersion,
		Sequence:  head,
		Timestamp: time.Now().UnixNano(),
		SessionID: sessionID,
		Event:     data,
	}
	atomic.AddUint64(&j.totalCount, 1)
	return true
}

func (j *Journal) sessionLimiter(id string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := j.sessionLimiters.Load(id); ok {
		e := v.(*sessionLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	e := &sessionLimiterEntry{limiter: rate.NewLimiter(MaxJournalPerSession, MaxJournalPerSession/10)}
	e.lastUsed.Store(now)
	actual, _ := j.sessionLimiters.LoadOrStore(id, e)
	return actual.(*sessionLimiterEntry).limiter
}

func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]JournalEntry, 0, BatchFlushSize)
	for {
		select {
		case <-j.stopChan:
			for batch = j.collectBatch(batch[:0]); len(batch) > 0; batch = j.collectBatch(batch[:0]) {
				j.flushBatch(batch)
			}
			return
		case <-ticker.C:
			if batch = j.collectBatch(batch[:0]); len(batch) > 0 {
				j.flushBatch(batch)
			}
		}
	}
}

func (j *Journal) cleanupLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(SessionLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.cleanupSessionLimiters(time.Now().Add(-SessionLimiterCleanup))
		}
	}
}

func (j *Journal) cleanupSessionLimiters(cutoff time.Time) {
	j.sessionLimiters.Range(func(key, value interface{}) bool {
		if value.(*sessionLimiterEntry).lastUsed.Load() < cutoff.UnixNano() {
			j.sessionLimiters.Delete(key)
		}
		return true
	})
}

func (j *Journal) collectBatch(batch []JournalEntry) []JournalEntry {
	head := atomic.LoadUint64(&j.writeHead)
	tail := atomic.LoadUint64(&j.readHead)

	for i := tail + 1; i <= head && len(batch) < BatchFlushSize; i++ {
		batch = append(batch, j.buffer[i%JournalBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&j.readHead, uint64(len(batch)))
	}
	return batch
}

// flushBatch appends newline-delimited JSON.
func (j *Journal) flushBatch(batch []JournalEntry) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	if j.file == nil {
		return
	}
	for _, entry := range batch {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		j.file.Write(append(data, '\n'))
	}
}

// GetStats returns counters for monitoring.
func (j *Journal) GetStats() map[string]interface{} {
	head := atomic.LoadUint64(&j.writeHead)
	tail := atomic.LoadUint64(&j.readHead)

	return map[string]interface{}{
		"total":   atomic.LoadUint64(&j.totalCount),
		"dropped": atomic.LoadUint64(&j.droppedCount),
		"pending": head - tail,
		"running": j.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped entries.
func (j *Journal) GetDroppedCount() uint64 { return atomic.LoadUint64(&j.droppedCount) }

// GetTotalCount returns the number of accepted entries.
func (j *Journal) GetTotalCount() uint64 { return atomic.LoadUint64(&j.totalCount) }
