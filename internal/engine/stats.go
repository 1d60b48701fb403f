package engine

import (
	"sync"
	"time"

	"github.com/anandkaman/saledeedpipeline/internal/model"
)

// liveStats is the §4.D.5 statistics structure: a narrowly-scoped lock
// around plain counters. A mutex is sufficient at the UI's ~2s/10Hz
// poll cadence — there is no hot path inside the lock, just field
// reads/writes.
type liveStats struct {
	mu sync.Mutex

	total, succeeded, failed, cancelled int
	ocrActive, llmActive, inQueue       int
	currentFile                         string
	startedAt                           time.Time
	isRunning                           bool
}

func (s *liveStats) reset(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
	s.succeeded, s.failed, s.cancelled = 0, 0, 0
	s.ocrActive, s.llmActive, s.inQueue = 0, 0, 0
	s.currentFile = ""
	s.startedAt = time.Now().UTC()
	s.isRunning = true
}

func (s *liveStats) snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Snapshot{
		Total:       s.total,
		Processed:   s.succeeded + s.failed + s.cancelled,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
		Cancelled:   s.cancelled,
		OCRActive:   s.ocrActive,
		LLMActive:   s.llmActive,
		InQueue:     s.inQueue,
		CurrentFile: s.currentFile,
		StartedAt:   s.startedAt,
		IsRunning:   s.isRunning,
	}
}

func (s *liveStats) setRunning(v bool) {
	s.mu.Lock()
	s.isRunning = v
	s.mu.Unlock()
}

func (s *liveStats) setCurrentFile(f string) {
	s.mu.Lock()
	s.currentFile = f
	s.mu.Unlock()
}

func (s *liveStats) incOCRActive() { s.mu.Lock(); s.ocrActive++; s.mu.Unlock() }
func (s *liveStats) decOCRActive() { s.mu.Lock(); s.ocrActive--; s.mu.Unlock() }
func (s *liveStats) incLLMActive() { s.mu.Lock(); s.llmActive++; s.mu.Unlock() }
func (s *liveStats) decLLMActive() { s.mu.Lock(); s.llmActive--; s.mu.Unlock() }
func (s *liveStats) incInQueue()   { s.mu.Lock(); s.inQueue++; s.mu.Unlock() }
func (s *liveStats) decInQueue()   { s.mu.Lock(); s.inQueue--; s.mu.Unlock() }

func (s *liveStats) incSucceeded() { s.mu.Lock(); s.succeeded++; s.mu.Unlock() }
func (s *liveStats) incFailed()    { s.mu.Lock(); s.failed++; s.mu.Unlock() }
func (s *liveStats) incCancelled() { s.mu.Lock(); s.cancelled++; s.mu.Unlock() }

// notSucceeded is the document count not yet Succeeded, used by Stop to
// report how many documents were in flight when cancellation fired.
func (s *liveStats) notSucceeded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total - s.succeeded
}
