package engine

import (
	"sync"
	"time"
)

// HistorySize bounds the request history ring.
const HistorySize = 50

// HistoryEntry is a preview of one answered request.
type HistoryEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	ActualModel     string    `json:"actual_model"`
	Provider        string    `json:"provider"`
	RequestPreview  string    `json:"request_preview"`
	ResponsePreview string    `json:"response_preview"`
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Requests  int64 `json:"requests"`
	Errors    int64 `json:"errors"`
	Fallbacks int64 `json:"fallbacks"`
}

// recorder holds counters and the history ring.
type recorder struct {
	mu      sync.Mutex
	stats   Stats
	history []HistoryEntry // newest first
}

func (r *recorder) request() {
	r.mu.Lock()
	r.stats.Requests++
	r.mu.Unlock()
}

func (r *recorder) failure() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *recorder) success(fallbacks int, entry HistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Fallbacks += int64(fallbacks)
	r.history = append([]HistoryEntry{entry}, r.history...)
	if len(r.history) > HistorySize {
		r.history = r.history[:HistorySize]
	}
}

func (r *recorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *recorder) entries() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HistoryEntry(nil), r.history...)
}
