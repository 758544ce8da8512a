// Package report keeps the outcome of the most recent scan and index runs
// in memory for the status endpoint.
package report

import (
	"sync"
	"time"

	"clipdex/internal/index"
	"clipdex/internal/scan"
)

// Recorder stores the latest scan and index run results. Safe for
// concurrent use.
type Recorder struct {
	mu        sync.Mutex
	lastScan  *scan.Summary
	lastIndex *index.Stats
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordScan stores the result of a scan run.
func (r *Recorder) RecordScan(summary *scan.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastScan = summary
}

// RecordIndex stores the result of an index run.
func (r *Recorder) RecordIndex(stats *index.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastIndex = stats
}

// Snapshot is the recorder state at one point in time.
type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	LastScan    *scan.Summary `json:"last_scan,omitempty"`
	LastIndex   *index.Stats  `json:"last_index,omitempty"`
}

// Snapshot returns a copy of the current state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		GeneratedAt: time.Now(),
		LastScan:    r.lastScan,
		LastIndex:   r.lastIndex,
	}
}
