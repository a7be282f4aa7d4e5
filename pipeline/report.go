package pipeline

import (
	"sync"
	"time"

	"github.com/novakit/nova/phase"
)

// FileError is one per-file, per-phase failure entry in a run report.
type FileError struct {
	File  string `json:"file"`
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// RunReport aggregates the outcome of one pipeline run.
type RunReport struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Total      int         `json:"total"`
	Processed  int         `json:"processed"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Errors     []FileError `json:"errors,omitempty"`

	mu sync.Mutex
}

func (r *RunReport) recordProcessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Processed++
}

func (r *RunReport) recordSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped++
}

func (r *RunReport) recordFailure(file, phaseName, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.Errors = append(r.Errors, FileError{File: file, Phase: phaseName, Error: message})
}

// FinalizeReport is the aggregate of phase finalization: per-phase
// category counts plus the consistency and reference findings.
type FinalizeReport struct {
	Counts map[string]map[string]phase.CategoryCounts `json:"counts"`
	Errors []string                                   `json:"errors,omitempty"`
}
