// Package phase implements the pipeline's four processing phases.
// Files move Parse → Disassemble → Split → Finalize; a phase only
// runs when the previous one returned a metadata snapshot.
package phase

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/novakit/nova/metadata"
)

// FileStatus records a file's outcome for one phase of one run.
type FileStatus string

const (
	StatusPending     FileStatus = "pending"
	StatusSuccessful  FileStatus = "successful"
	StatusFailed      FileStatus = "failed"
	StatusSkipped     FileStatus = "skipped"
	StatusUnchanged   FileStatus = "unchanged"
	StatusReprocessed FileStatus = "reprocessed"
)

// CategoryCounts summarizes one output category at phase finalize.
type CategoryCounts struct {
	Created int `json:"created"`
	Empty   int `json:"empty"`
	Failed  int `json:"failed"`
}

// Phase is one stage of the pipeline.
type Phase interface {
	// Name identifies the phase in metadata and reports.
	Name() string

	// ProcessFile runs the phase for one file. meta is the snapshot
	// produced by the previous phase (nil for the first phase). A nil
	// snapshot with a nil error means the file was skipped; an error
	// marks the file failed for this phase.
	ProcessFile(ctx context.Context, file string, meta *metadata.Snapshot) (*metadata.Snapshot, error)

	// Finalize flushes phase-level aggregate outputs after every file
	// has passed through, returning per-category counts.
	Finalize(ctx context.Context) (map[string]CategoryCounts, error)

	// State exposes the phase's per-run state for reporting.
	State() *RunState
}

// Reporter is implemented by phases that accumulate a findings report
// during finalize.
type Reporter interface {
	Report() []string
}

// RunState tracks per-file outcomes and phase-specific stats for one
// run. Each input file appears exactly once per phase.
type RunState struct {
	mu    sync.Mutex
	files map[string]FileStatus
	stats map[string]int
}

// NewRunState creates an empty run state.
func NewRunState() *RunState {
	s := &RunState{}
	s.Reset()
	return s
}

// Reset clears all outcomes and stats at run start.
func (s *RunState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]FileStatus)
	s.stats = make(map[string]int)
}

// Record sets a file's outcome for this phase.
func (s *RunState) Record(file string, status FileStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file] = status
}

// Status returns a file's recorded outcome.
func (s *RunState) Status(file string) (FileStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.files[file]
	return st, ok
}

// Count returns how many files have the given status.
func (s *RunState) Count(status FileStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.files {
		if st == status {
			n++
		}
	}
	return n
}

// Files returns the sorted files with the given status.
func (s *RunState) Files(status FileStatus) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for f, st := range s.files {
		if st == status {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// AddStat increments a phase-specific counter.
func (s *RunState) AddStat(key string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[key] += delta
}

// Stat returns a phase-specific counter.
func (s *RunState) Stat(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[key]
}

// MarshalJSON serializes the state with sorted keys for reproducible
// diffs.
func (s *RunState) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := map[FileStatus][]string{}
	for f, st := range s.files {
		byStatus[st] = append(byStatus[st], f)
	}
	for _, files := range byStatus {
		sort.Strings(files)
	}
	return json.Marshal(struct {
		Files map[FileStatus][]string `json:"files"`
		Stats map[string]int          `json:"stats"`
	}{byStatus, s.stats})
}

// outputPath mirrors a source file's input-relative location under a
// phase output directory, applying a new name built from the stem.
func outputPath(outDir, inputRoot, file, suffix string) string {
	rel := relativeOrBase(inputRoot, file)
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(outDir, stem+suffix)
}

func relativeOrBase(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(file)
	}
	return rel
}
