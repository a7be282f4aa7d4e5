// Package validate implements cross-phase consistency checking. It
// runs after all phases complete; findings are reported, never
// blocking.
package validate

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/normalize"
	"github.com/novakit/nova/reference"
)

// PhaseOrder is the fixed phase sequence checked by the validator.
var PhaseOrder = []string{"parse", "disassemble", "split", "finalize"}

// Validator checks cross-phase invariants over persisted metadata.
type Validator struct {
	stores map[string]*metadata.Store
	refs   *reference.Manager
	logger *slog.Logger
}

// New creates a validator over the per-phase metadata stores.
func New(stores map[string]*metadata.Store, refs *reference.Manager, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{stores: stores, refs: refs, logger: logger}
}

// ValidateAll applies the rule set to every file and returns the
// collected findings.
func (v *Validator) ValidateAll(files []string) []string {
	var findings []string
	for _, file := range files {
		findings = append(findings, v.ValidateFile(file)...)
	}
	return findings
}

// ValidateFile applies the per-file rule set across ordered phases.
func (v *Validator) ValidateFile(file string) []string {
	var findings []string

	snapshots := map[string]*metadata.Snapshot{}
	var present []string
	var checked []string
	for _, ph := range PhaseOrder {
		store, ok := v.stores[ph]
		if !ok {
			continue
		}
		checked = append(checked, fmt.Sprintf("%s:%s", ph, store.PathFor(file)))
		if snap := store.Load(file); snap != nil {
			snapshots[ph] = snap
			present = append(present, ph)
		}
	}

	if len(present) < len(checked) {
		// Name every location checked, not a bare "not found".
		findings = append(findings, fmt.Sprintf(
			"metadata for %s missing in %d of %d phases (checked %s)",
			file, len(checked)-len(present), len(checked), strings.Join(checked, ", ")))
	}
	if len(present) == 0 {
		return findings
	}

	findings = append(findings, v.checkVersionMonotonicity(file, present, snapshots)...)
	findings = append(findings, v.checkImmutableFields(file, present, snapshots)...)
	findings = append(findings, v.checkRequiredFields(file, snapshots)...)
	findings = append(findings, v.checkOutputExistence(file, present, snapshots)...)
	findings = append(findings, v.checkEmbeddedFiles(file, present, snapshots)...)
	findings = append(findings, v.checkContentConsistency(file, snapshots)...)

	latest := snapshots[present[len(present)-1]]
	findings = append(findings, v.CheckCircularReferences(latest)...)

	return findings
}

// checkVersionMonotonicity verifies current_version never decreases
// between consecutive phases present for the file.
func (v *Validator) checkVersionMonotonicity(file string, present []string, snaps map[string]*metadata.Snapshot) []string {
	var findings []string
	for i := 1; i < len(present); i++ {
		prev := snaps[present[i-1]]
		cur := snaps[present[i]]
		if cur.CurrentVersion.Compare(prev.CurrentVersion) < 0 {
			findings = append(findings, fmt.Sprintf(
				"%s: version regressed from %s (%s) to %s (%s)",
				file, prev.CurrentVersion, present[i-1], cur.CurrentVersion, present[i]))
		}
	}
	return findings
}

// checkImmutableFields verifies file_path, file_type, and file_size
// are identical across every phase's snapshot.
func (v *Validator) checkImmutableFields(file string, present []string, snaps map[string]*metadata.Snapshot) []string {
	var findings []string
	base := snaps[present[0]]
	for _, ph := range present[1:] {
		snap := snaps[ph]
		if snap.FilePath != base.FilePath {
			findings = append(findings, fmt.Sprintf(
				"%s: file_path changed in phase %s (%q != %q)", file, ph, snap.FilePath, base.FilePath))
		}
		if snap.FileType != base.FileType {
			findings = append(findings, fmt.Sprintf(
				"%s: file_type changed in phase %s (%q != %q)", file, ph, snap.FileType, base.FileType))
		}
		if snap.FileSize != base.FileSize {
			findings = append(findings, fmt.Sprintf(
				"%s: file_size changed in phase %s (%d != %d)", file, ph, snap.FileSize, base.FileSize))
		}
	}
	return findings
}

// checkRequiredFields verifies the per-phase required fields.
func (v *Validator) checkRequiredFields(file string, snaps map[string]*metadata.Snapshot) []string {
	var findings []string
	if snap, ok := snaps["parse"]; ok && snap.OriginalPath == "" {
		findings = append(findings, fmt.Sprintf("%s: parse snapshot missing original_path", file))
	}
	for _, ph := range []string{"disassemble", "split"} {
		if snap, ok := snaps[ph]; ok && len(snap.OutputFiles) == 0 {
			findings = append(findings, fmt.Sprintf("%s: %s snapshot has no output files", file, ph))
		}
	}
	if snap, ok := snaps["split"]; ok && len(snap.References) == 0 {
		findings = append(findings, fmt.Sprintf("%s: split snapshot has no references", file))
	}
	return findings
}

// checkOutputExistence verifies every recorded output path exists.
func (v *Validator) checkOutputExistence(file string, present []string, snaps map[string]*metadata.Snapshot) []string {
	var findings []string
	for _, ph := range present {
		for _, out := range snaps[ph].OutputFiles.Sorted() {
			if _, err := os.Stat(out); err != nil {
				findings = append(findings, fmt.Sprintf(
					"%s: output file %s recorded by phase %s does not exist", file, out, ph))
			}
		}
	}
	return findings
}

// checkContentConsistency verifies the parsed output on disk is still
// structurally equivalent to the content recorded in the parse
// snapshot. Comparison goes through the normalizer so whitespace and
// line-ending drift never counts as divergence.
func (v *Validator) checkContentConsistency(file string, snaps map[string]*metadata.Snapshot) []string {
	snap, ok := snaps["parse"]
	if !ok || snap.Content == "" {
		return nil
	}
	var findings []string
	for _, out := range snap.OutputFiles.Sorted() {
		if !strings.HasSuffix(out, ".parsed.md") {
			continue
		}
		data, err := os.ReadFile(out)
		if err != nil {
			// Existence is checked separately.
			continue
		}
		if !normalize.Equal(string(data), snap.Content) {
			findings = append(findings, fmt.Sprintf(
				"%s: parsed output %s diverged from recorded content", file, out))
		}
	}
	return findings
}

// checkEmbeddedFiles verifies every embedded file has its own
// snapshot in the same phase.
func (v *Validator) checkEmbeddedFiles(file string, present []string, snaps map[string]*metadata.Snapshot) []string {
	var findings []string
	for _, ph := range present {
		store := v.stores[ph]
		for _, embedded := range snaps[ph].EmbeddedFiles {
			if store.Load(embedded) == nil {
				findings = append(findings, fmt.Sprintf(
					"%s: embedded file %s has no %s metadata snapshot", file, embedded, ph))
			}
		}
	}
	return findings
}

// lookup loads the newest snapshot for a file, searching phases in
// reverse order.
func (v *Validator) lookup(file string) *metadata.Snapshot {
	for i := len(PhaseOrder) - 1; i >= 0; i-- {
		store, ok := v.stores[PhaseOrder[i]]
		if !ok {
			continue
		}
		if snap := store.Load(file); snap != nil {
			return snap
		}
	}
	return nil
}
