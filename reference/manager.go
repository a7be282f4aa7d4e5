package reference

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/novakit/nova/pathresolve"
)

// markerRe matches the inline marker grammar [TYPE:payload].
var markerRe = regexp.MustCompile(`\[(\w+):([^\]]+)\]`)

// Pointer id constraints.
const maxPointerID = 1000

// Manager tracks every reference extracted during a run. Pointer ids
// are global, so all mutation goes through one lock per Manager; the
// offset-zero precedence rule cannot be decomposed per file.
type Manager struct {
	mu sync.Mutex

	logger *slog.Logger

	// table is the global reference table keyed by occurrence.
	table map[string]*Reference
	// fileRefs groups references by source file.
	fileRefs map[string][]*Reference
	// offsets maps file -> character offset -> marker string.
	offsets map[string]map[int]string
	// pointers is the global pointer table.
	pointers map[int]*Reference
	// invalid collects references that failed validation.
	invalid []*Reference
}

// NewManager creates an empty reference manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger,
		table:    make(map[string]*Reference),
		fileRefs: make(map[string][]*Reference),
		offsets:  make(map[string]map[int]string),
		pointers: make(map[int]*Reference),
	}
}

// ExtractReferences scans content line by line (1-indexed) for
// reference markers and records them. It returns every reference
// found, including invalid ones.
func (m *Manager) ExtractReferences(content, sourceFile string) []*Reference {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []*Reference
	lineStart := 0
	for lineNo, line := range strings.Split(content, "\n") {
		for _, match := range markerRe.FindAllStringSubmatchIndex(line, -1) {
			refType := Type(line[match[2]:match[3]])
			payload := line[match[4]:match[5]]
			offset := lineStart + match[0]
			length := match[1] - match[0]

			switch refType {
			case TypePointer:
				ref := m.recordPointer(payload, sourceFile, lineNo+1, offset, length)
				if ref != nil {
					found = append(found, ref)
				}
			case TypeAttach, TypeNote:
				ref := m.recordMarker(refType, payload, sourceFile, lineNo+1, offset, length)
				if ref != nil {
					found = append(found, ref)
				}
			default:
				// Unknown marker types are left in the text untouched.
			}
		}
		lineStart += len(line) + 1
	}
	return found
}

// recordMarker stores an ATTACH or NOTE reference in the reference
// table, the per-file set, and the offset map.
func (m *Manager) recordMarker(refType Type, payload, sourceFile string, line, offset, length int) *Reference {
	ref := &Reference{
		Type:       refType,
		SourceFile: sourceFile,
		LineNumber: line,
		Offset:     offset,
		Length:     length,
		IsValid:    true,
	}

	if refType == TypeAttach {
		// ATTACH payload is "<TYPE>:<name>" or a bare target.
		if typeTag, name, ok := strings.Cut(payload, ":"); ok {
			ref.Section = typeTag
			ref.ID = EncodeID(name)
			ref.TargetFile = strings.TrimSpace(name)
		} else {
			ref.ID = EncodeID(payload)
			ref.TargetFile = strings.TrimSpace(payload)
		}
		ref.FileType = FileTypeFor(ref.TargetFile)
		ref.Date = pathresolve.DateSegment(ref.TargetFile)
	} else {
		ref.ID = EncodeID(payload)
	}

	if byOffset, ok := m.offsets[sourceFile]; ok {
		if prior, taken := byOffset[offset]; taken {
			ref.IsValid = false
			m.invalid = append(m.invalid, ref)
			m.logger.Warn("duplicate reference offset",
				slog.String("file", sourceFile),
				slog.Int("offset", offset),
				slog.String("existing", prior))
			return ref
		}
	}

	m.insert(ref)
	return ref
}

// recordPointer parses and validates a POINTER marker.
func (m *Manager) recordPointer(payload, sourceFile string, line, offset, length int) *Reference {
	ref := &Reference{
		Type:       TypePointer,
		ID:         strings.TrimSpace(payload),
		SourceFile: sourceFile,
		LineNumber: line,
		Offset:     offset,
		Length:     length,
	}

	id, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		ref.IsValid = false
		m.invalid = append(m.invalid, ref)
		m.logger.Warn("non-numeric pointer id",
			slog.String("file", sourceFile), slog.String("id", payload))
		return ref
	}
	ref.PointerID = id

	if ok, reason := m.validatePointer(ref); !ok {
		ref.IsValid = false
		m.invalid = append(m.invalid, ref)
		m.logger.Warn("rejected pointer",
			slog.String("file", sourceFile),
			slog.Int("pointer_id", id),
			slog.Int("offset", offset),
			slog.String("reason", reason))
		return ref
	}

	ref.IsValid = true
	m.pointers[id] = ref
	m.insert(ref)
	return ref
}

// validatePointer applies the global pointer rules. Caller holds the
// lock. A pointer at offset 0 replaces a prior non-zero entry for the
// same id; a second offset-0 pointer is rejected as a duplicate.
func (m *Manager) validatePointer(ref *Reference) (bool, string) {
	id := ref.PointerID
	if id <= 0 || id%2 != 0 {
		return false, "pointer id must be a positive even integer"
	}
	if id > maxPointerID {
		return false, fmt.Sprintf("pointer id exceeds %d", maxPointerID)
	}

	existing, ok := m.pointers[id]
	if !ok {
		return true, ""
	}
	if existing.Offset == 0 && ref.Offset == 0 {
		return false, "duplicate pointer at offset zero"
	}
	if ref.Offset == 0 {
		// Offset-zero precedence: the new pointer wins and the old
		// entry is purged everywhere.
		m.purge(existing)
		return true, ""
	}
	if existing.Offset == 0 {
		return false, "pointer at offset zero takes precedence"
	}
	if existing.Offset == ref.Offset {
		return false, "duplicate pointer at same offset"
	}
	return true, ""
}

// insert records a validated reference in all tables. Caller holds
// the lock.
func (m *Manager) insert(ref *Reference) {
	m.table[ref.Key()] = ref
	m.fileRefs[ref.SourceFile] = append(m.fileRefs[ref.SourceFile], ref)
	byOffset, ok := m.offsets[ref.SourceFile]
	if !ok {
		byOffset = make(map[int]string)
		m.offsets[ref.SourceFile] = byOffset
	}
	byOffset[ref.Offset] = ref.Marker()
}

// purge removes a reference from the table, the per-file set, the
// offset map, the pointer table, and the invalid list. Caller holds
// the lock.
func (m *Manager) purge(ref *Reference) {
	// References rejected before insertion share their key and offset
	// with the reference that was already there. Only remove table and
	// offset entries this exact reference owns.
	if cur, ok := m.table[ref.Key()]; ok && cur == ref {
		delete(m.table, ref.Key())
		if byOffset, ok := m.offsets[ref.SourceFile]; ok {
			delete(byOffset, ref.Offset)
			if len(byOffset) == 0 {
				delete(m.offsets, ref.SourceFile)
			}
		}
	}

	refs := m.fileRefs[ref.SourceFile]
	for i, r := range refs {
		if r == ref {
			m.fileRefs[ref.SourceFile] = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(m.fileRefs[ref.SourceFile]) == 0 {
		delete(m.fileRefs, ref.SourceFile)
	}

	if ref.Type == TypePointer {
		if p, ok := m.pointers[ref.PointerID]; ok && p == ref {
			delete(m.pointers, ref.PointerID)
		}
	}

	for i, r := range m.invalid {
		if r == ref {
			m.invalid = append(m.invalid[:i], m.invalid[i+1:]...)
			break
		}
	}
}

// ValidateReferences resolves every ATTACH reference against the
// filesystem under baseDir, falling back to fuzzy matching for broken
// targets. It returns one error message per unresolvable reference.
func (m *Manager) ValidateReferences(baseDir string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []string
	var errors []string

	for _, refs := range m.fileRefs {
		for _, ref := range refs {
			if ref.Type != TypeAttach {
				continue
			}
			if m.resolveAttach(ref, baseDir) {
				continue
			}

			// Collect candidates lazily; one walk serves all refs.
			if candidates == nil {
				candidates = collectFiles(baseDir)
			}
			if match, ok := fuzzyResolve(ref, candidates); ok {
				ref.TargetFile = match
				ref.IsValid = true
				m.logger.Debug("fuzzy-matched reference",
					slog.String("marker", ref.Marker()),
					slog.String("target", match))
				continue
			}

			ref.IsValid = false
			m.invalid = append(m.invalid, ref)
			errors = append(errors, fmt.Sprintf(
				"missing attachment %s referenced from %s (line %d)",
				ref.Marker(), ref.SourceFile, ref.LineNumber))
		}
	}
	return errors
}

// resolveAttach tries the reference target at its direct candidate
// locations. Markers that omit the extension are retried with every
// extension their type tag stands for. Caller holds the lock.
func (m *Manager) resolveAttach(ref *Reference, baseDir string) bool {
	targets := []string{ref.TargetFile}
	if filepath.Ext(ref.TargetFile) == "" {
		for _, ext := range ExtensionsForTag(ref.Section) {
			targets = append(targets, ref.TargetFile+ext)
		}
	}

	for _, target := range targets {
		for _, candidate := range pathresolve.ResolveCandidates(target, ref.SourceFile, baseDir) {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				ref.TargetFile = candidate
				ref.IsValid = true
				return true
			}
		}
	}
	return false
}

// fuzzyResolve fuzzy-matches the reference target against the
// candidate list, retrying with every extension its type tag stands
// for when the marker omits the extension.
func fuzzyResolve(ref *Reference, candidates []string) (string, bool) {
	targets := []string{ref.TargetFile}
	if filepath.Ext(ref.TargetFile) == "" {
		for _, ext := range ExtensionsForTag(ref.Section) {
			targets = append(targets, ref.TargetFile+ext)
		}
	}
	for _, target := range targets {
		if match, ok := FuzzyMatchPath(target, candidates); ok {
			return match, true
		}
	}
	return "", false
}

// CleanupReferences purges every invalid reference from all tables
// and drops files whose reference set became empty.
func (m *Manager) CleanupReferences() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for len(m.invalid) > 0 {
		m.purge(m.invalid[0])
		removed++
	}
	return removed
}

// ReferencesFor returns the references extracted from a file.
func (m *Manager) ReferencesFor(file string) []*Reference {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Reference(nil), m.fileRefs[file]...)
}

// MarkerAt answers what reference marker sits at a character offset
// of a file, if any.
func (m *Manager) MarkerAt(file string, offset int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byOffset, ok := m.offsets[file]
	if !ok {
		return "", false
	}
	marker, ok := byOffset[offset]
	return marker, ok
}

// Pointer returns the pointer table entry for an id.
func (m *Manager) Pointer(id int) (*Reference, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.pointers[id]
	return ref, ok
}

// Files returns the source files with recorded references.
func (m *Manager) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.fileRefs))
	for f := range m.fileRefs {
		out = append(out, f)
	}
	return out
}

// InvalidCount returns the number of references currently invalid.
func (m *Manager) InvalidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invalid)
}

// collectFiles gathers every regular file path under root.
func collectFiles(root string) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}
