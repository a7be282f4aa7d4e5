package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/reference"
)

func newStores(t *testing.T, inputRoot string) map[string]*metadata.Store {
	t.Helper()
	stores := map[string]*metadata.Store{}
	for _, ph := range PhaseOrder {
		store, err := metadata.NewStore(t.TempDir(), inputRoot, nil)
		require.NoError(t, err)
		stores[ph] = store
	}
	return stores
}

func newValidator(t *testing.T, inputRoot string) (*Validator, map[string]*metadata.Store) {
	t.Helper()
	stores := newStores(t, inputRoot)
	return New(stores, reference.NewManager(nil), nil), stores
}

// saveChain writes one snapshot per phase for the file, each phase a
// version bump over the last, with real output files recorded.
func saveChain(t *testing.T, stores map[string]*metadata.Store, inputRoot, file string) *metadata.Snapshot {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.md")
	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))

	snap := metadata.NewSnapshot(file, filepath.Base(file), "DOC", "parse")
	snap.OriginalPath = file
	snap.FileSize = 42
	require.True(t, stores["parse"].Save(snap))

	for _, ph := range PhaseOrder[1:] {
		snap = snap.Clone()
		snap.AddVersion(ph)
		snap.AddOutput(out)
		if ph == "split" {
			snap.References = append(snap.References, "[NOTE:note]")
		}
		require.True(t, stores[ph].Save(snap))
	}
	return snap
}

func TestValidateFile_CleanChain(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	v, stores := newValidator(t, input)
	saveChain(t, stores, input, file)

	assert.Empty(t, v.ValidateFile(file))
}

func TestValidateFile_MissingPhasesListsLocations(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	v, stores := newValidator(t, input)

	snap := metadata.NewSnapshot(file, "memo.md", "DOC", "parse")
	snap.OriginalPath = file
	require.True(t, stores["parse"].Save(snap))

	findings := v.ValidateFile(file)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "missing in 3 of 4 phases")
	for _, ph := range []string{"disassemble", "split", "finalize"} {
		assert.Contains(t, findings[0], ph+":"+stores[ph].PathFor(file))
	}
}

func TestValidateFile_VersionRegression(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	v, stores := newValidator(t, input)
	saveChain(t, stores, input, file)

	// Roll the finalize snapshot back behind split.
	regressed := metadata.NewSnapshot(file, "memo.md", "DOC", "finalize")
	regressed.OriginalPath = file
	regressed.FileSize = 42
	require.True(t, stores["finalize"].Save(regressed))

	findings := v.ValidateFile(file)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0], "version regressed")
}

func TestValidateFile_ImmutableFieldChanged(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	v, stores := newValidator(t, input)
	last := saveChain(t, stores, input, file)

	mutated := last.Clone()
	mutated.FileSize = 99
	mutated.AddVersion("finalize")
	require.True(t, stores["finalize"].Save(mutated))

	findings := v.ValidateFile(file)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0], "file_size changed in phase finalize")
}

func TestValidateFile_RequiredFields(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	v, stores := newValidator(t, input)

	snap := metadata.NewSnapshot(file, "memo.md", "DOC", "parse")
	require.True(t, stores["parse"].Save(snap))

	split := snap.Clone()
	split.AddVersion("split")
	require.True(t, stores["split"].Save(split))

	findings := v.ValidateFile(file)
	joined := strings.Join(findings, "\n")
	assert.Contains(t, joined, "missing original_path")
	assert.Contains(t, joined, "split snapshot has no output files")
	assert.Contains(t, joined, "split snapshot has no references")
}

func TestValidateFile_OutputMissingOnDisk(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	v, stores := newValidator(t, input)

	snap := metadata.NewSnapshot(file, "memo.md", "DOC", "parse")
	snap.OriginalPath = file
	snap.AddOutput(filepath.Join(input, "gone.md"))
	require.True(t, stores["parse"].Save(snap))

	findings := v.ValidateFile(file)
	joined := strings.Join(findings, "\n")
	assert.Contains(t, joined, "gone.md")
	assert.Contains(t, joined, "does not exist")
}

func TestValidateFile_ParsedOutputDivergence(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	v, stores := newValidator(t, input)

	out := filepath.Join(t.TempDir(), "memo.parsed.md")
	require.NoError(t, os.WriteFile(out, []byte("original content\n"), 0644))

	snap := metadata.NewSnapshot(file, "memo.md", "DOC", "parse")
	snap.OriginalPath = file
	snap.Content = "original content\n"
	snap.AddOutput(out)
	require.True(t, stores["parse"].Save(snap))

	assert.NotContains(t, strings.Join(v.ValidateFile(file), "\n"), "diverged")

	// Whitespace and line-ending drift is still structurally equal.
	require.NoError(t, os.WriteFile(out, []byte("original   content\r\n\r\n\r\n"), 0644))
	assert.NotContains(t, strings.Join(v.ValidateFile(file), "\n"), "diverged")

	require.NoError(t, os.WriteFile(out, []byte("different words\n"), 0644))
	assert.Contains(t, strings.Join(v.ValidateFile(file), "\n"), "diverged")
}

func TestValidateFile_EmbeddedFileWithoutSnapshot(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "memo.md")
	embedded := filepath.Join(input, "inner.md")
	v, stores := newValidator(t, input)

	snap := metadata.NewSnapshot(file, "memo.md", "DOC", "parse")
	snap.OriginalPath = file
	snap.EmbeddedFiles = []string{embedded}
	require.True(t, stores["parse"].Save(snap))

	findings := v.ValidateFile(file)
	require.NotEmpty(t, findings)
	joined := strings.Join(findings, "\n")
	assert.Contains(t, joined, "embedded file "+embedded+" has no parse metadata snapshot")
}

func TestCheckCircularReferences_DirectCycle(t *testing.T) {
	input := t.TempDir()
	fileA := filepath.Join(input, "a.md")
	fileB := filepath.Join(input, "b.md")
	v, stores := newValidator(t, input)

	snapA := metadata.NewSnapshot(fileA, "a.md", "DOC", "finalize")
	snapA.ParentFile = fileB
	snapB := metadata.NewSnapshot(fileB, "b.md", "DOC", "finalize")
	snapB.ParentFile = fileA
	require.True(t, stores["finalize"].Save(snapA))
	require.True(t, stores["finalize"].Save(snapB))

	findings := v.CheckCircularReferences(snapA)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "circular reference:")
	assert.Contains(t, findings[0], fileA+" -> "+fileB+" -> "+fileA)
}

func TestCheckCircularReferences_SiblingsAreNotCycles(t *testing.T) {
	input := t.TempDir()
	parent := filepath.Join(input, "parent.md")
	shared := filepath.Join(input, "shared.png")
	v, stores := newValidator(t, input)

	snapParent := metadata.NewSnapshot(parent, "parent.md", "DOC", "finalize")
	snapParent.Attachments = []string{shared, shared}
	snapShared := metadata.NewSnapshot(shared, "shared.png", "PNG", "finalize")
	require.True(t, stores["finalize"].Save(snapParent))
	require.True(t, stores["finalize"].Save(snapShared))

	assert.Empty(t, v.CheckCircularReferences(snapParent))
}

func TestCheckCircularReferences_DepthBound(t *testing.T) {
	input := t.TempDir()
	v, stores := newValidator(t, input)

	// Chain of 12 files each pointing at the next; the walk stops with
	// a depth finding instead of running to the end.
	files := make([]string, 12)
	for i := range files {
		files[i] = filepath.Join(input, "f"+string(rune('a'+i))+".md")
	}
	for i, f := range files {
		snap := metadata.NewSnapshot(f, filepath.Base(f), "DOC", "finalize")
		if i+1 < len(files) {
			snap.ParentFile = files[i+1]
		}
		require.True(t, stores["finalize"].Save(snap))
	}

	start := stores["finalize"].Load(files[0])
	require.NotNil(t, start)
	findings := v.CheckCircularReferences(start)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "reference chain too deep")
}
