package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novakit/nova/handler"
	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/phase"
	"github.com/novakit/nova/reference"
	"github.com/novakit/nova/validate"
)

type testPipeline struct {
	orch   *Orchestrator
	input  string
	outDir string
	refs   *reference.Manager
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	input := t.TempDir()
	outDir := t.TempDir()

	stores := map[string]*metadata.Store{}
	for _, ph := range validate.PhaseOrder {
		store, err := metadata.NewStore(filepath.Join(outDir, "meta", ph), input, nil)
		require.NoError(t, err)
		stores[ph] = store
	}

	refs := reference.NewManager(nil)
	validator := validate.New(stores, refs, nil)

	phases := []phase.Phase{
		phase.NewParse(handler.NewRegistry(), stores["parse"], input, filepath.Join(outDir, "parse"), nil),
		phase.NewDisassemble(stores["disassemble"], input, filepath.Join(outDir, "disassemble"), nil),
		phase.NewSplit(stores["split"], refs, input, filepath.Join(outDir, "split"), nil),
		phase.NewFinalize(stores["finalize"], validator, refs, input, filepath.Join(outDir, "finalize"), nil),
	}
	return &testPipeline{
		orch:   NewOrchestrator(phases, WithWorkers(2)),
		input:  input,
		outDir: outDir,
		refs:   refs,
	}
}

func (p *testPipeline) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.input, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"a.md", "sub/b.txt", ".git/ignored.md",
		"a.metadata.json", "sub/c.parsed.md", "skip.log",
	} {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	files, err := Discover(root, DiscoverOptions{Exclude: []string{"**/*.log"}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "sub", "b.txt"),
	}, files)

	files, err = Discover(root, DiscoverOptions{Include: []string{"**/*.txt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub", "b.txt")}, files)
}

func TestRun_OneBadFileDoesNotBlockOthers(t *testing.T) {
	p := newTestPipeline(t)
	good1 := p.write(t, "good-one.md", "first document\n")
	bad := p.write(t, "broken.xyz", "unparseable")
	good2 := p.write(t, "good-two.md", "second document\n")

	report := p.orch.Run(context.Background(), []string{good1, bad, good2})

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, bad, report.Errors[0].File)
	assert.Equal(t, "parse", report.Errors[0].Phase)
	assert.NotEmpty(t, report.Errors[0].Error)
	assert.NotEmpty(t, report.RunID)
}

func TestRun_IgnorableFileIsSkippedNotFailed(t *testing.T) {
	p := newTestPipeline(t)
	junk := p.write(t, ".DS_Store", "junk")
	doc := p.write(t, "doc.md", "content\n")

	report := p.orch.Run(context.Background(), []string{junk, doc})

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Errors)
}

func TestRun_ErrorMessagesAreTruncated(t *testing.T) {
	p := newTestPipeline(t)
	bad := p.write(t, "bad.xyz", strings.Repeat("x", 10))

	report := p.orch.Run(context.Background(), []string{bad})
	require.Len(t, report.Errors, 1)
	assert.LessOrEqual(t, len(report.Errors[0].Error), 103)
}

func TestEndToEnd_AttachmentMarkerResolves(t *testing.T) {
	p := newTestPipeline(t)
	note := p.write(t, "note.md", "Meeting photo: [ATTACH:IMAGE:photo]\n")
	p.write(t, "photo.png", "png-bytes")

	report := p.orch.Run(context.Background(), []string{note})
	require.Zero(t, report.Failed, "errors: %v", report.Errors)

	final, err := p.orch.Finalize(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(p.outDir, "split", phase.AttachmentsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ATTACH:IMAGE:photo]")

	for _, finding := range final.Errors {
		assert.NotContains(t, finding, "missing attachment")
	}
}

func TestEndToEnd_MultipleAttachmentsValidate(t *testing.T) {
	p := newTestPipeline(t)
	report := p.write(t, "report.md", "Quarterly report.\n")
	p.write(t, "report/scan.pdf", "pdf-bytes")
	p.write(t, "report/photo.png", "png-bytes")

	run := p.orch.Run(context.Background(), []string{report})
	require.Zero(t, run.Failed, "errors: %v", run.Errors)

	final, err := p.orch.Finalize(context.Background())
	require.NoError(t, err)
	for _, finding := range final.Errors {
		assert.NotContains(t, finding, "missing attachment")
		assert.NotContains(t, finding, "duplicate")
	}

	var attaches int
	for _, ref := range p.refs.ReferencesFor(report) {
		if ref.Type == reference.TypeAttach {
			attaches++
			assert.True(t, ref.IsValid, "marker %s", ref.Marker())
		}
	}
	assert.Equal(t, 2, attaches, "both attachment references survive validation")

	data, err := os.ReadFile(filepath.Join(p.outDir, "split", phase.AttachmentsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ATTACH:PDF:scan]")
	assert.Contains(t, string(data), "[ATTACH:IMAGE:photo]")
}

func TestEndToEnd_RawNotesMarkerSplitsDocument(t *testing.T) {
	p := newTestPipeline(t)
	note := p.write(t, "journal.md",
		"The summary part.\n--==RAW NOTES==--\nThe raw part.\n")

	report := p.orch.Run(context.Background(), []string{note})
	require.Zero(t, report.Failed, "errors: %v", report.Errors)

	_, err := p.orch.Finalize(context.Background())
	require.NoError(t, err)

	summary, err := os.ReadFile(filepath.Join(p.outDir, "split", phase.SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "The summary part.")
	assert.NotContains(t, string(summary), "The raw part.")
	assert.Contains(t, string(summary), "See raw notes: [NOTE:journal]")

	raw, err := os.ReadFile(filepath.Join(p.outDir, "split", phase.RawNotesFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[NOTE:journal]")
	assert.Contains(t, string(raw), "The raw part.")
}

func TestEndToEnd_MissingAttachmentReported(t *testing.T) {
	p := newTestPipeline(t)
	note := p.write(t, "note.md", "See [ATTACH:PDF:contract] for details.\n")

	report := p.orch.Run(context.Background(), []string{note})
	require.Zero(t, report.Failed)

	final, err := p.orch.Finalize(context.Background())
	require.NoError(t, err)

	joined := strings.Join(final.Errors, "\n")
	assert.Contains(t, joined, "missing attachment [ATTACH:PDF:contract]")
}

func TestFinalize_AggregatesPhaseCounts(t *testing.T) {
	p := newTestPipeline(t)
	p.orch.Run(context.Background(), []string{
		p.write(t, "a.md", "alpha\n"),
		p.write(t, "b.md", "beta\n--==RAW NOTES==--\nnotes\n"),
	})

	final, err := p.orch.Finalize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, final.Counts["parse"]["parsed"].Created)
	assert.Equal(t, 2, final.Counts["disassemble"]["summary"].Created)
	assert.Equal(t, 1, final.Counts["disassemble"]["raw_notes"].Created)
	assert.Equal(t, 2, final.Counts["split"]["summary"].Created)
	assert.Equal(t, 2, final.Counts["finalize"]["validation"].Created)
}

func TestRun_CancelledContextStopsDispatch(t *testing.T) {
	p := newTestPipeline(t)
	files := []string{
		p.write(t, "a.md", "a\n"),
		p.write(t, "b.md", "b\n"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := p.orch.Run(ctx, files)

	assert.Zero(t, report.Processed)
	assert.Equal(t, len(files), report.Skipped+report.Failed)
}

func TestRun_ResetsPhaseStateBetweenRuns(t *testing.T) {
	p := newTestPipeline(t)
	doc := p.write(t, "doc.md", "content\n")

	first := p.orch.Run(context.Background(), []string{doc})
	require.Equal(t, 1, first.Processed)

	second := p.orch.Run(context.Background(), []string{doc})
	assert.Equal(t, 1, second.Processed)
	assert.Zero(t, second.Failed)
}
