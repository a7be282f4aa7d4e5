package phase

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/novakit/nova/errs"
	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/pathresolve"
)

// RawNotesMarker separates a document's summary from its raw notes.
const RawNotesMarker = "--==RAW NOTES==--"

// Disassemble splits parsed content into summary and raw-notes
// sections and copies attachment directories alongside.
type Disassemble struct {
	store     *metadata.Store
	inputRoot string
	outDir    string
	logger    *slog.Logger
	state     *RunState
}

// NewDisassemble creates the disassemble phase.
func NewDisassemble(store *metadata.Store, inputRoot, outDir string, logger *slog.Logger) *Disassemble {
	if logger == nil {
		logger = slog.Default()
	}
	return &Disassemble{
		store:     store,
		inputRoot: inputRoot,
		outDir:    outDir,
		logger:    logger,
		state:     NewRunState(),
	}
}

// Name implements Phase.
func (d *Disassemble) Name() string { return "disassemble" }

// State implements Phase.
func (d *Disassemble) State() *RunState { return d.state }

// ProcessFile implements Phase.
func (d *Disassemble) ProcessFile(ctx context.Context, file string, meta *metadata.Snapshot) (*metadata.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		d.state.Record(file, StatusFailed)
		return nil, errs.Wrap(errs.KindResource, "disassemble cancelled", err).AsRecoverable()
	}

	summary, rawNotes := SplitSections(meta.Content)
	out := meta.Clone()
	var changes []string

	if strings.TrimSpace(summary) != "" {
		path := outputPath(d.outDir, d.inputRoot, file, ".summary.md")
		if err := writeOutput(path, summary); err != nil {
			d.state.Record(file, StatusFailed)
			return nil, err
		}
		out.AddOutput(path)
		d.state.AddStat("summary_created", 1)
		changes = append(changes, "wrote summary")
	} else {
		d.state.AddStat("summary_empty", 1)
	}

	if strings.TrimSpace(rawNotes) != "" {
		path := outputPath(d.outDir, d.inputRoot, file, ".rawnotes.md")
		if err := writeOutput(path, rawNotes); err != nil {
			d.state.Record(file, StatusFailed)
			return nil, err
		}
		out.AddOutput(path)
		d.state.AddStat("rawnotes_created", 1)
		changes = append(changes, "wrote raw notes")
	} else {
		d.state.AddStat("rawnotes_empty", 1)
	}

	copied, err := d.copyAttachments(file)
	if err != nil {
		d.state.Record(file, StatusFailed)
		return nil, err
	}
	for _, att := range copied {
		out.Attachments = append(out.Attachments, att)
		out.AddOutput(att)
	}
	if len(copied) > 0 {
		changes = append(changes, "copied attachments")
	}

	out.AddVersion(d.Name(), changes...)
	d.store.Save(out)
	d.state.Record(file, StatusSuccessful)
	return out, nil
}

// copyAttachments copies every file in the source's attachment
// directories into the per-file attachments output folder, recording
// inferred types in the run stats.
func (d *Disassemble) copyAttachments(file string) ([]string, error) {
	destDir := outputPath(d.outDir, d.inputRoot, file, ".attachments")

	var copied []string
	for _, srcDir := range pathresolve.AttachmentDirs(file) {
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			d.logger.Warn("read attachment directory failed",
				slog.String("dir", srcDir), slog.String("error", err.Error()))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || pathresolve.IsIgnorable(entry.Name()) {
				continue
			}
			src := filepath.Join(srcDir, entry.Name())
			dst := filepath.Join(destDir, entry.Name())
			if err := copyFile(src, dst); err != nil {
				return nil, errs.Wrap(errs.KindResource, "copy attachment "+entry.Name(), err)
			}
			copied = append(copied, dst)
			d.state.AddStat("attach_"+AttachmentCategory(entry.Name()), 1)
		}
	}
	return copied, nil
}

// Finalize implements Phase.
func (d *Disassemble) Finalize(_ context.Context) (map[string]CategoryCounts, error) {
	return map[string]CategoryCounts{
		"summary": {
			Created: d.state.Stat("summary_created"),
			Empty:   d.state.Stat("summary_empty"),
		},
		"raw_notes": {
			Created: d.state.Stat("rawnotes_created"),
			Empty:   d.state.Stat("rawnotes_empty"),
		},
	}, nil
}

// SplitSections splits content at the raw-notes marker. Without the
// marker, the entire content is summary and raw notes is empty.
func SplitSections(content string) (summary, rawNotes string) {
	before, after, found := strings.Cut(content, RawNotesMarker)
	if !found {
		return content, ""
	}
	return before, after
}

// AttachmentCategory maps an attachment file name to the coarse type
// recorded in disassemble stats and split markers.
func AttachmentCategory(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "PDF"
	case ".doc", ".docx":
		return "DOC"
	case ".xlsx", ".xls", ".csv":
		return "EXCEL"
	case ".png", ".jpg", ".jpeg", ".heic", ".gif":
		return "IMAGE"
	case ".txt":
		return "TXT"
	case ".json":
		return "JSON"
	default:
		return "OTHER"
	}
}

func writeOutput(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.Wrap(errs.KindResource, "create output directory", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errs.Wrap(errs.KindResource, "write output file", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
