package phase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/novakit/nova/errs"
	"github.com/novakit/nova/handler"
	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/pathresolve"
)

// Parse extracts raw content from input files through the handler
// registry and writes "<stem>.parsed.md" outputs.
type Parse struct {
	registry  *handler.Registry
	store     *metadata.Store
	inputRoot string
	outDir    string
	logger    *slog.Logger
	state     *RunState
}

// NewParse creates the parse phase.
func NewParse(registry *handler.Registry, store *metadata.Store, inputRoot, outDir string, logger *slog.Logger) *Parse {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parse{
		registry:  registry,
		store:     store,
		inputRoot: inputRoot,
		outDir:    outDir,
		logger:    logger,
		state:     NewRunState(),
	}
}

// Name implements Phase.
func (p *Parse) Name() string { return "parse" }

// State implements Phase.
func (p *Parse) State() *RunState { return p.state }

// ProcessFile implements Phase. Ignorable filesystem artifacts are
// skipped without creating metadata; an unchanged file (same content
// hash as the persisted snapshot) is threaded forward as-is.
func (p *Parse) ProcessFile(ctx context.Context, file string, _ *metadata.Snapshot) (*metadata.Snapshot, error) {
	if pathresolve.IsIgnorable(file) {
		p.state.Record(file, StatusSkipped)
		p.logger.Debug("skipping ignorable file", slog.String("file", file))
		return nil, nil
	}

	info, err := os.Stat(file)
	if err != nil {
		p.state.Record(file, StatusFailed)
		return nil, errs.Wrap(errs.KindResource, "stat input file", err)
	}

	hash, err := hashFile(file)
	if err != nil {
		p.state.Record(file, StatusFailed)
		return nil, errs.Wrap(errs.KindResource, "hash input file", err)
	}

	if prior := p.store.Load(file); prior != nil && prior.FileHash == hash && !prior.HasErrors {
		p.state.Record(file, StatusUnchanged)
		p.logger.Debug("file unchanged", slog.String("file", file), slog.String("hash", hash))
		return prior, nil
	}

	h, err := p.registry.ForFile(file)
	if err != nil {
		return nil, p.fail(file, info.Size(), hash, "no handler supports file", err)
	}

	result, err := h.Convert(ctx, file)
	if err != nil {
		return nil, p.fail(file, info.Size(), hash, "handler conversion failed", err)
	}

	outPath := outputPath(p.outDir, p.inputRoot, file, ".parsed.md")
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, p.fail(file, info.Size(), hash, "create parse output directory", err)
	}
	if err := os.WriteFile(outPath, []byte(result.Text), 0644); err != nil {
		return nil, p.fail(file, info.Size(), hash, "write parsed output", err)
	}

	snap := metadata.NewSnapshot(file, filepath.Base(file), handler.FileType(file), p.Name())
	snap.FileSize = info.Size()
	snap.FileHash = hash
	snap.HandlerName = h.Name()
	snap.HandlerVersion = h.Version()
	snap.OriginalPath = file
	snap.Content = result.Text
	snap.AddOutput(outPath)
	if title, ok := result.Fields["title"].(string); ok && title != "" {
		snap.Tags.Add("title:" + title)
	}

	p.store.Save(snap)
	p.state.Record(file, StatusSuccessful)
	p.state.AddStat("parsed", 1)
	return snap, nil
}

// fail records the failure in a snapshot so later runs and the
// validator can see it, then returns the classified error.
func (p *Parse) fail(file string, size int64, hash, message string, cause error) error {
	snap := metadata.NewSnapshot(file, filepath.Base(file), handler.FileType(file), p.Name())
	snap.FileSize = size
	snap.FileHash = hash
	snap.OriginalPath = file
	snap.AddError(p.Name(), message, errs.Truncate(cause.Error()))
	p.store.Save(snap)

	p.state.Record(file, StatusFailed)
	p.state.AddStat("failed", 1)
	var classified *errs.Error
	if errors.As(cause, &classified) {
		return cause
	}
	return errs.Wrap(errs.KindProcessing, message, cause)
}

// Finalize implements Phase.
func (p *Parse) Finalize(_ context.Context) (map[string]CategoryCounts, error) {
	return map[string]CategoryCounts{
		"parsed": {
			Created: p.state.Stat("parsed"),
			Failed:  p.state.Stat("failed"),
		},
	}, nil
}

// hashFile returns the hex SHA-256 of a file's content.
func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
