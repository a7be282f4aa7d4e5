package phase

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/novakit/nova/errs"
	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/reference"
	"github.com/novakit/nova/validate"
)

// ReportFile is the validation report written by Finalize.
const ReportFile = "validation-report.json"

// Finalize closes out each file's metadata and, at phase finalize,
// runs the consistency validator and reference validation over the
// whole run. It performs no content transformation.
type Finalize struct {
	store     *metadata.Store
	validator *validate.Validator
	refs      *reference.Manager
	inputRoot string
	outDir    string
	logger    *slog.Logger
	state     *RunState

	mu     sync.Mutex
	report []string
}

// NewFinalize creates the finalize phase.
func NewFinalize(store *metadata.Store, validator *validate.Validator, refs *reference.Manager, inputRoot, outDir string, logger *slog.Logger) *Finalize {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalize{
		store:     store,
		validator: validator,
		refs:      refs,
		inputRoot: inputRoot,
		outDir:    outDir,
		logger:    logger,
		state:     NewRunState(),
	}
}

// Name implements Phase.
func (f *Finalize) Name() string { return "finalize" }

// State implements Phase.
func (f *Finalize) State() *RunState { return f.state }

// ProcessFile implements Phase. The snapshot is archived with a
// finalize version entry; validation itself runs once in Finalize,
// after split has written its consolidated outputs.
func (f *Finalize) ProcessFile(ctx context.Context, file string, meta *metadata.Snapshot) (*metadata.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		f.state.Record(file, StatusFailed)
		return nil, errs.Wrap(errs.KindResource, "finalize cancelled", err).AsRecoverable()
	}

	out := meta.Clone()
	out.AddVersion(f.Name(), "pipeline complete")
	f.store.Save(out)
	f.state.Record(file, StatusSuccessful)
	return out, nil
}

// Finalize implements Phase: runs the validator over every completed
// file, validates references against the input tree, and writes the
// aggregate report.
func (f *Finalize) Finalize(_ context.Context) (map[string]CategoryCounts, error) {
	files := f.state.Files(StatusSuccessful)

	findings := f.validator.ValidateAll(files)
	findings = append(findings, f.refs.ValidateReferences(f.inputRoot)...)

	f.mu.Lock()
	f.report = findings
	f.mu.Unlock()

	if err := f.writeReport(files, findings); err != nil {
		return nil, err
	}

	removed := f.refs.CleanupReferences()
	f.logger.Info("validation complete",
		slog.Int("files", len(files)),
		slog.Int("findings", len(findings)),
		slog.Int("invalid_references_removed", removed))

	return map[string]CategoryCounts{
		"validation": {
			Created: len(files),
			Failed:  len(findings),
		},
	}, nil
}

// Report returns the validation findings collected at finalize.
func (f *Finalize) Report() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.report...)
}

func (f *Finalize) writeReport(files, findings []string) error {
	payload := struct {
		GeneratedAt time.Time `json:"generated_at"`
		Files       int       `json:"files"`
		Findings    []string  `json:"findings"`
	}{time.Now().UTC(), len(files), findings}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindPipeline, "marshal validation report", err)
	}
	path := filepath.Join(f.outDir, ReportFile)
	if err := os.MkdirAll(f.outDir, 0755); err != nil {
		return errs.Wrap(errs.KindPipeline, "create finalize output directory", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Wrap(errs.KindPipeline, "write validation report", err)
	}
	return nil
}
