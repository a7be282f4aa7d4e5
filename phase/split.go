package phase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/novakit/nova/errs"
	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/pathresolve"
	"github.com/novakit/nova/reference"
)

// Consolidated output names written by Split's finalize.
const (
	SummaryFile     = "Summary.md"
	RawNotesFile    = "Raw Notes.md"
	AttachmentsFile = "Attachments.md"
)

// section is one document's contribution to a consolidated output.
type section struct {
	noteID string
	text   string
}

// attachment is one deduplicated attachment index entry.
type attachment struct {
	path     string
	dir      string
	category string
	name     string
}

// Split aggregates summaries, raw notes, and attachments across all
// files into consolidated outputs, resolving markers through the
// reference manager. The aggregation state is shared across worker
// goroutines and guarded by one mutex.
type Split struct {
	store     *metadata.Store
	refs      *reference.Manager
	inputRoot string
	outDir    string
	logger    *slog.Logger
	state     *RunState

	mu           sync.Mutex
	summaries    []section
	rawNotes     []section
	attachments  []attachment
	seenAttached map[string]struct{}
	failed       int
}

// NewSplit creates the split phase.
func NewSplit(store *metadata.Store, refs *reference.Manager, inputRoot, outDir string, logger *slog.Logger) *Split {
	if logger == nil {
		logger = slog.Default()
	}
	return &Split{
		store:        store,
		refs:         refs,
		inputRoot:    inputRoot,
		outDir:       outDir,
		logger:       logger,
		state:        NewRunState(),
		seenAttached: make(map[string]struct{}),
	}
}

// Name implements Phase.
func (s *Split) Name() string { return "split" }

// State implements Phase.
func (s *Split) State() *RunState { return s.state }

// ProcessFile implements Phase. The heavy lifting happens in
// Finalize; per file this accumulates tagged sections and
// deduplicated attachments under the shared lock.
func (s *Split) ProcessFile(ctx context.Context, file string, meta *metadata.Snapshot) (*metadata.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		s.state.Record(file, StatusFailed)
		s.noteFailure()
		return nil, errs.Wrap(errs.KindResource, "split cancelled", err).AsRecoverable()
	}

	noteID := NoteIDFor(file)
	summary, rawNotes := SplitSections(meta.Content)

	out := meta.Clone()

	// A file's markers are extracted from one composite text so every
	// reference lands at a distinct offset of the source file. Markers
	// below inlineEnd came from the summary body itself.
	var doc strings.Builder
	inlineEnd := 0

	if strings.TrimSpace(summary) != "" {
		tagged := strings.TrimRight(summary, "\n") +
			fmt.Sprintf("\n\nSee raw notes: [NOTE:%s]\n", noteID)
		s.appendSummary(section{noteID: noteID, text: tagged})
		doc.WriteString(tagged)
		inlineEnd = len(tagged)
	}

	if strings.TrimSpace(rawNotes) != "" {
		tagged := fmt.Sprintf("[NOTE:%s]\n\n", noteID) + strings.TrimLeft(rawNotes, "\n")
		s.appendRawNotes(section{noteID: noteID, text: tagged})
	}

	for _, att := range meta.Attachments {
		entry, added := s.addAttachment(att)
		if !added {
			continue
		}
		fmt.Fprintf(&doc, "\n[ATTACH:%s:%s]", entry.category, entry.name)
	}

	var markers []string
	for _, ref := range s.refs.ExtractReferences(doc.String(), file) {
		markers = append(markers, ref.Marker())
		if ref.Type == reference.TypeAttach && ref.Offset < inlineEnd {
			s.addInlineAttachment(ref, file)
		}
	}

	out.References = append(out.References, markers...)
	out.AddOutput(filepath.Join(s.outDir, SummaryFile))
	out.AddOutput(filepath.Join(s.outDir, RawNotesFile))
	out.AddOutput(filepath.Join(s.outDir, AttachmentsFile))
	out.AddVersion(s.Name(), "aggregated into consolidated outputs")

	s.store.Save(out)
	s.state.Record(file, StatusSuccessful)
	return out, nil
}

func (s *Split) appendSummary(sec section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sec)
}

func (s *Split) appendRawNotes(sec section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawNotes = append(s.rawNotes, sec)
}

// addAttachment deduplicates by absolute path: the same attachment is
// never indexed twice even when reachable via multiple scan roots.
func (s *Split) addAttachment(path string) (attachment, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.seenAttached[abs]; seen {
		return attachment{}, false
	}
	s.seenAttached[abs] = struct{}{}

	entry := attachment{
		path:     abs,
		dir:      filepath.Dir(abs),
		category: AttachmentCategory(abs),
		name:     pathresolve.StripParsedSuffix(pathresolve.Stem(abs)),
	}
	s.attachments = append(s.attachments, entry)
	return entry, true
}

// addInlineAttachment indexes an attachment marker written inline in
// a document's summary, deduplicated by marker text.
func (s *Split) addInlineAttachment(ref *reference.Reference, sourceFile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "inline:" + ref.Marker()
	if _, seen := s.seenAttached[key]; seen {
		return
	}
	s.seenAttached[key] = struct{}{}
	s.attachments = append(s.attachments, attachment{
		path:     filepath.Join(filepath.Dir(sourceFile), ref.TargetFile),
		dir:      filepath.Dir(sourceFile),
		category: ref.Section,
		name:     ref.ID,
	})
}

func (s *Split) noteFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

// Finalize implements Phase: writes the consolidated Summary.md,
// Raw Notes.md, and directory/type-grouped Attachments.md.
func (s *Split) Finalize(_ context.Context) (map[string]CategoryCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]CategoryCounts{}

	summaryCount, err := s.writeSections(SummaryFile, "# Summary", s.summaries)
	if err != nil {
		return nil, err
	}
	counts["summary"] = CategoryCounts{Created: summaryCount, Empty: boolToInt(summaryCount == 0), Failed: s.failed}

	rawCount, err := s.writeSections(RawNotesFile, "# Raw Notes", s.rawNotes)
	if err != nil {
		return nil, err
	}
	counts["raw_notes"] = CategoryCounts{Created: rawCount, Empty: boolToInt(rawCount == 0)}

	attCount, err := s.writeAttachments()
	if err != nil {
		return nil, err
	}
	counts["attachments"] = CategoryCounts{Created: attCount, Empty: boolToInt(attCount == 0)}

	s.logger.Info("split finalized",
		slog.Int("summaries", summaryCount),
		slog.Int("raw_notes", rawCount),
		slog.Int("attachments", attCount))
	return counts, nil
}

// writeSections writes one consolidated file, sections ordered by
// note id so output is stable regardless of worker completion order.
func (s *Split) writeSections(name, heading string, sections []section) (int, error) {
	ordered := append([]section(nil), sections...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].noteID < ordered[j].noteID })

	var b strings.Builder
	b.WriteString(heading + "\n\n")
	for i, sec := range ordered {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		b.WriteString(strings.TrimRight(sec.text, "\n") + "\n")
	}

	path := filepath.Join(s.outDir, name)
	if err := writeOutput(path, b.String()); err != nil {
		return 0, errs.Wrap(errs.KindPipeline, "write consolidated output "+name, err)
	}
	return len(ordered), nil
}

// writeAttachments writes the attachment index grouped by source
// directory, then by type.
func (s *Split) writeAttachments() (int, error) {
	byDir := map[string][]attachment{}
	for _, att := range s.attachments {
		byDir[att.dir] = append(byDir[att.dir], att)
	}
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var b strings.Builder
	b.WriteString("# Attachments\n\n")
	for _, dir := range dirs {
		b.WriteString("## " + dir + "\n\n")

		byType := map[string][]attachment{}
		for _, att := range byDir[dir] {
			byType[att.category] = append(byType[att.category], att)
		}
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)

		for _, t := range types {
			b.WriteString("### " + t + "\n\n")
			entries := byType[t]
			sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
			for _, att := range entries {
				b.WriteString(fmt.Sprintf("- [ATTACH:%s:%s] (%s)\n", att.category, att.name, att.path))
			}
			b.WriteString("\n")
		}
	}

	path := filepath.Join(s.outDir, AttachmentsFile)
	if err := writeOutput(path, b.String()); err != nil {
		return 0, errs.Wrap(errs.KindPipeline, "write attachment index", err)
	}
	return len(s.attachments), nil
}

// NoteIDFor derives the stable note id linking a file's summary to
// its raw notes.
func NoteIDFor(file string) string {
	return reference.EncodeID(pathresolve.StripParsedSuffix(pathresolve.Stem(file)))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
