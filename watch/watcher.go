// Package watch re-runs the pipeline when documents change. It wraps
// fsnotify with debouncing and content-hash change detection so editor
// save storms and metadata-only touches do not trigger reprocessing.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/novakit/nova/pathresolve"
)

const eventChannelBuffer = 500

// Op is the kind of document change.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Event is one debounced document change.
type Event struct {
	// Path is relative to the watched root.
	Path string
	// AbsPath is the absolute file path.
	AbsPath string
	Op      Op
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to collect changes before emitting.
	Debounce time.Duration
	// ExcludeDirs lists directory names never descended into.
	ExcludeDirs []string
}

// Watcher emits document change events for a directory tree.
type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	excludes map[string]bool

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.RWMutex
	hashes map[string]string

	events  chan Event
	dropped atomic.Int64
}

// New creates a watcher over root. Call Start to begin watching.
func New(root string, opts Options, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}

	excludes := map[string]bool{".git": true, "node_modules": true, "vendor": true}
	for _, dir := range opts.ExcludeDirs {
		excludes[dir] = true
	}

	return &Watcher{
		root:     root,
		debounce: opts.Debounce,
		watcher:  fsw,
		logger:   logger,
		excludes: excludes,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, eventChannelBuffer),
	}, nil
}

// Events returns the channel of debounced change events. It is closed
// when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds recursive watches and begins event processing.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("document watcher started",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce))
	return nil
}

// Stop closes the underlying watcher; the events channel is closed by
// the processing goroutine on exit.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Seed records the known hash for a file so an unchanged write does
// not produce an event. Used after an initial full run.
func (w *Watcher) Seed(relPath, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[relPath] = hash
}

// DroppedEvents returns how many events were lost to channel overflow.
func (w *Watcher) DroppedEvents() int64 {
	return w.dropped.Load()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if path != root && (w.excludes[base] || strings.HasPrefix(base, ".")) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.watchNewDirectory(path)
			return
		}
	}
	if pathresolve.IsIgnorable(path) {
		return
	}

	rel, _ := filepath.Rel(w.root, path)
	for dir := range w.excludes {
		if strings.Contains(rel, dir+string(filepath.Separator)) {
			return
		}
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()
}

func (w *Watcher) watchNewDirectory(path string) {
	base := filepath.Base(path)
	if w.excludes[base] || strings.HasPrefix(base, ".") {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("failed to watch new directory",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

// flushPending drains accumulated changes, dropping writes whose
// content hash matches the last seen value.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		if ctx.Err() != nil {
			return
		}

		rel, _ := filepath.Rel(w.root, path)
		event := Event{Path: rel, AbsPath: path}

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			event.Op = OpDelete
			w.forgetHash(rel)
			w.send(event)
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			event.Op = OpDelete
			w.forgetHash(rel)
			w.send(event)
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("failed to read changed file",
				slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		sum := sha256.Sum256(content)
		newHash := hex.EncodeToString(sum[:])

		w.hashMu.Lock()
		oldHash, hadHash := w.hashes[rel]
		w.hashes[rel] = newHash
		w.hashMu.Unlock()

		if hadHash && oldHash == newHash {
			continue
		}
		if op.Has(fsnotify.Create) || !hadHash {
			event.Op = OpCreate
		} else {
			event.Op = OpModify
		}
		w.send(event)
	}
}

func (w *Watcher) forgetHash(rel string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	delete(w.hashes, rel)
}

func (w *Watcher) send(event Event) {
	select {
	case w.events <- event:
	default:
		dropped := w.dropped.Add(1)
		w.logger.Warn("event channel full, dropping event",
			slog.String("path", event.Path),
			slog.Int64("total_dropped", dropped))
	}
}
