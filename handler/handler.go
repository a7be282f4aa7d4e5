// Package handler provides content-extraction handlers for the parse
// phase. Handlers are registered in order and selected by the first
// Supports match, keyed on file extension.
package handler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/novakit/nova/errs"
)

// Result is the output of a handler conversion.
type Result struct {
	// Text is the extracted content as markdown.
	Text string

	// Fields holds structured fields extracted alongside the text
	// (frontmatter, titles, format metadata).
	Fields map[string]any
}

// Handler converts one class of input file into markdown text.
type Handler interface {
	// Name identifies the handler in metadata.
	Name() string

	// Version is recorded in metadata for staleness detection.
	Version() string

	// Supports reports whether this handler accepts the file.
	Supports(path string) bool

	// Convert extracts the file's content.
	Convert(ctx context.Context, path string) (*Result, error)
}

// Registry manages handlers. Selection order is registration order.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry creates a registry with the default handlers.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewMarkdownHandler())
	r.Register(NewHTMLHandler())
	r.Register(NewJSONHandler())
	r.Register(NewTextHandler())
	return r
}

// NewEmptyRegistry creates a registry with no handlers registered.
func NewEmptyRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler to the selection order.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// ForFile returns the first handler that supports the file, or an
// ErrUnsupported error.
func (r *Registry) ForFile(path string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.Supports(path) {
			return h, nil
		}
	}
	return nil, errs.Wrap(errs.KindProcessing, "no handler for "+filepath.Ext(path), errs.ErrUnsupported)
}

// FileType returns the logical file type tag recorded in metadata.
func FileType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown":
		return "markdown"
	case ".txt":
		return "text"
	case ".html", ".htm":
		return "html"
	case ".json":
		return "json"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
