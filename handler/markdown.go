package handler

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/novakit/nova/errs"
)

// MarkdownHandler passes markdown through, extracting YAML
// frontmatter into structured fields.
type MarkdownHandler struct{}

// NewMarkdownHandler creates a markdown handler.
func NewMarkdownHandler() *MarkdownHandler {
	return &MarkdownHandler{}
}

// Name implements Handler.
func (h *MarkdownHandler) Name() string { return "markdown" }

// Version implements Handler.
func (h *MarkdownHandler) Version() string { return "1.0" }

// Supports implements Handler.
func (h *MarkdownHandler) Supports(path string) bool {
	return hasExt(path, ".md", ".markdown")
}

// Convert implements Handler.
func (h *MarkdownHandler) Convert(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, "read markdown file", err)
	}

	content := string(data)
	fields := map[string]any{}

	if strings.HasPrefix(content, "---\n") || strings.HasPrefix(content, "---\r\n") {
		frontmatter, body, err := extractFrontmatter(content)
		if err == nil {
			for k, v := range frontmatter {
				fields[k] = v
			}
			content = body
		}
		// A malformed frontmatter block is treated as body text.
	}

	return &Result{Text: content, Fields: fields}, nil
}

// extractFrontmatter parses a YAML frontmatter block. It returns the
// parsed map, the remaining body, and any error.
func extractFrontmatter(content string) (map[string]any, string, error) {
	const delimiter = "---"

	start := len(delimiter)
	if len(content) > start && content[start] == '\r' {
		start++
	}
	if len(content) > start && content[start] == '\n' {
		start++
	}

	closeIdx := strings.Index(content[start:], "\n"+delimiter)
	if closeIdx == -1 {
		return nil, content, fmt.Errorf("no closing frontmatter delimiter")
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(content[start:start+closeIdx]), &frontmatter); err != nil {
		return nil, content, fmt.Errorf("parse frontmatter: %w", err)
	}

	body := content[start+closeIdx+1+len(delimiter):]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")
	return frontmatter, body, nil
}
