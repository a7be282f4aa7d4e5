package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/novakit/nova/errs"
)

// JSONHandler renders JSON documents as a fenced code block so they
// flow through the markdown pipeline.
type JSONHandler struct{}

// NewJSONHandler creates a JSON handler.
func NewJSONHandler() *JSONHandler {
	return &JSONHandler{}
}

// Name implements Handler.
func (h *JSONHandler) Name() string { return "json" }

// Version implements Handler.
func (h *JSONHandler) Version() string { return "1.0" }

// Supports implements Handler.
func (h *JSONHandler) Supports(path string) bool {
	return hasExt(path, ".json")
}

// Convert implements Handler.
func (h *JSONHandler) Convert(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, "read json file", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return nil, errs.Wrap(errs.KindProcessing, "invalid json document", err)
	}

	text := "```json\n" + pretty.String() + "\n```\n"
	return &Result{
		Text:   text,
		Fields: map[string]any{"format": "json"},
	}, nil
}
