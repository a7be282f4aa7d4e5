package handler

import (
	"context"
	"os"

	"github.com/novakit/nova/errs"
)

// TextHandler passes plain text files through unmodified.
type TextHandler struct{}

// NewTextHandler creates a plain text handler.
func NewTextHandler() *TextHandler {
	return &TextHandler{}
}

// Name implements Handler.
func (h *TextHandler) Name() string { return "text" }

// Version implements Handler.
func (h *TextHandler) Version() string { return "1.0" }

// Supports implements Handler.
func (h *TextHandler) Supports(path string) bool {
	return hasExt(path, ".txt")
}

// Convert implements Handler.
func (h *TextHandler) Convert(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, "read text file", err)
	}
	return &Result{Text: string(data), Fields: map[string]any{}}, nil
}
