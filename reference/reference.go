// Package reference extracts, validates, and deduplicates the inline
// markers that link documents to attachments, notes, and pointers. A
// Manager holds the global reference table, per-file offset map, and
// pointer table for one pipeline run.
package reference

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Type discriminates reference markers.
type Type string

const (
	// TypeAttach links to an attachment file.
	TypeAttach Type = "ATTACH"
	// TypeNote links a summary to its raw notes.
	TypeNote Type = "NOTE"
	// TypePointer is a numeric marker with global dedup rules.
	TypePointer Type = "POINTER"
)

// Reference is one extracted marker occurrence. Fields are immutable
// after extraction except IsValid, which validation updates.
type Reference struct {
	Type       Type   `json:"ref_type"`
	ID         string `json:"ref_id"`
	SourceFile string `json:"source_file"`
	TargetFile string `json:"target_file,omitempty"`
	LineNumber int    `json:"line_number"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
	Section    string `json:"section,omitempty"`
	PointerID  int    `json:"pointer_id,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	Date       string `json:"date,omitempty"`
	IsValid    bool   `json:"is_valid"`
}

// Marker returns the reference's inline marker string.
func (r *Reference) Marker() string {
	switch r.Type {
	case TypeAttach:
		if r.Section != "" {
			return fmt.Sprintf("[ATTACH:%s:%s]", r.Section, r.ID)
		}
		return fmt.Sprintf("[ATTACH:%s]", r.ID)
	case TypePointer:
		return fmt.Sprintf("[POINTER:%d]", r.PointerID)
	default:
		return fmt.Sprintf("[%s:%s]", r.Type, r.ID)
	}
}

// Key identifies a reference occurrence within the run.
func (r *Reference) Key() string {
	return fmt.Sprintf("%s@%d:%s", r.SourceFile, r.Offset, r.Marker())
}

// EncodeID converts a reference id to its stored form. IDs containing
// spaces are stored underscore-encoded and decoded only for display.
func EncodeID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), " ", "_")
}

// DecodeID converts a stored id back to its presentation form.
func DecodeID(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}

// ExtensionsForTag returns the file extensions a type tag may stand
// for, used to resolve attachment markers that omit the extension.
func ExtensionsForTag(tag string) []string {
	switch strings.ToUpper(tag) {
	case "PDF":
		return []string{".pdf"}
	case "DOC":
		return []string{".doc", ".docx", ".md", ".html"}
	case "JPG", "PNG", "IMAGE":
		return []string{".png", ".jpg", ".jpeg", ".heic", ".gif"}
	case "EXCEL":
		return []string{".xlsx", ".xls", ".csv"}
	case "TXT":
		return []string{".txt"}
	case "JSON":
		return []string{".json"}
	default:
		return nil
	}
}

// FileTypeFor maps a target path's extension to its file-type tag.
func FileTypeFor(target string) string {
	switch strings.ToLower(filepath.Ext(target)) {
	case ".pdf":
		return "PDF"
	case ".doc", ".docx":
		return "DOC"
	case ".jpg", ".jpeg", ".heic":
		return "JPG"
	case ".png":
		return "PNG"
	case ".xlsx", ".xls", ".csv":
		return "EXCEL"
	case ".txt":
		return "TXT"
	case ".json":
		return "JSON"
	case ".html", ".md":
		return "DOC"
	default:
		return "OTHER"
	}
}
