package metadata

import (
	"time"
)

// ProcessingError records a per-file failure attached to a snapshot.
type ProcessingError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Snapshot is the versioned record of a file's state at one point in
// the pipeline. It is owned by the phase currently processing the
// file; phases return a new or updated snapshot rather than sharing.
type Snapshot struct {
	FilePath       string            `json:"file_path"`
	FileName       string            `json:"file_name"`
	FileType       string            `json:"file_type"`
	FileSize       int64             `json:"file_size"`
	FileHash       string            `json:"file_hash,omitempty"`
	HandlerName    string            `json:"handler_name,omitempty"`
	HandlerVersion string            `json:"handler_version,omitempty"`
	ProcessedAt    time.Time         `json:"processed_at"`
	CurrentVersion Version           `json:"current_version"`
	VersionHistory []Version         `json:"version_history,omitempty"`
	Content        string            `json:"content,omitempty"`
	Tags           StringSet         `json:"tags,omitempty"`
	OutputFiles    StringSet         `json:"output_files,omitempty"`
	OriginalPath   string            `json:"original_path,omitempty"`
	ParentFile     string            `json:"parent_file,omitempty"`
	Attachments    []string          `json:"attachments,omitempty"`
	EmbeddedFiles  []string          `json:"embedded_files,omitempty"`
	References     []string          `json:"references,omitempty"`
	HasErrors      bool              `json:"has_errors"`
	Errors         []ProcessingError `json:"errors,omitempty"`
}

// NewSnapshot creates a snapshot for a file entering the pipeline.
func NewSnapshot(filePath, fileName, fileType, phase string) *Snapshot {
	return &Snapshot{
		FilePath:       filePath,
		FileName:       fileName,
		FileType:       fileType,
		ProcessedAt:    time.Now().UTC(),
		CurrentVersion: InitialVersion(phase),
		Tags:           NewStringSet(),
		OutputFiles:    NewStringSet(),
	}
}

// AddVersion archives the current version into history and installs a
// new current version with the minor component incremented.
func (s *Snapshot) AddVersion(phase string, changes ...string) {
	s.VersionHistory = append(s.VersionHistory, s.CurrentVersion)
	s.CurrentVersion = Version{
		Major:     s.CurrentVersion.Major,
		Minor:     s.CurrentVersion.Minor + 1,
		Patch:     0,
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Changes:   changes,
	}
	s.ProcessedAt = s.CurrentVersion.Timestamp
}

// AddError records a processing failure and flags the snapshot.
func (s *Snapshot) AddError(source, message, details string) {
	s.Errors = append(s.Errors, ProcessingError{
		Source:  source,
		Message: message,
		Details: details,
	})
	s.HasErrors = true
}

// AddOutput records a produced output file.
func (s *Snapshot) AddOutput(path string) {
	if s.OutputFiles == nil {
		s.OutputFiles = NewStringSet()
	}
	s.OutputFiles.Add(path)
}

// Clone returns a deep copy. Phases receive clones so that concurrent
// readers never observe in-place mutation.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.VersionHistory = append([]Version(nil), s.VersionHistory...)
	out.Errors = append([]ProcessingError(nil), s.Errors...)
	out.Attachments = append([]string(nil), s.Attachments...)
	out.EmbeddedFiles = append([]string(nil), s.EmbeddedFiles...)
	out.References = append([]string(nil), s.References...)
	if s.Tags != nil {
		out.Tags = s.Tags.Clone()
	}
	if s.OutputFiles != nil {
		out.OutputFiles = s.OutputFiles.Clone()
	}
	return &out
}
