// Package pathresolve centralizes the path rules used across the
// pipeline: ignorable files, attachment directory discovery, dated
// directory detection, and relative target resolution.
package pathresolve

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// datedRe matches an eight-digit date segment (YYYYMMDD).
var datedRe = regexp.MustCompile(`\d{8}`)

// ignorableNames are filesystem artifacts that are silently skipped.
var ignorableNames = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
}

// IsIgnorable reports whether a file is a filesystem artifact that
// should be skipped without creating metadata.
func IsIgnorable(path string) bool {
	name := filepath.Base(path)
	if ignorableNames[name] {
		return true
	}
	return strings.HasPrefix(name, ".")
}

// Stem returns the file name without its final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StripParsedSuffix removes a trailing ".parsed" marker from a name
// left by the parse phase's output naming.
func StripParsedSuffix(name string) string {
	return strings.TrimSuffix(name, ".parsed")
}

// DateSegment returns the first YYYYMMDD substring in path, or "".
func DateSegment(path string) string {
	return datedRe.FindString(path)
}

// IsDatedDir reports whether a directory name starts with a YYYYMMDD
// date segment.
func IsDatedDir(name string) bool {
	loc := datedRe.FindStringIndex(name)
	return loc != nil && loc[0] == 0
}

// AttachmentDirs returns existing directories that may hold
// attachments for the given file: a sibling directory named after the
// file's stem, a "<stem>.assets" directory, and any dated sibling
// directories.
func AttachmentDirs(file string) []string {
	dir := filepath.Dir(file)
	stem := Stem(file)

	var found []string
	for _, candidate := range []string{
		filepath.Join(dir, stem),
		filepath.Join(dir, stem+".assets"),
	} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			found = append(found, candidate)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return found
	}
	for _, entry := range entries {
		if entry.IsDir() && IsDatedDir(entry.Name()) {
			found = append(found, filepath.Join(dir, entry.Name()))
		}
	}
	return found
}

// ResolveCandidates returns the paths at which a reference target may
// exist: the target as given (relative to baseDir when not absolute)
// and relative to the referencing file's directory.
func ResolveCandidates(target, sourceFile, baseDir string) []string {
	if filepath.IsAbs(target) {
		return []string{target}
	}
	return []string{
		filepath.Join(baseDir, target),
		filepath.Join(filepath.Dir(sourceFile), target),
	}
}

// RelativeUnder returns path relative to root, falling back to the
// base name when path is not under root.
func RelativeUnder(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return rel
}
