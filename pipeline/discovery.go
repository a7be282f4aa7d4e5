package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/novakit/nova/errs"
)

// DiscoverOptions filters the files picked up from an input tree.
// Patterns are doublestar globs matched against the path relative to
// the root with forward slashes.
type DiscoverOptions struct {
	Include []string
	Exclude []string
}

// Discover walks root and returns the sorted list of files matching
// the options. With no include patterns every file matches. Hidden
// directories and derived-output artifacts are never discovered.
func Discover(root string, opts DiscoverOptions) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(name, ".metadata.json") || strings.HasSuffix(name, ".parsed.md") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if matchAny(opts.Exclude, rel) {
			return nil
		}
		if len(opts.Include) > 0 && !matchAny(opts.Include, rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, "discover input files", err)
	}
	sort.Strings(files)
	return files, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
