package metadata

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/novakit/nova/pathresolve"
)

// cacheSize bounds the read cache of recently loaded snapshots.
const cacheSize = 256

// Store persists one snapshot per file under a phase's metadata
// directory, mirroring the input directory structure. Writes are
// atomic (temp file + rename) and serialized per metadata path.
type Store struct {
	dir       string
	inputRoot string
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	cache *lru.Cache[string, *Snapshot]
}

// NewStore creates a store rooted at dir for files under inputRoot.
func NewStore(dir, inputRoot string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *Snapshot](cacheSize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		dir:       dir,
		inputRoot: inputRoot,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		cache:     cache,
	}, nil
}

// PathFor returns the metadata path for a source file: the input
// relative directory mirrored under the store root, with the file's
// stem and a ".metadata.json" suffix.
func (s *Store) PathFor(filePath string) string {
	rel := pathresolve.RelativeUnder(s.inputRoot, filePath)
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(s.dir, stem+".metadata.json")
}

// Save writes the snapshot. It returns false and logs on any failure
// rather than propagating the error; a failed metadata write must not
// abort the file's processing.
func (s *Store) Save(m *Snapshot) bool {
	path := s.PathFor(m.FilePath)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.logger.Error("create metadata directory failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		s.logger.Error("marshal snapshot failed",
			slog.String("file", m.FilePath), slog.String("error", err.Error()))
		return false
	}

	// Write to a temp file in the same directory and rename so a
	// crash mid-write never leaves a half-written snapshot visible.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nova-*.tmp")
	if err != nil {
		s.logger.Error("create temp metadata file failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		s.logger.Error("write metadata failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		s.logger.Error("close metadata failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		s.logger.Error("rename metadata failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}

	s.cache.Add(path, m.Clone())
	return true
}

// Load reads the snapshot for a file. It returns nil when the
// snapshot is absent or malformed.
func (s *Store) Load(filePath string) *Snapshot {
	path := s.PathFor(filePath)

	if cached, ok := s.cache.Get(path); ok {
		return cached.Clone()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read metadata failed",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	}

	var m Snapshot
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("malformed metadata snapshot",
			slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}

	s.cache.Add(path, m.Clone())
	return &m
}

// Delete removes the persisted snapshot for a file.
func (s *Store) Delete(filePath string) bool {
	path := s.PathFor(filePath)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	s.cache.Remove(path)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
		s.logger.Error("delete metadata failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[path]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[path] = l
	return l
}
