// Package metadata provides the versioned per-file metadata model and
// its JSON store. One Snapshot exists per file per phase; each phase
// archives the previous version and bumps the minor component.
package metadata

import (
	"fmt"
	"time"
)

// Version is one entry in a snapshot's version history.
type Version struct {
	Major     int       `json:"major"`
	Minor     int       `json:"minor"`
	Patch     int       `json:"patch"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`
	Changes   []string  `json:"changes,omitempty"`
}

// InitialVersion returns the version assigned when a file is first
// processed.
func InitialVersion(phase string) Version {
	return Version{
		Major:     1,
		Minor:     0,
		Patch:     0,
		Timestamp: time.Now().UTC(),
		Phase:     phase,
	}
}

// String returns the "major.minor.patch" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders versions componentwise (major, then minor, then
// patch). It returns -1, 0, or 1.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return sign(v.Major - other.Major)
	}
	if v.Minor != other.Minor {
		return sign(v.Minor - other.Minor)
	}
	return sign(v.Patch - other.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
