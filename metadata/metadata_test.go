package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_String(t *testing.T) {
	v := Version{Major: 2, Minor: 5, Patch: 1}
	assert.Equal(t, "2.5.1", v.String())
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b Version
		want int
	}{
		{"equal", Version{Major: 1, Minor: 2}, Version{Major: 1, Minor: 2}, 0},
		{"major wins", Version{Major: 2}, Version{Major: 1, Minor: 9}, 1},
		{"minor", Version{Major: 1, Minor: 1}, Version{Major: 1, Minor: 3}, -1},
		{"patch", Version{Major: 1, Minor: 1, Patch: 2}, Version{Major: 1, Minor: 1, Patch: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestNewSnapshot_Fields(t *testing.T) {
	s := NewSnapshot("/in/a.md", "a.md", "markdown", "parse")
	assert.Equal(t, "/in/a.md", s.FilePath)
	assert.Equal(t, "a.md", s.FileName)
	assert.Equal(t, "markdown", s.FileType)
	assert.Equal(t, "1.0.0", s.CurrentVersion.String())
	assert.False(t, s.ProcessedAt.IsZero())
}

func TestSnapshot_AddVersion(t *testing.T) {
	s := NewSnapshot("/in/a.md", "a.md", "markdown", "parse")
	require.Equal(t, "1.0.0", s.CurrentVersion.String())
	require.Empty(t, s.VersionHistory)

	s.AddVersion("disassemble", "split into sections")

	assert.Equal(t, "1.1.0", s.CurrentVersion.String())
	assert.Equal(t, "disassemble", s.CurrentVersion.Phase)
	require.Len(t, s.VersionHistory, 1)
	assert.Equal(t, "1.0.0", s.VersionHistory[0].String())

	s.AddVersion("split")
	assert.Equal(t, "1.2.0", s.CurrentVersion.String())
	assert.Len(t, s.VersionHistory, 2)
}

func TestSnapshot_AddError(t *testing.T) {
	s := NewSnapshot("/in/a.md", "a.md", "markdown", "parse")
	require.False(t, s.HasErrors)

	s.AddError("parse", "handler failed", "unsupported encoding")

	assert.True(t, s.HasErrors)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "parse", s.Errors[0].Source)
}

func TestSnapshot_Clone_Independent(t *testing.T) {
	s := NewSnapshot("/in/a.md", "a.md", "markdown", "parse")
	s.AddOutput("/out/a.parsed.md")
	s.Tags.Add("inbox")

	c := s.Clone()
	c.AddOutput("/out/extra.md")
	c.Tags.Add("copied")
	c.AddVersion("disassemble")

	assert.False(t, s.OutputFiles.Has("/out/extra.md"))
	assert.False(t, s.Tags.Has("copied"))
	assert.Equal(t, "1.0.0", s.CurrentVersion.String())
}

func TestStringSet_DeterministicJSON(t *testing.T) {
	set := NewStringSet("zebra", "alpha", "mid")
	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["alpha","mid","zebra"]`, string(data))

	var back StringSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Has("zebra"))
	assert.Len(t, back, 3)
}
