package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindResource, "save snapshot", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "save snapshot")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", New(KindReference, "broken link"), KindReference},
		{"wrapped classified", fmt.Errorf("outer: %w", New(KindPipeline, "mkdir failed")), KindPipeline},
		{"plain error", errors.New("whatever"), KindProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(KindConfiguration, "bad config")))
	assert.True(t, IsFatal(New(KindPipeline, "cannot create output dir")))
	assert.False(t, IsFatal(New(KindProcessing, "handler failed")))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestIsRecoverable(t *testing.T) {
	err := New(KindResource, "lock contention").AsRecoverable()
	require.True(t, IsRecoverable(err))
	assert.False(t, IsRecoverable(New(KindResource, "permission denied")))
}

func TestTruncate(t *testing.T) {
	short := "short content"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("x", 250)
	got := Truncate(long)
	assert.Len(t, got, 103)
	assert.True(t, strings.HasSuffix(got, "..."))
}
