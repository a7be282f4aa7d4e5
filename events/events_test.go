package events

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_EmptyURLDisablesEventing(t *testing.T) {
	p, err := Connect("", slog.Default())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	p.PublishFile(FileEvent{File: "a.md", Phase: "parse", Status: "successful"})
	p.PublishRun(RunEvent{RunID: "r1", Total: 3})
	p.Close()
}

func TestFileEventSerialization(t *testing.T) {
	ev := FileEvent{
		RunID:     "run-1",
		File:      "/in/memo.md",
		Phase:     "split",
		Status:    "failed",
		Error:     "handler conversion failed",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded FileEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ev, decoded)
	assert.Contains(t, string(data), `"phase":"split"`)
}

func TestRunEventOmitsNothingRequired(t *testing.T) {
	data, err := json.Marshal(RunEvent{RunID: "run-2", Total: 5, Failed: 1})
	require.NoError(t, err)
	for _, key := range []string{"run_id", "total", "processed", "failed", "skipped"} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}
}
