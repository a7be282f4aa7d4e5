// Package events publishes pipeline progress to NATS. A nil Publisher
// is valid and drops everything, so callers never branch on whether
// eventing is configured.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/novakit/nova/errs"
)

// Subjects for pipeline events.
const (
	SubjectFile = "nova.pipeline.file"
	SubjectRun  = "nova.pipeline.run"
)

// FileEvent reports one file finishing one phase.
type FileEvent struct {
	RunID     string    `json:"run_id"`
	File      string    `json:"file"`
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunEvent reports a completed run.
type RunEvent struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Publisher sends pipeline events over a NATS connection.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect opens a NATS connection for event publishing. An empty URL
// returns a nil publisher: eventing disabled.
func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("nova-pipeline"),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, "connect to NATS", err)
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// PublishFile emits a per-file phase-completion event.
func (p *Publisher) PublishFile(ev FileEvent) {
	if p == nil {
		return
	}
	p.publish(SubjectFile, ev)
}

// PublishRun emits the run summary event.
func (p *Publisher) PublishRun(ev RunEvent) {
	if p == nil {
		return
	}
	p.publish(SubjectRun, ev)
}

// Close flushes and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Flush(); err != nil {
		p.logger.Warn("flush NATS connection", slog.String("error", err.Error()))
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("marshal event", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		// Event loss never fails the pipeline.
		p.logger.Warn("publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
