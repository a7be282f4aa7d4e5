package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novakit/nova/errs"
	"github.com/novakit/nova/events"
	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/metrics"
	"github.com/novakit/nova/phase"
)

const defaultWorkers = 4

// Orchestrator drives files through the ordered phase list with a
// bounded worker pool. Phases run strictly sequentially per file;
// a failure in one phase stops that file and never the run.
type Orchestrator struct {
	phases       []phase.Phase
	workers      int
	phaseTimeout time.Duration
	logger       *slog.Logger
	publisher    *events.Publisher
	metrics      *metrics.Metrics

	mu      sync.Mutex
	aborted error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPhaseTimeout bounds how long one file may spend in one phase.
// Zero means no per-phase timeout.
func WithPhaseTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.phaseTimeout = d }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPublisher attaches an event publisher. Nil disables eventing.
func WithPublisher(p *events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics attaches pipeline metrics. Nil disables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an orchestrator over the ordered phases.
func NewOrchestrator(phases []phase.Phase, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		phases:  phases,
		workers: defaultWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes every file through the phase list and returns the run
// report. Cancelling ctx stops new phases from starting; a phase
// already processing a file finishes before the worker exits, so no
// file is torn down mid-write.
func (o *Orchestrator) Run(ctx context.Context, files []string) *RunReport {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Total:     len(files),
	}
	o.mu.Lock()
	o.aborted = nil
	o.mu.Unlock()
	for _, p := range o.phases {
		p.State().Reset()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				o.processFile(runCtx, file, report, cancel)
			}
		}()
	}
	for _, file := range files {
		if runCtx.Err() != nil {
			report.recordSkipped()
			continue
		}
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = time.Now().UTC()
	o.metrics.ObserveRun()
	o.publisher.PublishRun(events.RunEvent{
		RunID:     report.RunID,
		Total:     report.Total,
		Processed: report.Processed,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
		Duration:  report.FinishedAt.Sub(report.StartedAt),
		Timestamp: report.FinishedAt,
	})
	o.logger.Info("run complete",
		slog.String("run_id", report.RunID),
		slog.Int("total", report.Total),
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped))
	return report
}

// processFile drives one file through every phase in order. Each
// phase runs under a detached context so run cancellation lets the
// in-flight phase complete; between phases the run context is checked
// and a cancelled run stops the file there.
func (o *Orchestrator) processFile(ctx context.Context, file string, report *RunReport, abort context.CancelFunc) {
	var meta *metadata.Snapshot
	for _, p := range o.phases {
		if err := ctx.Err(); err != nil {
			report.recordFailure(file, p.Name(), "run cancelled before phase start")
			o.metrics.ObserveFile(p.Name(), string(phase.StatusFailed))
			return
		}

		phaseCtx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc = func() {}
		if o.phaseTimeout > 0 {
			phaseCtx, cancel = context.WithTimeout(phaseCtx, o.phaseTimeout)
		}

		start := time.Now()
		out, err := p.ProcessFile(phaseCtx, file, meta)
		cancel()
		o.metrics.ObservePhaseDuration(p.Name(), time.Since(start))

		switch {
		case err != nil:
			message := errs.Truncate(err.Error())
			report.recordFailure(file, p.Name(), message)
			o.metrics.ObserveFile(p.Name(), string(phase.StatusFailed))
			o.publishFile(report.RunID, file, p.Name(), string(phase.StatusFailed), message)
			o.logger.Warn("phase failed",
				slog.String("file", file),
				slog.String("phase", p.Name()),
				slog.String("error", message))
			if errs.IsFatal(err) {
				o.mu.Lock()
				o.aborted = err
				o.mu.Unlock()
				abort()
			}
			return
		case out == nil:
			report.recordSkipped()
			o.metrics.ObserveFile(p.Name(), string(phase.StatusSkipped))
			o.publishFile(report.RunID, file, p.Name(), string(phase.StatusSkipped), "")
			return
		default:
			o.metrics.ObserveFile(p.Name(), string(phase.StatusSuccessful))
			o.publishFile(report.RunID, file, p.Name(), string(phase.StatusSuccessful), "")
			meta = out
		}
	}
	report.recordProcessed()
}

// Aborted reports the fatal error that cancelled the run, if any.
func (o *Orchestrator) Aborted() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aborted
}

// Finalize runs every phase's finalize in order and aggregates counts
// and findings. Phases implementing phase.Reporter contribute their
// findings to the report errors.
func (o *Orchestrator) Finalize(ctx context.Context) (*FinalizeReport, error) {
	report := &FinalizeReport{Counts: map[string]map[string]phase.CategoryCounts{}}
	for _, p := range o.phases {
		counts, err := p.Finalize(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.KindPipeline, "finalize phase "+p.Name(), err)
		}
		report.Counts[p.Name()] = counts
		if reporter, ok := p.(phase.Reporter); ok {
			report.Errors = append(report.Errors, reporter.Report()...)
		}
	}
	return report, nil
}

func (o *Orchestrator) publishFile(runID, file, phaseName, status, message string) {
	o.publisher.PublishFile(events.FileEvent{
		RunID:     runID,
		File:      file,
		Phase:     phaseName,
		Status:    status,
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}
