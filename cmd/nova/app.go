package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novakit/nova/config"
	"github.com/novakit/nova/events"
	"github.com/novakit/nova/handler"
	"github.com/novakit/nova/metadata"
	"github.com/novakit/nova/metrics"
	"github.com/novakit/nova/phase"
	"github.com/novakit/nova/pipeline"
	"github.com/novakit/nova/reference"
	"github.com/novakit/nova/validate"
	"github.com/novakit/nova/watch"
)

type cliOptions struct {
	configPath string
	inputRoot  string
	outputDir  string
	workers    int
	logLevel   string
}

// app wires configuration, stores, phases, and the orchestrator for
// one invocation of the binary.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	orch      *pipeline.Orchestrator
	publisher *events.Publisher
	stores    map[string]*metadata.Store
	metricsrv *http.Server
}

func newApp(opts *cliOptions) (*app, error) {
	logger := newLogger(opts.logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts, logger)
	if err != nil {
		return nil, err
	}

	inputRoot, err := filepath.Abs(cfg.Input.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve input root: %w", err)
	}
	info, err := os.Stat(inputRoot)
	if err != nil {
		return nil, fmt.Errorf("stat input root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", inputRoot)
	}
	cfg.Input.Root = inputRoot

	outDir, err := filepath.Abs(cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	cfg.Output.Dir = outDir

	stores := map[string]*metadata.Store{}
	for _, ph := range validate.PhaseOrder {
		store, err := metadata.NewStore(filepath.Join(outDir, "metadata", ph), inputRoot, logger)
		if err != nil {
			return nil, fmt.Errorf("create %s metadata store: %w", ph, err)
		}
		stores[ph] = store
	}

	refs := reference.NewManager(logger)
	validator := validate.New(stores, refs, logger)
	phases := []phase.Phase{
		phase.NewParse(handler.NewRegistry(), stores["parse"], inputRoot, filepath.Join(outDir, "parse"), logger),
		phase.NewDisassemble(stores["disassemble"], inputRoot, filepath.Join(outDir, "disassemble"), logger),
		phase.NewSplit(stores["split"], refs, inputRoot, filepath.Join(outDir, "split"), logger),
		phase.NewFinalize(stores["finalize"], validator, refs, inputRoot, filepath.Join(outDir, "finalize"), logger),
	}

	publisher, err := events.Connect(cfg.NATS.URL, logger)
	if err != nil {
		logger.Warn("event publishing disabled", slog.String("error", err.Error()))
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		publisher: publisher,
		stores:    stores,
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		a.metricsrv = &http.Server{
			Addr:    cfg.Metrics.Listen,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := a.metricsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	a.orch = pipeline.NewOrchestrator(phases,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithPhaseTimeout(cfg.Pipeline.PhaseTimeout),
		pipeline.WithLogger(logger),
		pipeline.WithPublisher(publisher),
		pipeline.WithMetrics(m))
	return a, nil
}

func loadConfig(opts *cliOptions, logger *slog.Logger) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		fileCfg, err := config.LoadFromFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = config.DefaultConfig()
		cfg.Merge(fileCfg)
	} else {
		loaded, err := config.NewLoader(logger).Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.inputRoot != "" {
		cfg.Input.Root = opts.inputRoot
	}
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}
	if opts.workers > 0 {
		cfg.Pipeline.Workers = opts.workers
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) *slog.Logger {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// RunOnce discovers the input tree, runs the pipeline, and prints the
// run and finalize reports.
func (a *app) RunOnce(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := pipeline.Discover(a.cfg.Input.Root, pipeline.DiscoverOptions{
		Include: a.cfg.Input.Include,
		Exclude: a.cfg.Input.Exclude,
	})
	if err != nil {
		return err
	}
	a.logger.Info("starting run",
		slog.Int("files", len(files)),
		slog.String("input", a.cfg.Input.Root),
		slog.String("output", a.cfg.Output.Dir))

	report := a.orch.Run(ctx, files)
	if err := a.orch.Aborted(); err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}

	final, err := a.orch.Finalize(ctx)
	if err != nil {
		return err
	}
	a.printReports(report, final)
	return nil
}

// Watch runs the pipeline once, then re-runs it whenever documents
// change. Deletions drop the file's metadata in every phase store.
func (a *app) Watch(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.RunOnce(ctx); err != nil {
		return err
	}

	watcher, err := watch.New(a.cfg.Input.Root, watch.Options{Debounce: a.cfg.Watch.Debounce}, a.logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	a.logger.Info("watching for changes", slog.String("root", a.cfg.Input.Root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if event.Op == watch.OpDelete {
				for _, store := range a.stores {
					store.Delete(event.AbsPath)
				}
				a.logger.Info("dropped metadata for deleted file", slog.String("file", event.Path))
				continue
			}
			a.logger.Info("change detected, re-running",
				slog.String("file", event.Path), slog.String("op", string(event.Op)))
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Error("re-run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Clean removes the output directory with all derived artifacts and
// metadata.
func (a *app) Clean() error {
	a.logger.Info("removing output directory", slog.String("dir", a.cfg.Output.Dir))
	return os.RemoveAll(a.cfg.Output.Dir)
}

// Close releases the app's external resources.
func (a *app) Close() {
	if a.metricsrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsrv.Shutdown(ctx)
	}
	a.publisher.Close()
}

func (a *app) printReports(report *pipeline.RunReport, final *pipeline.FinalizeReport) {
	fmt.Printf("run %s: %d files, %d processed, %d failed, %d skipped (%s)\n",
		report.RunID, report.Total, report.Processed, report.Failed, report.Skipped,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, fe := range report.Errors {
		fmt.Printf("  FAIL %s [%s]: %s\n", fe.File, fe.Phase, fe.Error)
	}
	if len(final.Errors) > 0 {
		fmt.Printf("validation findings (%d):\n", len(final.Errors))
		for _, finding := range final.Errors {
			fmt.Printf("  %s\n", finding)
		}
	} else {
		fmt.Println("validation clean")
	}
}
