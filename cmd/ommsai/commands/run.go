package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
	"github.com/ramdhavepreetam/OmmSai/internal/checkpoint"
	"github.com/ramdhavepreetam/OmmSai/internal/config"
	"github.com/ramdhavepreetam/OmmSai/internal/drive"
	"github.com/ramdhavepreetam/OmmSai/internal/extract"
	"github.com/ramdhavepreetam/OmmSai/internal/observability"
	"github.com/ramdhavepreetam/OmmSai/internal/progress"
	"github.com/ramdhavepreetam/OmmSai/internal/ratelimit"
	"github.com/ramdhavepreetam/OmmSai/internal/retry"
	"github.com/ramdhavepreetam/OmmSai/internal/sink"
)

// rateWindow is the sliding window for both provider limiters.
const rateWindow = time.Minute

// defaultSummaryPath is where the run summary lands unless overridden.
const defaultSummaryPath = "run_summary.json"

// ErrUnknownSink indicates run.sink named no known sink implementation.
var ErrUnknownSink = errors.New("unknown sink kind")

// RunCommand holds flags and dependencies for the run command.
type RunCommand struct {
	opts *GlobalOptions

	folderID    string
	idsFile     string
	workers     int
	sequential  bool
	output      string
	sinkKind    string
	resume      bool
	clear       bool
	summaryPath string
}

// NewRunCommand creates the run command.
func NewRunCommand(opts *GlobalOptions) *cobra.Command {
	rc := &RunCommand{opts: opts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch a folder of documents and extract structured data from each",
		Long: `Fetch every document in the configured folder and run it through the
extraction service on a bounded worker pool. Interrupt with Ctrl-C to stop
dispatching; in-flight tasks finish and the checkpoint is preserved, so the
next run resumes where this one stopped. A second Ctrl-C aborts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.execute(cmd)
		},
	}

	cmd.Flags().StringVarP(&rc.folderID, "folder", "f", "", "repository folder id to process")
	cmd.Flags().StringVar(&rc.idsFile, "ids-file", "", "file with one task per line (id [display name]) instead of listing a folder")
	cmd.Flags().IntVarP(&rc.workers, "workers", "w", 0, "worker pool size")
	cmd.Flags().BoolVar(&rc.sequential, "sequential", false, "process tasks one at a time in order")
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "results output path")
	cmd.Flags().StringVar(&rc.sinkKind, "sink", "", "result sink: array, log or lz4-log")
	cmd.Flags().BoolVar(&rc.resume, "resume", true, "resume from an existing checkpoint")
	cmd.Flags().BoolVar(&rc.clear, "clear-checkpoint", false, "discard any existing checkpoint before running")
	cmd.Flags().StringVar(&rc.summaryPath, "summary", defaultSummaryPath, "run summary output path")

	return cmd
}

func (rc *RunCommand) execute(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(rc.opts.ConfigPath)
	if err != nil {
		return err
	}

	rc.applyFlagOverrides(cmd, cfg)

	providers, err := initObservability(cfg, rc.opts, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	if providers.MetricsHandler != nil {
		stop := observability.ServeMetrics(cfg.Observability.MetricsAddr, providers.MetricsHandler, providers.Logger)
		defer func() {
			stopErr := stop(context.Background())
			if stopErr != nil {
				providers.Logger.Warn("metrics server shutdown failed", "error", stopErr)
			}
		}()
	}

	metrics, err := observability.NewEngineMetrics(providers.Meter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tasks, factory, err := rc.resolveTasks(ctx, cfg)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		providers.Logger.Info("no documents to process")

		return nil
	}

	apiKey, err := requireEnv(cfg.Extract.APIKeyEnv, ErrMissingAPIKey)
	if err != nil {
		return err
	}

	extractor, err := extract.New(ctx, extract.Config{APIKey: apiKey, Model: cfg.Extract.Model})
	if err != nil {
		return err
	}

	store, err := rc.openCheckpoint(cfg)
	if err != nil {
		return err
	}

	prices, err := resolvePrices(cfg)
	if err != nil {
		return err
	}

	resultSink, closeSink, err := buildSink(cfg.Run.Sink, cfg.Run.Output)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker()

	exec, err := batch.NewExecutor(batch.Options{
		Fetchers:       factory,
		Extractor:      extractor,
		RepoLimiter:    ratelimit.New(cfg.Rate.RepositoryPerMin, rateWindow),
		ExtractLimiter: ratelimit.New(cfg.Rate.ExtractionPerMin, rateWindow),
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		Checkpoint:      store,
		Progress:        tracker,
		Sink:            resultSink,
		OnProgress:      rc.progressLine(),
		Prices:          prices,
		Workers:         cfg.Run.Workers,
		ThrottleBackoff: cfg.Rate.ThrottleBackoff,
		Logger:          providers.Logger,
		Tracer:          providers.Tracer,
		Metrics:         metrics,
	})
	if err != nil {
		return err
	}

	stopSignals := watchInterrupts(ctx, cancel, exec, providers)
	defer stopSignals()

	var summary batch.Summary

	if cfg.Run.Sequential {
		summary, _ = exec.RunSequential(ctx, tasks)
	} else {
		summary, _ = exec.Run(ctx, tasks)
	}

	if closeSink != nil {
		closeErr := closeSink()
		if closeErr != nil {
			providers.Logger.Warn("sink close failed", "error", closeErr)
		}
	}

	if !rc.opts.Quiet {
		fmt.Fprintln(os.Stderr)
		renderSummary(os.Stdout, summary)
	}

	writeErr := writeRunSummary(rc.summaryPath, summary)
	if writeErr != nil {
		providers.Logger.Warn("run summary write failed", "path", rc.summaryPath, "error", writeErr)
	}

	return nil
}

// applyFlagOverrides lets explicit flags win over file and env configuration.
func (rc *RunCommand) applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("folder") {
		cfg.Drive.FolderID = rc.folderID
	}

	if cmd.Flags().Changed("workers") {
		cfg.Run.Workers = rc.workers
	}

	if cmd.Flags().Changed("sequential") {
		cfg.Run.Sequential = rc.sequential
	}

	if cmd.Flags().Changed("output") {
		cfg.Run.Output = rc.output
	}

	if cmd.Flags().Changed("sink") {
		cfg.Run.Sink = rc.sinkKind
	}

	if cmd.Flags().Changed("resume") {
		cfg.Checkpoint.Resume = rc.resume
	}

	if cmd.Flags().Changed("clear-checkpoint") {
		cfg.Checkpoint.Clear = rc.clear
	}
}

// resolveTasks builds the task list from an explicit ids file or a folder
// listing, plus the per-worker fetcher factory.
func (rc *RunCommand) resolveTasks(ctx context.Context, cfg *config.Config) ([]batch.Task, batch.FetcherFactory, error) {
	token, err := requireEnv(cfg.Drive.TokenEnv, ErrMissingToken)
	if err != nil {
		return nil, nil, err
	}

	var driveOpts []drive.Option
	if cfg.Drive.BaseURL != "" {
		driveOpts = append(driveOpts, drive.WithBaseURL(cfg.Drive.BaseURL))
	}

	factory := drive.NewFactory(token, driveOpts...)

	if rc.idsFile != "" {
		tasks, readErr := readTaskList(rc.idsFile)

		return tasks, factory, readErr
	}

	if cfg.Drive.FolderID == "" {
		return nil, nil, fmt.Errorf("%w: pass --folder or set drive.folder_id", ErrMissingFolder)
	}

	files, err := drive.New(token, driveOpts...).ListFolder(ctx, cfg.Drive.FolderID)
	if err != nil {
		return nil, nil, err
	}

	return drive.Tasks(files), factory, nil
}

func (rc *RunCommand) openCheckpoint(cfg *config.Config) (*checkpoint.Store, error) {
	store, err := checkpoint.Open(cfg.Checkpoint.Path, cfg.Checkpoint.BatchSize)
	if err != nil {
		return nil, err
	}

	if cfg.Checkpoint.Clear || !cfg.Checkpoint.Resume {
		clearErr := store.Clear()
		if clearErr != nil {
			return nil, clearErr
		}
	}

	return store, nil
}

// progressLine renders a single live status line to stderr per completion.
func (rc *RunCommand) progressLine() func(batch.Snapshot) {
	if rc.opts.Quiet {
		return nil
	}

	return func(snap batch.Snapshot) {
		eta := "unknown"
		if snap.ETA != nil {
			eta = snap.ETA.Round(time.Second).String()
		}

		fmt.Fprintf(os.Stderr, "\r%d/%d (%.1f%%) ok:%d partial:%d failed:%d | %.1f/min | ETA %s ",
			snap.Processed, snap.Total, snap.PercentComplete,
			snap.Success, snap.Partial, snap.Failed,
			snap.CurrentThroughput, eta)
	}
}

// watchInterrupts installs two-stage interrupt handling: the first signal
// stops dispatch and lets in-flight tasks finish, the second aborts the run.
func watchInterrupts(ctx context.Context, cancel context.CancelFunc, exec *batch.Executor, providers observability.Providers) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			providers.Logger.Warn("interrupt received, finishing in-flight tasks (interrupt again to abort)")
			exec.Cancel()
		case <-ctx.Done():
			return
		}

		select {
		case <-sigCh:
			providers.Logger.Warn("second interrupt, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	return func() { signal.Stop(sigCh) }
}

// buildSink constructs the configured result sink. The returned close
// function is nil for sinks that hold no open handle.
func buildSink(kind, output string) (batch.Sink, func() error, error) {
	switch kind {
	case config.SinkArray:
		return sink.NewArray(output), nil, nil
	case config.SinkLog:
		s := sink.NewLog(output)

		return s, s.Close, nil
	case config.SinkLZ4Log:
		s := sink.NewCompressedLog(output)

		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSink, kind)
	}
}

// resolvePrices loads the price table file when configured, falling back to
// the inline pricing values.
func resolvePrices(cfg *config.Config) (batch.PriceTable, error) {
	if cfg.Pricing.File != "" {
		return progress.LoadPriceTable(cfg.Pricing.File)
	}

	return batch.PriceTable{
		InputPerMillion:  cfg.Pricing.InputPerMillion,
		OutputPerMillion: cfg.Pricing.OutputPerMillion,
	}, nil
}

// readTaskList parses a plain-text task list: one task per line, the id
// first, optionally followed by a display name. Blank lines and lines
// starting with # are skipped.
func readTaskList(path string) ([]batch.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ids file: %w", err)
	}
	defer f.Close()

	var tasks []batch.Task

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)

		name := fields[0]
		if len(fields) > 1 {
			name = strings.Join(fields[1:], " ")
		}

		tasks = append(tasks, batch.Task{ID: fields[0], Name: name})
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("read ids file: %w", scanErr)
	}

	return tasks, nil
}
