package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/execution"
	"github.com/jherleth/salvo-ai/internal/loader"
	"github.com/jherleth/salvo-ai/internal/observability"
	"github.com/jherleth/salvo-ai/internal/recording"
	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/internal/watch"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// exitCodes maps each verdict to a process exit code. INFRA_ERROR is
// distinct so CI can tell broken plumbing from a failing agent.
var exitCodes = map[models.Verdict]int{
	models.VerdictPass:       0,
	models.VerdictFail:       1,
	models.VerdictHardFail:   2,
	models.VerdictPartial:    1,
	models.VerdictInfraError: 3,
}

func exitCodeForVerdict(v models.Verdict) int {
	if code, ok := exitCodes[v]; ok {
		return code
	}
	return 1
}

type runOptions struct {
	trials       int
	parallel     int
	jsonOut      bool
	jsonAlias    bool
	verbose      bool
	report       bool
	diagnose     bool
	earlyStop    bool
	allowInfra   bool
	threshold    float64
	thresholdSet bool
	record       bool
	watchMode    bool
	otelEndpoint string
}

func buildRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against an LLM and display results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.jsonOut = opts.jsonOut || opts.jsonAlias
			opts.thresholdSet = cmd.Flags().Changed("threshold")
			if opts.verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
			return runRun(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().IntVarP(&opts.trials, "trials", "n", execution.DefaultNTrials, "Number of trials to run")
	cmd.Flags().IntVar(&opts.parallel, "parallel", execution.DefaultMaxParallel, "Max concurrent trials")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output pure JSON to stdout")
	cmd.Flags().BoolVar(&opts.jsonAlias, "format-json", false, "Output pure JSON to stdout")
	_ = cmd.Flags().MarkHidden("format-json")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "V", false, "Show detail sections even on pass")
	cmd.Flags().BoolVar(&opts.report, "report", false, "Show detail sections (CI alias)")
	cmd.Flags().BoolVar(&opts.diagnose, "diagnose", false, "Show detail sections and per-trial assertion reports")
	cmd.Flags().BoolVar(&opts.earlyStop, "early-stop", false, "Stop when threshold unreachable or hard fail")
	cmd.Flags().BoolVar(&opts.allowInfra, "allow-infra", false, "Exit 0/1/2 instead of 3 on infra errors")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Override scenario threshold")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Record traces for replay")
	cmd.Flags().BoolVar(&opts.watchMode, "watch", false, "Rerun when the scenario file changes")
	cmd.Flags().StringVar(&opts.otelEndpoint, "otel-endpoint", os.Getenv("SALVO_OTEL_ENDPOINT"),
		"OTLP gRPC endpoint for trace export")
	return cmd
}

func runRun(ctx context.Context, scenarioPath string, opts runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Process-lifetime observability. The registry is private: nothing
	// scrapes a CLI run, but the runner records into it all the same and
	// watch-mode reruns must not re-register collectors.
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "salvo",
		ServiceVersion: version,
		Endpoint:       opts.otelEndpoint,
		Insecure:       true,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(flushCtx)
	}()

	if !opts.watchMode {
		code, err := executeRun(ctx, scenarioPath, opts, tracer, metrics)
		if err != nil {
			return err
		}
		return exitWithCode(code)
	}

	// Watch mode: run once now, then rerun on every debounced change
	// until interrupted. Rerun verdicts show in the output; the process
	// itself exits 0 on a clean interrupt.
	if _, err := executeRun(ctx, scenarioPath, opts, tracer, metrics); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	rerun := make(chan struct{}, 1)
	watcher, err := watch.New([]string{scenarioPath}, watch.DefaultDebounce, func(paths []string) {
		select {
		case rerun <- struct{}{}:
		default:
		}
	}, slog.Default())
	if err != nil {
		return err
	}
	defer watcher.Close()
	go watcher.Start(ctx)

	fmt.Fprintf(os.Stderr, "\nWatching %s for changes (Ctrl-C to stop)\n", scenarioPath)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nWatch stopped")
			return nil
		case <-rerun:
			fmt.Fprintf(os.Stderr, "\nChange detected, rerunning %s\n", scenarioPath)
			if _, err := executeRun(ctx, scenarioPath, opts, tracer, metrics); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			fmt.Fprintf(os.Stderr, "\nWatching %s for changes (Ctrl-C to stop)\n", scenarioPath)
		}
	}
}

// executeRun performs one full run of a scenario and returns the process
// exit code. Expected failures (validation, unknown adapter) are reported
// on stderr and map to exit 1; returned errors are plumbing failures the
// caller reports.
func executeRun(ctx context.Context, scenarioPath string, opts runOptions, tracer *observability.Tracer, metrics *observability.Metrics) (int, error) {
	stderr := os.Stderr
	stdout := os.Stdout

	// 1. Load and validate the scenario.
	scenario, details, err := loader.ValidateScenarioFile(scenarioPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1, nil
	}
	if len(details) > 0 {
		fmt.Fprintln(stderr, "Scenario validation errors:")
		for _, d := range details {
			loc := ""
			if d.Line > 0 {
				loc = fmt.Sprintf(" (line %d)", d.Line)
			}
			fmt.Fprintf(stderr, "  %s: %s%s\n", d.Field, d.Message, loc)
		}
		return 1, nil
	}

	// 2. Resolve the adapter up front so typos fail before any trial runs.
	if _, err := adapters.New(scenario.Adapter); err != nil {
		fmt.Fprintf(stderr, "Adapter error: %v\n", err)
		return 1, nil
	}

	// 3. Validate provider extras.
	if err := execution.ValidateExtras(scenario.Extras); err != nil {
		fmt.Fprintf(stderr, "Extras validation error: %v\n", err)
		return 1, nil
	}

	adapterConfig := adapters.Config{
		Model:       scenario.Model,
		Temperature: scenario.Temperature,
		Seed:        scenario.Seed,
		Extras:      scenario.Extras,
	}

	threshold := scenario.Threshold
	if opts.thresholdSet {
		threshold = opts.threshold
	}

	// 4. Store rooted at the project, so traces persist as trials finish.
	projectRoot := models.FindProjectRoot(scenarioPath)
	projectConfig, err := models.LoadProjectConfig(projectRoot)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1, nil
	}
	store := storage.NewStore(projectRoot, projectConfig.StorageDir)
	if err := store.EnsureDirs(); err != nil {
		return 0, err
	}

	judgeConfig := projectConfig.Judge
	runner := execution.NewTrialRunner(execution.TrialRunnerConfig{
		Factory: func() adapters.Adapter {
			a, _ := adapters.New(scenario.Adapter)
			return a
		},
		Scenario:      scenario,
		AdapterConfig: adapterConfig,
		NTrials:       opts.trials,
		MaxParallel:   opts.parallel,
		MaxRetries:    execution.DefaultMaxRetries,
		EarlyStop:     opts.earlyStop,
		Threshold:     threshold,
		JudgeConfig:   &judgeConfig,
		Sink:          store,
		Logger:        slog.Default(),
		Tracer:        tracer,
		Metrics:       metrics,
	})

	// 5. Run, with an in-place progress line on interactive terminals.
	var progress func(completed, total int)
	showProgress := !opts.jsonOut && term.IsTerminal(int(stderr.Fd()))
	if showProgress {
		progress = func(completed, total int) { printProgress(stderr, completed, total) }
	}
	suite, err := runner.RunAll(ctx, progress)
	if showProgress {
		clearProgress(stderr)
	}
	if err != nil {
		return 0, err
	}

	suite.ScenarioFile = scenarioPath

	// 6. Persist the suite, latest pointer, manifest, and history index.
	if _, err := store.SaveSuiteResult(suite); err != nil {
		return 0, err
	}
	if err := store.UpdateLatestSymlink(suite.RunID); err != nil {
		return 0, err
	}
	for _, trial := range suite.Trials {
		entry := storage.ManifestEntry{
			RunID:        suite.RunID,
			TraceID:      trial.TraceID,
			TrialIndex:   trial.TrialNumber,
			Status:       trial.Status,
			Error:        trial.ErrorMessage,
			ScenarioName: suite.ScenarioName,
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.AppendManifestEntry(entry); err != nil {
			slog.Warn("manifest append failed", "error", err)
			break
		}
	}
	appendHistory(ctx, store, suite)

	// 7. Record traces when asked. Recording failures abort before output
	// so a broken recording never masquerades as a green run.
	if opts.record {
		recorder, err := recording.NewTraceRecorder(store,
			projectConfig.Recording.Mode,
			projectConfig.Recording.CustomRedactionPatterns,
			version)
		if err == nil {
			_, err = recorder.RecordSuite(suite, scenario, scenarioPath)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Recording error: %v\n", err)
			return 1, nil
		}
	}

	// 8. Output.
	if opts.jsonOut {
		if err := outputJSON(stdout, suite); err != nil {
			return 0, err
		}
	} else {
		color := term.IsTerminal(int(stdout.Fd()))
		renderHeadline(stdout, suite, color)
		showDetails := opts.verbose || opts.report || opts.diagnose
		if suite.Verdict != models.VerdictPass || showDetails {
			renderDetails(stdout, suite, color)
		}
		if opts.diagnose {
			for _, trial := range suite.Trials {
				if len(trial.EvalResults) == 0 {
					continue
				}
				fmt.Fprintf(stdout, "\n%s\n", paint(color, ansiBold,
					fmt.Sprintf("Trial %d Assertions", trial.TrialNumber)))
				fmt.Fprintln(stdout, evaluation.FormatEvalResults(
					trial.EvalResults, trial.Score, threshold,
					trial.Passed, trial.Status == models.TrialHardFail, opts.verbose))
			}
		}
		fmt.Fprintln(stdout, paint(color, ansiDim, "Run saved: "+suite.RunID))
		if opts.record {
			fmt.Fprintln(stdout, paint(color, ansiDim, "Trace recorded: "+suite.RunID))
			for _, trial := range suite.Trials {
				fmt.Fprintln(stdout, paint(color, ansiDim,
					fmt.Sprintf("  Trial %d: trace_id=%s", trial.TrialNumber, trial.TraceID)))
			}
		}
	}

	// 9. Exit code. --allow-infra recomputes the verdict over scored
	// trials; when every trial was an infra error there is nothing to
	// score and the run still exits 3.
	if opts.allowInfra && suite.Verdict == models.VerdictInfraError {
		var scored []models.TrialResult
		for _, t := range suite.Trials {
			if t.Status != models.TrialInfraError {
				scored = append(scored, t)
			}
		}
		if len(scored) == 0 {
			return 3, nil
		}
		m := evaluation.ComputeAggregateMetrics(scored)
		verdict := evaluation.DetermineVerdict(scored, m.ScoreAvg, threshold, true)
		if !opts.jsonOut {
			color := term.IsTerminal(int(stdout.Fd()))
			fmt.Fprintln(stdout, paint(color, ansiYellow,
				fmt.Sprintf("Warning: %d infra error(s) ignored due to --allow-infra", suite.TrialsInfraError)))
		}
		return exitCodeForVerdict(verdict), nil
	}

	return exitCodeForVerdict(suite.Verdict), nil
}

// appendHistory mirrors the run into the sqlite trend index. The JSON
// store is the source of truth; a broken index only costs the trend view,
// so failures log and move on.
func appendHistory(ctx context.Context, store *storage.Store, suite *models.TrialSuiteResult) {
	history, err := storage.OpenHistory(filepath.Join(store.Root(), storage.HistoryFile), nil)
	if err != nil {
		slog.Warn("history index unavailable", "error", err)
		return
	}
	defer history.Close()
	if err := history.Append(ctx, suite); err != nil {
		slog.Warn("history append failed", "error", err)
	}
}
