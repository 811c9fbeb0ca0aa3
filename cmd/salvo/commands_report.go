package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/pkg/models"
)

type reportOptions struct {
	history      bool
	limit        int
	scenario     string
	failuresOnly bool
}

func buildReportCmd() *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Display stored run results and history trends",
		Long: `Display stored run results and history trends.

Shows the latest run by default, a specific run when given its ID, and a
trend table of recent runs with --history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) > 0 {
				runID = args[0]
			}
			return runReport(cmd.Context(), runID, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.history, "history", false, "Show trend view of recent runs")
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 10, "Number of runs to show in history")
	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "Filter by scenario name")
	cmd.Flags().BoolVar(&opts.failuresOnly, "failures", false, "Show only failed assertions")
	return cmd
}

func runReport(ctx context.Context, runID string, opts reportOptions) error {
	stdout := os.Stdout
	color := term.IsTerminal(int(stdout.Fd()))

	projectRoot := models.FindProjectRoot("")
	projectConfig, err := models.LoadProjectConfig(projectRoot)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(projectRoot, projectConfig.StorageDir)); err != nil {
		fmt.Fprintln(stdout, paint(color, ansiDim, "No .salvo/ directory found. Run 'salvo run' first."))
		return nil
	}
	store := storage.NewStore(projectRoot, projectConfig.StorageDir)

	if opts.history {
		return reportHistory(ctx, store, opts, stdout, color)
	}
	return reportDetail(store, runID, opts, stdout, color)
}

func reportHistory(ctx context.Context, store *storage.Store, opts reportOptions, w io.Writer, color bool) error {
	entries := loadHistoryEntries(ctx, store, opts.limit, opts.scenario, w)
	if len(entries) == 0 {
		if opts.scenario != "" {
			fmt.Fprintln(w, paint(color, ansiDim, fmt.Sprintf("No runs found for scenario '%s'.", opts.scenario)))
		} else {
			fmt.Fprintln(w, paint(color, ansiDim, "No runs found. Run 'salvo run' first."))
		}
		return nil
	}

	if opts.failuresOnly {
		var kept []storage.HistoryEntry
		for _, e := range entries {
			if e.Verdict != models.VerdictPass {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, paint(color, ansiDim, "No matching runs found."))
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, paint(color, ansiBold, "Run History"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  Run ID\tScenario\tVerdict\tScore\tTrials\tCost")
	for _, e := range entries {
		style := styleForVerdict(e.Verdict)
		cost := "-"
		if e.Cost != nil {
			cost = fmt.Sprintf("$%.4f", *e.Cost)
		}
		passed := int(math.Round(e.PassRate * float64(e.Trials)))
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%.2f\t%d/%d\t%s\n",
			shortID(e.RunID), e.Scenario, paint(color, ansiBold+style.color, style.symbol),
			e.Score, passed, e.Trials, cost)
	}
	tw.Flush()

	if len(entries) >= 2 {
		fmt.Fprintf(w, "\n%d runs shown. Pass rate trend: %.0f%% -> %.0f%%\n",
			len(entries), entries[0].PassRate*100, entries[len(entries)-1].PassRate*100)
	} else {
		fmt.Fprintf(w, "\n%d run(s) shown.\n", len(entries))
	}
	return nil
}

// loadHistoryEntries reads recent runs chronologically, preferring the
// sqlite index and falling back to a JSON store scan when the index is
// missing or empty.
func loadHistoryEntries(ctx context.Context, store *storage.Store, limit int, scenario string, w io.Writer) []storage.HistoryEntry {
	if history, err := storage.OpenHistory(filepath.Join(store.Root(), storage.HistoryFile), nil); err == nil {
		defer history.Close()
		entries, err := history.Recent(ctx, limit, scenario)
		if err == nil && len(entries) > 0 {
			// Recent returns newest first; the trend view reads oldest
			// to newest.
			for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
				entries[i], entries[j] = entries[j], entries[i]
			}
			return entries
		}
	}

	runIDs, err := store.ListRuns(scenario)
	if err != nil || len(runIDs) == 0 {
		return nil
	}
	if limit > 0 && len(runIDs) > limit {
		runIDs = runIDs[len(runIDs)-limit:]
	}
	var entries []storage.HistoryEntry
	for _, rid := range runIDs {
		suite, err := store.LoadSuiteResult(rid)
		if err != nil {
			fmt.Fprintf(w, "Warning: skipping run %s (could not load)\n", rid)
			continue
		}
		entries = append(entries, storage.HistoryEntry{
			RunID:    suite.RunID,
			Scenario: suite.ScenarioName,
			Verdict:  suite.Verdict,
			Score:    suite.ScoreAvg,
			PassRate: suite.PassRate,
			Cost:     suite.CostTotal,
			Trials:   suite.TrialsTotal,
		})
	}
	return entries
}

func reportDetail(store *storage.Store, runID string, opts reportOptions, w io.Writer, color bool) error {
	var suite *models.TrialSuiteResult
	if runID != "" {
		s, err := store.LoadSuiteResult(runID)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(w, "Run '%s' not found.\n", runID)
			if available, err := store.ListRuns(""); err == nil && len(available) > 0 {
				if len(available) > 10 {
					available = available[:10]
				}
				fmt.Fprintf(w, "Available runs: %s\n", strings.Join(available, ", "))
			}
			return exitWithCode(1)
		}
		if err != nil {
			return err
		}
		suite = s
	} else {
		s, err := store.LoadLatestSuite()
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintln(w, paint(color, ansiDim, "No runs found. Run 'salvo run' first."))
			return nil
		}
		suite = s
	}

	if opts.scenario != "" && suite.ScenarioName != opts.scenario {
		fmt.Fprintln(w, paint(color, ansiDim, fmt.Sprintf("No runs found for scenario '%s'.", opts.scenario)))
		return nil
	}

	renderRunDetail(w, suite, opts.failuresOnly, color)
	return nil
}

func renderRunDetail(w io.Writer, suite *models.TrialSuiteResult, failuresOnly, color bool) {
	fmt.Fprintln(w)
	style := styleForVerdict(suite.Verdict)
	fmt.Fprintf(w, "%s %s\n", paint(color, ansiBold, "Run:"), suite.RunID)
	fmt.Fprintf(w, "%s %s\n", paint(color, ansiBold, "Scenario:"), suite.ScenarioName)
	fmt.Fprintf(w, "%s %s  %s %s\n",
		paint(color, ansiBold, "Model:"), suite.Model,
		paint(color, ansiBold, "Adapter:"), suite.Adapter)
	fmt.Fprintf(w, "%s %s\n", paint(color, ansiBold, "Verdict:"), paint(color, ansiBold+style.color, style.symbol))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  %s\t%d/%d passed (%.0f%%)\n",
		paint(color, ansiBold, "Trials"), suite.TrialsPassed, suite.TrialsTotal, suite.PassRate*100)
	fmt.Fprintf(tw, "  %s\tavg=%.2f min=%.2f p50=%.2f p95=%.2f\n",
		paint(color, ansiBold, "Score"), suite.ScoreAvg, suite.ScoreMin, suite.ScoreP50, suite.ScoreP95)
	if suite.CostTotal != nil {
		cost := fmt.Sprintf("total=$%.4f", *suite.CostTotal)
		if suite.CostAvgPerTrial != nil {
			cost += fmt.Sprintf(" avg=$%.4f/trial", *suite.CostAvgPerTrial)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", paint(color, ansiBold, "Cost"), cost)
	}
	if suite.LatencyP50 != nil && suite.LatencyP95 != nil {
		fmt.Fprintf(tw, "  %s\tp50=%.2fs p95=%.2fs\n",
			paint(color, ansiBold, "Latency"), *suite.LatencyP50, *suite.LatencyP95)
	}
	tw.Flush()
	fmt.Fprintln(w)

	fmt.Fprintln(w, paint(color, ansiBold, "Per-Trial Breakdown"))
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  Trial#\tStatus\tScore\tLatency\tCost\tRetries")
	for _, trial := range suite.Trials {
		cost := "-"
		if trial.CostUSD != nil {
			cost = fmt.Sprintf("$%.4f", *trial.CostUSD)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%.2f\t%.2fs\t%s\t%d\n",
			trial.TrialNumber, trial.Status, trial.Score, trial.LatencySeconds, cost, trial.RetriesUsed)
	}
	tw.Flush()
	fmt.Fprintln(w)

	if len(suite.AssertionFailures) > 0 {
		failures := suite.AssertionFailures
		if failuresOnly {
			var kept []models.AssertionFailure
			for _, f := range failures {
				if f.FailCount > 0 {
					kept = append(kept, f)
				}
			}
			failures = kept
		}
		if len(failures) > 0 {
			fmt.Fprintln(w, paint(color, ansiBold, "Assertion Failures"))
			for i, f := range failures {
				avgWeight := 0.0
				if f.FailCount > 0 {
					avgWeight = f.TotalWeightLost / float64(f.FailCount)
				}
				fmt.Fprintf(w, "  %d. %s: %s -- failed %dx, weight impact: %.2f\n",
					i+1, f.AssertionType, f.Expression, f.FailCount, avgWeight)
			}
			fmt.Fprintln(w)
		}
	} else if !failuresOnly {
		fmt.Fprintln(w, paint(color, ansiDim, "No assertion failures."))
		fmt.Fprintln(w)
	}
}

// shortID abbreviates a run ID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
