package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/internal/evaluation"
	"github.com/jherleth/salvo-ai/internal/evaluation/evaluators"
	"github.com/jherleth/salvo-ai/internal/execution"
	"github.com/jherleth/salvo-ai/internal/loader"
	"github.com/jherleth/salvo-ai/internal/recording"
	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/pkg/models"
)

const reevalBanner = "══════════ [RE-EVAL] ══════════"

// contentDependentTypes are assertion types that read message content and
// therefore cannot run against a metadata_only recording.
var contentDependentTypes = map[string]bool{
	"jmespath": true,
	"judge":    true,
}

type reevalOptions struct {
	scenarioPath       string
	allowPartialReeval bool
	strictScenario     bool
}

func buildReevalCmd() *cobra.Command {
	var opts reevalOptions
	cmd := &cobra.Command{
		Use:   "reeval <trace-id>",
		Short: "Re-evaluate a recorded trace with original or updated assertions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReeval(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.scenarioPath, "scenario", "s", "",
		"Path to updated scenario YAML (default: use original snapshot)")
	cmd.Flags().BoolVar(&opts.allowPartialReeval, "allow-partial-reeval", false,
		"Skip incompatible assertions on metadata_only traces instead of failing")
	cmd.Flags().BoolVar(&opts.strictScenario, "strict-scenario", false,
		"Fail if the scenario has changed since the trace was recorded")
	return cmd
}

func runReeval(ctx context.Context, traceID string, opts reevalOptions) error {
	stdout := os.Stdout
	color := term.IsTerminal(int(stdout.Fd()))

	projectRoot := models.FindProjectRoot("")
	projectConfig, err := models.LoadProjectConfig(projectRoot)
	if err != nil {
		return err
	}
	store := storage.NewStore(projectRoot, projectConfig.StorageDir)

	recorded, err := store.LoadRecordedTrace(traceID)
	if err != nil {
		return err
	}
	if recorded == nil {
		fmt.Fprintf(stdout, "Error: No recorded trace found for '%s'\n", traceID)
		return exitWithCode(1)
	}
	if err := recording.ValidateTraceVersion(recorded.Metadata); err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return exitWithCode(1)
	}

	fmt.Fprintf(stdout, "\n%s\n\n", paint(color, ansiBold, reevalBanner))
	fmt.Fprintf(stdout, "Re-evaluating trace: %s\n", traceID)
	fmt.Fprintf(stdout, "Original run: %s\n", recorded.Metadata.SourceRunID)

	// Scenario: updated file when given, otherwise the recorded snapshot.
	var scenario *models.Scenario
	if opts.scenarioPath != "" {
		s, details, err := loader.ValidateScenarioFile(opts.scenarioPath)
		if err != nil {
			fmt.Fprintf(stdout, "Error: %v\n", err)
			return exitWithCode(1)
		}
		if len(details) > 0 {
			fmt.Fprintln(stdout, "Scenario validation errors:")
			for _, d := range details {
				loc := ""
				if d.Line > 0 {
					loc = fmt.Sprintf(" (line %d)", d.Line)
				}
				fmt.Fprintf(stdout, "  %s: %s%s\n", d.Field, d.Message, loc)
			}
			return exitWithCode(1)
		}
		scenario = s
	} else {
		var snap models.Scenario
		if err := json.Unmarshal(recorded.ScenarioSnapshot, &snap); err != nil {
			fmt.Fprintf(stdout, "Error: corrupt scenario snapshot: %v\n", err)
			return exitWithCode(1)
		}
		snap.ApplyDefaults()
		scenario = &snap
		fmt.Fprintln(stdout, paint(color, ansiDim, "Using original scenario snapshot"))
	}

	// Drift detection applies only to a supplied scenario file; the
	// snapshot hashes identical by construction.
	if opts.scenarioPath != "" {
		canonical, err := scenario.CanonicalJSON()
		if err != nil {
			return err
		}
		sum := sha256.Sum256(canonical)
		currentHash := hex.EncodeToString(sum[:])
		recordedHash := recorded.Metadata.ScenarioHash
		if currentHash != recordedHash {
			if opts.strictScenario {
				fmt.Fprintf(stdout, "Error: Scenario hash mismatch. The scenario has changed since the trace was recorded.\n")
				fmt.Fprintf(stdout, "  Recorded: %s...\n", shortHash(recordedHash))
				fmt.Fprintf(stdout, "  Current:  %s...\n", shortHash(currentHash))
				fmt.Fprintln(stdout, "Remove --strict-scenario to proceed with warnings.")
				return exitWithCode(1)
			}
			fmt.Fprintln(stdout, paint(color, ansiYellow,
				fmt.Sprintf("Warning: Scenario has changed since trace was recorded (recorded=%s..., current=%s...)",
					shortHash(recordedHash), shortHash(currentHash))))
		}
	}

	normalized, err := evaluation.NormalizeAssertions(scenario.Assertions)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return exitWithCode(1)
	}

	// metadata_only recordings have no message content; assertions that
	// read it either abort the reeval or get skipped explicitly.
	assertionsSkipped := 0
	metadataOnly := recorded.Metadata.RecordingMode == models.RecordingModeMetadataOnly
	if metadataOnly {
		var contentDependent, nonContent []models.Assertion
		for _, a := range normalized {
			if contentDependentTypes[a.Type] {
				contentDependent = append(contentDependent, a)
			} else {
				nonContent = append(nonContent, a)
			}
		}

		if len(contentDependent) == len(normalized) {
			fmt.Fprintln(stdout, "Error: All assertions require message content, which is unavailable in metadata_only mode. Re-evaluation not possible.")
			return exitWithCode(1)
		}
		if len(contentDependent) > 0 {
			if !opts.allowPartialReeval {
				fmt.Fprintf(stdout, "Error: %d assertion(s) require message content unavailable in metadata_only mode. Use --allow-partial-reeval to skip them.\n",
					len(contentDependent))
				return exitWithCode(1)
			}
			assertionsSkipped = len(contentDependent)
			fmt.Fprintln(stdout, paint(color, ansiYellow,
				fmt.Sprintf("Warning: %d assertion(s) skipped (require message content unavailable in metadata_only mode)",
					assertionsSkipped)))
			normalized = nonContent
		}
	}

	evalOpts := evaluators.Options{
		Scenario:     scenario,
		JudgeConfig:  &projectConfig.Judge,
		NewAdapter:   adapters.New,
		EstimateCost: execution.EstimateCost,
	}
	evalResults, score, passed, err := evaluation.EvaluateTrace(ctx, &recorded.Trace, normalized, scenario.Threshold, evalOpts)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return exitWithCode(1)
	}

	scenarioName := scenario.Description
	if scenarioName == "" {
		scenarioName = recorded.Metadata.ScenarioName
	}
	result := &models.RevalResult{
		ReevalID:          newReevalID(),
		OriginalTraceID:   traceID,
		ScenarioName:      scenarioName,
		ScenarioFile:      opts.scenarioPath,
		EvalResults:       evalResults,
		Score:             score,
		Passed:            passed,
		Threshold:         scenario.Threshold,
		EvaluatedAt:       time.Now().UTC(),
		AssertionsUsed:    len(normalized),
		AssertionsSkipped: assertionsSkipped,
	}

	renderReevalResult(stdout, result, traceID, color)

	if err := store.SaveRevalResult(result); err != nil {
		return err
	}
	fmt.Fprintln(stdout, paint(color, ansiDim, "Re-evaluation saved: "+result.ReevalID))

	if !passed {
		return exitWithCode(1)
	}
	return nil
}

func renderReevalResult(w io.Writer, result *models.RevalResult, traceID string, color bool) {
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(key, value string) {
		fmt.Fprintf(tw, "  %s\t%s\n", paint(color, ansiBold, key), value)
	}
	if result.Passed {
		row("Result", paint(color, ansiBold+ansiGreen, "PASS"))
	} else {
		row("Result", paint(color, ansiBold+ansiRed, "FAIL"))
	}
	row("Score", fmt.Sprintf("%.2f (threshold=%.2f)", result.Score, result.Threshold))
	row("Assertions", fmt.Sprintf("%d evaluated, %d skipped", result.AssertionsUsed, result.AssertionsSkipped))
	row("Original trace", traceID)
	row("Re-eval ID", result.ReevalID)
	tw.Flush()

	if len(result.EvalResults) == 0 {
		return
	}

	fmt.Fprintln(w, paint(color, ansiBold, "Per-Assertion Results"))
	ordered := make([]models.EvalResult, len(result.EvalResults))
	copy(ordered, result.EvalResults)
	sort.SliceStable(ordered, func(i, j int) bool {
		return assertionSeverity(ordered[i]) < assertionSeverity(ordered[j])
	})
	for _, er := range ordered {
		indicator := paint(color, ansiGreen, "PASS")
		if !er.Passed {
			if er.Required {
				indicator = paint(color, ansiBold+ansiRed, "HARD FAIL")
			} else {
				indicator = paint(color, ansiRed, "FAIL")
			}
		}
		fmt.Fprintf(w, "  %s %s: score=%.2f -- %s\n",
			indicator, er.AssertionType, er.Score, truncate(er.Details, 200))
	}
	fmt.Fprintln(w)
}

// assertionSeverity orders eval results hard failures first, then soft
// failures, then passes.
func assertionSeverity(er models.EvalResult) int {
	if er.Required && !er.Passed {
		return 0
	}
	if !er.Passed {
		return 1
	}
	return 2
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func newReevalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
