package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jherleth/salvo-ai/internal/evaluation/judge"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// ANSI escape codes, applied only when the target stream is a terminal.
const (
	ansiReset     = "\x1b[0m"
	ansiBold      = "\x1b[1m"
	ansiDim       = "\x1b[2m"
	ansiRed       = "\x1b[31m"
	ansiGreen     = "\x1b[32m"
	ansiYellow    = "\x1b[33m"
	ansiMagenta   = "\x1b[35m"
	ansiBrightRed = "\x1b[91m"
)

type verdictStyle struct {
	symbol string
	color  string
}

// verdictStyles maps each verdict to its display symbol and color.
// Exit-code mapping lives in commands_run.go; this is display only.
var verdictStyles = map[models.Verdict]verdictStyle{
	models.VerdictPass:       {"✓ PASS", ansiGreen},
	models.VerdictFail:       {"✗ FAIL", ansiRed},
	models.VerdictHardFail:   {"! HARD FAIL", ansiBrightRed},
	models.VerdictPartial:    {"~ PARTIAL", ansiYellow},
	models.VerdictInfraError: {"! INFRA ERROR", ansiBrightRed},
}

func styleForVerdict(v models.Verdict) verdictStyle {
	if s, ok := verdictStyles[v]; ok {
		return s
	}
	return verdictStyle{"✗ UNKNOWN", ansiRed}
}

// paint wraps s in an ANSI code when color output is enabled.
func paint(enabled bool, code, s string) string {
	if !enabled || code == "" {
		return s
	}
	return code + s + ansiReset
}

// renderHeadline writes the compact key-value verdict block for a suite:
// verdict, trial counts, score stats, and optional judge/failure/latency/
// cost/retry/infra rows.
func renderHeadline(w io.Writer, suite *models.TrialSuiteResult, color bool) {
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	row := func(key, value string) {
		fmt.Fprintf(tw, "  %s\t%s\n", paint(color, ansiBold, key), value)
	}

	style := styleForVerdict(suite.Verdict)
	row("Verdict", paint(color, ansiBold+style.color, style.symbol))

	row("Trials", fmt.Sprintf("%d/%d passed (%.0f%%)",
		suite.TrialsPassed, suite.TrialsTotal, suite.PassRate*100))

	row("Score", fmt.Sprintf("avg=%.2f min=%.2f p50=%.2f p95=%.2f (threshold=%.2f)",
		suite.ScoreAvg, suite.ScoreMin, suite.ScoreP50, suite.ScoreP95, suite.Threshold))

	if meta := firstJudgeMetadata(suite); meta != nil {
		row("Judge", fmt.Sprintf("model=%s k=%s",
			metaString(meta, "judge_model", "unknown"),
			metaString(meta, "judge_k", "?")))
	}

	if suite.TrialsHardFail > 0 || suite.TrialsFailed > 0 {
		row("Failures", fmt.Sprintf("%d hard fail, %d soft fail",
			suite.TrialsHardFail, suite.TrialsFailed))
	}

	if suite.LatencyP50 != nil && suite.LatencyP95 != nil {
		row("Latency", fmt.Sprintf("p50=%.2fs p95=%.2fs", *suite.LatencyP50, *suite.LatencyP95))
	}

	if suite.CostTotal != nil && suite.CostAvgPerTrial != nil {
		agentCost := *suite.CostTotal
		judgeCost := 0.0
		if suite.JudgeCostTotal != nil {
			judgeCost = *suite.JudgeCostTotal
		}
		if judgeCost > 0 {
			row("Cost", fmt.Sprintf("total=$%.4f (agent=$%.4f + judge=$%.4f) avg=$%.4f/trial",
				agentCost+judgeCost, agentCost, judgeCost, *suite.CostAvgPerTrial))
		} else {
			row("Cost", fmt.Sprintf("total=$%.4f avg=$%.4f/trial", agentCost, *suite.CostAvgPerTrial))
		}
	}

	if suite.TotalRetries > 0 {
		row("Retries", fmt.Sprintf("%d retries across %d trials",
			suite.TotalRetries, suite.TrialsWithRetries))
	}

	if suite.TrialsInfraError > 0 {
		row("Infra errors", fmt.Sprintf("%d trial(s) (excluded from score)", suite.TrialsInfraError))
	}

	if suite.EarlyStopped {
		row("Status", fmt.Sprintf("FAIL (early stop after %d/%d trials)",
			suite.TrialsTotal, suite.NRequested))
	}

	tw.Flush()
}

// renderDetails writes the failure-analysis sections: top offenders,
// per-trial scores, latency distribution, cost breakdown, judge criteria,
// and sample failure details.
func renderDetails(w io.Writer, suite *models.TrialSuiteResult, color bool) {
	fmt.Fprintln(w)

	if len(suite.AssertionFailures) > 0 {
		fmt.Fprintln(w, paint(color, ansiBold, "Top Offenders"))
		top := suite.AssertionFailures
		if len(top) > 5 {
			top = top[:5]
		}
		for i, f := range top {
			avgWeightLost := 0.0
			if f.FailCount > 0 {
				avgWeightLost = f.TotalWeightLost / float64(f.FailCount)
			}
			fmt.Fprintf(w, "  %d. %s: %s -- failed %d/%d (%.0f%%), weight impact: %.2f\n",
				i+1, f.AssertionType, f.Expression,
				f.FailCount, suite.TrialsTotal, f.FailRate*100, avgWeightLost)
		}
		fmt.Fprintln(w)
	}

	var scores []string
	for _, t := range suite.Trials {
		if t.Status != models.TrialInfraError {
			scores = append(scores, fmt.Sprintf("%.1f", t.Score))
		}
	}
	if len(scores) > 0 {
		fmt.Fprintf(w, "%s %s\n\n", paint(color, ansiBold, "Scores:"), strings.Join(scores, ", "))
	}

	if len(suite.Trials) > 0 {
		latMin := suite.Trials[0].LatencySeconds
		latMax := latMin
		for _, t := range suite.Trials[1:] {
			latMin = math.Min(latMin, t.LatencySeconds)
			latMax = math.Max(latMax, t.LatencySeconds)
		}
		latP50, latP95 := latMin, latMax
		if suite.LatencyP50 != nil {
			latP50 = *suite.LatencyP50
		}
		if suite.LatencyP95 != nil {
			latP95 = *suite.LatencyP95
		}
		fmt.Fprintf(w, "%s min=%.2fs p50=%.2fs p95=%.2fs max=%.2fs\n\n",
			paint(color, ansiBold, "Latency:"), latMin, latP50, latP95, latMax)
	}

	if suite.CostTotal != nil {
		var costs []float64
		for _, t := range suite.Trials {
			if t.CostUSD != nil {
				costs = append(costs, *t.CostUSD)
			}
		}
		if len(costs) > 0 {
			costMin, costMax := costs[0], costs[0]
			for _, c := range costs[1:] {
				costMin = math.Min(costMin, c)
				costMax = math.Max(costMax, c)
			}
			costAvg := 0.0
			if suite.CostAvgPerTrial != nil {
				costAvg = *suite.CostAvgPerTrial
			}
			line := fmt.Sprintf("total=$%.4f min=$%.4f max=$%.4f avg=$%.4f/trial",
				*suite.CostTotal, costMin, costMax, costAvg)
			if suite.JudgeCostTotal != nil && *suite.JudgeCostTotal > 0 {
				line += fmt.Sprintf(" (agent=$%.4f + judge=$%.4f)", *suite.CostTotal, *suite.JudgeCostTotal)
			}
			fmt.Fprintf(w, "%s %s\n\n", paint(color, ansiBold, "Cost:"), line)
		}
	}

	if criteria := firstJudgeCriteria(suite); len(criteria) > 0 {
		fmt.Fprintln(w, paint(color, ansiBold, "Judge Criteria"))
		for _, c := range criteria {
			code := ansiRed
			switch {
			case c.MedianScore >= 0.7:
				code = ansiGreen
			case c.MedianScore >= 0.4:
				code = ansiYellow
			}
			parts := make([]string, 0, len(c.AllScores))
			for _, s := range c.AllScores {
				parts = append(parts, fmt.Sprintf("%.2f", s))
			}
			fmt.Fprintf(w, "  %s: median=%.2f scores=[%s] weight=%.1f\n",
				paint(color, code, c.Name), c.MedianScore, strings.Join(parts, ", "), c.Weight)
		}
		fmt.Fprintln(w)
	}

	if len(suite.AssertionFailures) > 0 {
		samples := suite.AssertionFailures[0].SampleDetails
		if len(samples) > 0 {
			fmt.Fprintln(w, paint(color, ansiBold, "Sample Failures"))
			if len(samples) > 3 {
				samples = samples[:3]
			}
			for j, detail := range samples {
				fmt.Fprintf(w, "  %d. %s\n", j+1, truncate(detail, 200))
			}
			fmt.Fprintln(w)
		}
	}
}

// outputJSON writes the suite as indented JSON with no decoration, for
// CI pipelines and machine parsing.
func outputJSON(w io.Writer, suite *models.TrialSuiteResult) error {
	data, err := json.MarshalIndent(suite, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal suite result: %w", err)
	}
	fmt.Fprintf(w, "%s\n", data)
	return nil
}

// firstJudgeMetadata returns the metadata of the first judge eval result,
// or nil when the run had no judge assertions.
func firstJudgeMetadata(suite *models.TrialSuiteResult) map[string]any {
	for _, trial := range suite.Trials {
		for _, er := range trial.EvalResults {
			if er.AssertionType == "judge" && len(er.Metadata) > 0 {
				return er.Metadata
			}
		}
	}
	return nil
}

func firstJudgeCriteria(suite *models.TrialSuiteResult) []judge.CriterionScore {
	for _, trial := range suite.Trials {
		for _, er := range trial.EvalResults {
			if er.AssertionType != "judge" || er.Metadata == nil {
				continue
			}
			if cs := criteriaFromMetadata(er.Metadata["per_criterion"]); len(cs) > 0 {
				return cs
			}
		}
	}
	return nil
}

// criteriaFromMetadata accepts both the in-memory judge aggregation slice
// and the generic maps a JSON round-trip turns it into.
func criteriaFromMetadata(v any) []judge.CriterionScore {
	switch x := v.(type) {
	case []judge.CriterionScore:
		return x
	case []any:
		out := make([]judge.CriterionScore, 0, len(x))
		for _, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			cs := judge.CriterionScore{Weight: 1.0}
			if s, ok := m["name"].(string); ok {
				cs.Name = s
			}
			if f, ok := toFloat(m["median_score"]); ok {
				cs.MedianScore = f
			}
			if f, ok := toFloat(m["weight"]); ok {
				cs.Weight = f
			}
			if scores, ok := m["all_scores"].([]any); ok {
				for _, s := range scores {
					if f, ok := toFloat(s); ok {
						cs.AllScores = append(cs.AllScores, f)
					}
				}
			}
			out = append(out, cs)
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// metaString renders a metadata value for display. Numbers that survived a
// JSON round-trip arrive as float64; integral ones print without a decimal.
func metaString(m map[string]any, key, fallback string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) {
			return strconv.Itoa(int(x))
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// truncate caps s at max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// printProgress rewrites a single in-place progress line on the terminal.
func printProgress(w io.Writer, completed, total int) {
	fmt.Fprintf(w, "\rRunning trials %d/%d", completed, total)
}

// clearProgress erases the in-place progress line.
func clearProgress(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[2K")
}
