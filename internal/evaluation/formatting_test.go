package evaluation

import (
	"strings"
	"testing"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func TestFormatEvalResultsPassSingleLine(t *testing.T) {
	results := []models.EvalResult{
		{AssertionType: "jmespath", Passed: true, Score: 1, Weight: 1},
	}

	out := FormatEvalResults(results, 0.95, 0.8, true, false, false)
	if out != "Score: 0.95 (>= 0.80)  PASS" {
		t.Errorf("pass output = %q", out)
	}
}

func TestFormatEvalResultsFailedHeader(t *testing.T) {
	out := FormatEvalResults(nil, 0.5, 0.8, false, false, false)
	if out != "Score: 0.50 (< 0.80)  FAILED" {
		t.Errorf("failed output = %q", out)
	}
}

func TestFormatEvalResultsHardFailDetail(t *testing.T) {
	results := []models.EvalResult{
		{
			AssertionType: "cost_limit",
			Passed:        true,
			Score:         1,
			Weight:        1,
			Details:       "Cost $0.0100 vs limit $0.0500",
		},
		{
			AssertionType: "jmespath",
			Passed:        false,
			Score:         0,
			Weight:        1,
			Details:       `path="metadata.provider" operator=eq expected="anthropic" actual="openai"`,
		},
		{
			AssertionType: "tool_sequence",
			Passed:        false,
			Required:      true,
			Score:         0,
			Weight:        2,
			Details:       "Divergence at position 0",
		},
	}

	out := FormatEvalResults(results, 0.25, 0.8, false, true, false)
	want := strings.Join([]string{
		"Score: 0.25  HARD FAIL (required assertion failed)",
		"",
		"  HARD FAIL  [required] tool_sequence: Divergence at position 0",
		"             Divergence at position 0",
		"  FAILED     metadata.provider eq anthropic",
		"             Expected: anthropic",
		"             Actual: openai",
		"             Path: metadata.provider",
		"  PASS       cost_limit: Cost $0.0100 vs limit $0.0500",
		"",
		"  Score breakdown:",
		"    tool_sequence: Divergence at position 0    0.0 * 2.0 = 0.00  [REQUIRED]",
		"    metadata.provider eq anthropic    0.0 * 1.0 = 0.00",
		"    cost_limit: Cost $0.0100 vs limit $0.0500    1.0 * 1.0 = 1.00",
		"    " + strings.Repeat("─", 30),
		"    Total: 1.00 / 4.00 = 0.25",
	}, "\n")
	if out != want {
		t.Errorf("hard fail output mismatch:\ngot:\n%s\nwant:\n%s", out, want)
	}
}

func TestFormatEvalResultsVerboseShowsDetailOnPass(t *testing.T) {
	results := []models.EvalResult{
		{AssertionType: "latency_limit", Passed: true, Score: 1, Weight: 1,
			Details: "Latency 1.200s vs limit 3.000s"},
	}

	out := FormatEvalResults(results, 1.0, 0.8, true, false, true)
	if !strings.Contains(out, "  PASS       latency_limit: Latency 1.200s vs limit 3.000s") {
		t.Errorf("verbose pass missing detail lines:\n%s", out)
	}
	if !strings.Contains(out, "  Score breakdown:") {
		t.Errorf("verbose pass missing breakdown:\n%s", out)
	}
	if !strings.Contains(out, "    Total: 1.00 / 1.00 = 1.00") {
		t.Errorf("verbose pass missing total:\n%s", out)
	}
}

func TestFormatEvalResultsSeverityOrdering(t *testing.T) {
	results := []models.EvalResult{
		{AssertionType: "judge", Passed: true, Score: 1, Weight: 1, Details: "ok"},
		{AssertionType: "cost_limit", Passed: false, Score: 0, Weight: 1, Details: "over"},
		{AssertionType: "tool_sequence", Passed: false, Required: true, Score: 0, Weight: 1, Details: "bad"},
	}

	out := FormatEvalResults(results, 0.33, 0.8, false, true, false)
	hard := strings.Index(out, "HARD FAIL  [required]")
	soft := strings.Index(out, "FAILED     cost_limit")
	pass := strings.Index(out, "PASS       judge")
	if hard == -1 || soft == -1 || pass == -1 {
		t.Fatalf("missing severity lines:\n%s", out)
	}
	if !(hard < soft && soft < pass) {
		t.Errorf("severity order wrong (hard=%d soft=%d pass=%d):\n%s", hard, soft, pass, out)
	}
}

func TestFormatEvalResultsEmptyResultsNoDetail(t *testing.T) {
	out := FormatEvalResults(nil, 1.0, 0.8, true, false, true)
	if out != "Score: 1.00 (>= 0.80)  PASS" {
		t.Errorf("empty verbose output = %q", out)
	}
}

func TestParseDetailFieldsQuotedValues(t *testing.T) {
	fields := parseDetailFields(`path="a.b c" operator=eq expected="two words" actual=3`)

	want := map[string]string{
		"path":     "a.b c",
		"operator": "eq",
		"expected": "two words",
		"actual":   "3",
	}
	for key, val := range want {
		if fields[key] != val {
			t.Errorf("fields[%q] = %q, want %q", key, fields[key], val)
		}
	}
}

func TestParseDetailFieldsEscapedQuote(t *testing.T) {
	fields := parseDetailFields(`expected="say \"hi\"" actual="said hi"`)
	if fields["expected"] != `say "hi"` {
		t.Errorf("expected = %q", fields["expected"])
	}
	if fields["actual"] != "said hi" {
		t.Errorf("actual = %q", fields["actual"])
	}
}

func TestDescribeAssertionFallbackFields(t *testing.T) {
	r := models.EvalResult{AssertionType: "jmespath", Details: "JMESPath parse error: oops"}
	if got := describeAssertion(r); got != "? ? ?" {
		t.Errorf("describeAssertion with unparseable details = %q", got)
	}
}
