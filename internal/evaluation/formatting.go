package evaluation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// FormatEvalResults renders per-assertion results for the CLI: a single
// score line on pass, severity-ordered assertion lines plus a weighted
// score breakdown on failure (or always when verbose).
func FormatEvalResults(results []models.EvalResult, score, threshold float64, passed, hardFail, verbose bool) string {
	var lines []string

	switch {
	case passed:
		lines = append(lines, fmt.Sprintf("Score: %.2f (>= %.2f)  PASS", score, threshold))
	case hardFail:
		lines = append(lines, fmt.Sprintf("Score: %.2f  HARD FAIL (required assertion failed)", score))
	default:
		lines = append(lines, fmt.Sprintf("Score: %.2f (< %.2f)  FAILED", score, threshold))
	}

	showDetail := !passed || verbose
	if !showDetail || len(results) == 0 {
		return strings.Join(lines, "\n")
	}

	lines = append(lines, "")

	// Hard failures first, then soft failures, then passes.
	var ordered []models.EvalResult
	for _, r := range results {
		if r.Required && !r.Passed {
			ordered = append(ordered, r)
		}
	}
	for _, r := range results {
		if !r.Required && !r.Passed {
			ordered = append(ordered, r)
		}
	}
	for _, r := range results {
		if r.Passed {
			ordered = append(ordered, r)
		}
	}

	for _, r := range ordered {
		desc := describeAssertion(r)
		switch {
		case r.Required && !r.Passed:
			lines = append(lines, fmt.Sprintf("  HARD FAIL  [required] %s", desc))
			lines = appendFailureDetail(lines, r)
		case !r.Passed:
			lines = append(lines, fmt.Sprintf("  FAILED     %s", desc))
			lines = appendFailureDetail(lines, r)
		default:
			lines = append(lines, fmt.Sprintf("  PASS       %s", desc))
		}
	}

	lines = append(lines, "", "  Score breakdown:")
	totalWeight := 0.0
	weightedSum := 0.0
	for _, r := range ordered {
		desc := describeAssertion(r)
		product := r.Score * r.Weight
		reqTag := ""
		if r.Required {
			reqTag = "  [REQUIRED]"
		}
		lines = append(lines, fmt.Sprintf("    %s    %.1f * %.1f = %.2f%s",
			desc, r.Score, r.Weight, product, reqTag))
	}
	for _, r := range results {
		totalWeight += r.Weight
		weightedSum += r.Score * r.Weight
	}
	lines = append(lines, "    "+strings.Repeat("─", 30))
	lines = append(lines, fmt.Sprintf("    Total: %.2f / %.2f = %.2f", weightedSum, totalWeight, score))

	return strings.Join(lines, "\n")
}

// describeAssertion produces a one-line summary from a result's details.
// Path-query details are condensed to "path operator expected"; other
// types are prefixed with their type name.
func describeAssertion(r models.EvalResult) string {
	if r.AssertionType == "jmespath" {
		fields := parseDetailFields(r.Details)
		path, ok := fields["path"]
		if !ok {
			path = "?"
		}
		operator, ok := fields["operator"]
		if !ok {
			operator = "?"
		}
		expected, ok := fields["expected"]
		if !ok {
			expected = "?"
		}
		return fmt.Sprintf("%s %s %s", path, operator, expected)
	}
	return fmt.Sprintf("%s: %s", r.AssertionType, r.Details)
}

func appendFailureDetail(lines []string, r models.EvalResult) []string {
	if r.Details == "" {
		return lines
	}
	if r.AssertionType != "jmespath" {
		return append(lines, fmt.Sprintf("             %s", r.Details))
	}

	fields := parseDetailFields(r.Details)
	if v, ok := fields["expected"]; ok {
		lines = append(lines, fmt.Sprintf("             Expected: %s", v))
	}
	if v, ok := fields["actual"]; ok {
		lines = append(lines, fmt.Sprintf("             Actual: %s", v))
	}
	if v, ok := fields["path"]; ok {
		lines = append(lines, fmt.Sprintf("             Path: %s", v))
	}
	return lines
}

// parseDetailFields splits a key=value details string into a map,
// honoring double quotes so values may contain spaces. Quotes are
// stripped from the parsed values.
func parseDetailFields(details string) map[string]string {
	fields := make(map[string]string)
	for _, token := range splitQuoted(details) {
		key, value, found := strings.Cut(token, "=")
		if !found {
			continue
		}
		fields[key] = unquoteDetail(value)
	}
	return fields
}

func splitQuoted(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func unquoteDetail(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if unquoted, err := strconv.Unquote(s); err == nil {
			return unquoted
		}
	}
	return strings.Trim(s, `"'`)
}
