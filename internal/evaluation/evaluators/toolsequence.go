package evaluators

import (
	"context"
	"fmt"
	"strings"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// ToolSequenceEvaluator validates the order and multiplicity of tool calls.
// Three modes: exact (same calls, same order), in_order (expected is a
// subsequence of actual), any_order (every expected call present, counted).
type ToolSequenceEvaluator struct{}

func (ToolSequenceEvaluator) Evaluate(_ context.Context, trace *models.RunTrace, assertion models.Assertion) (models.EvalResult, error) {
	weight := assertionWeight(assertion)
	mode := strings.ToLower(assertion.Mode)
	expected := assertion.Sequence

	actual := make([]string, 0, len(trace.ToolCallsMade))
	for _, tc := range trace.ToolCallsMade {
		actual = append(actual, tc.Name)
	}

	var passed bool
	var details string
	switch mode {
	case "exact":
		passed, details = matchExact(actual, expected)
	case "in_order":
		passed, details = matchInOrder(actual, expected)
	case "any_order":
		passed, details = matchAnyOrder(actual, expected)
	default:
		return models.EvalResult{
			AssertionType: "tool_sequence",
			Weight:        weight,
			Required:      assertion.Required,
			Details:       fmt.Sprintf("Unknown mode %q. Available: any_order, exact, in_order", mode),
		}, nil
	}

	return models.EvalResult{
		AssertionType: "tool_sequence",
		Score:         boolScore(passed),
		Passed:        passed,
		Weight:        weight,
		Required:      assertion.Required,
		Details:       details,
	}, nil
}

// matchExact requires actual == expected. On failure the details pinpoint
// the first divergence or the length mismatch.
func matchExact(actual, expected []string) (bool, string) {
	if len(actual) == 0 && len(expected) > 0 {
		return false, fmt.Sprintf("No tool calls made -- expected %v", expected)
	}

	for i := 0; i < len(actual) && i < len(expected); i++ {
		if actual[i] != expected[i] {
			return false, fmt.Sprintf(
				"Divergence at position %d: expected %q but got %q. Actual: %v, Expected: %v",
				i, expected[i], actual[i], actual, expected)
		}
	}

	if len(actual) < len(expected) {
		return false, fmt.Sprintf(
			"Too few tool calls: got %d, expected %d. Missing: %v",
			len(actual), len(expected), expected[len(actual):])
	}
	if len(actual) > len(expected) {
		return false, fmt.Sprintf(
			"Too many tool calls: got %d, expected %d. Extra: %v",
			len(actual), len(expected), actual[len(expected):])
	}

	return true, fmt.Sprintf("Exact match: %v", actual)
}

// matchInOrder requires expected to be a subsequence of actual, gaps
// allowed. A linear scan advances one pointer into expected.
func matchInOrder(actual, expected []string) (bool, string) {
	if len(actual) == 0 && len(expected) > 0 {
		return false, fmt.Sprintf("No tool calls made -- expected %v", expected)
	}

	ei := 0
	for _, a := range actual {
		if ei < len(expected) && a == expected[ei] {
			ei++
		}
	}
	if ei == len(expected) {
		return true, fmt.Sprintf("In-order match: found %v within %v", expected, actual)
	}

	return false, fmt.Sprintf(
		"In-order match stalled: matched %v but could not find %q (expected[%d]) in remaining actual calls. Actual: %v, Expected: %v",
		expected[:ei], expected[ei], ei, actual, expected)
}

// matchAnyOrder requires every expected call to be present with at least
// the expected multiplicity. Extra calls are allowed.
func matchAnyOrder(actual, expected []string) (bool, string) {
	if len(actual) == 0 && len(expected) > 0 {
		return false, fmt.Sprintf("No tool calls made -- expected %v", expected)
	}

	actualCounts := make(map[string]int, len(actual))
	for _, name := range actual {
		actualCounts[name]++
	}

	expectedCounts := make(map[string]int, len(expected))
	var order []string
	for _, name := range expected {
		if _, seen := expectedCounts[name]; !seen {
			order = append(order, name)
		}
		expectedCounts[name]++
	}

	var missing []string
	for _, name := range order {
		want := expectedCounts[name]
		got := actualCounts[name]
		if got < want {
			missing = append(missing, fmt.Sprintf("%q (expected %d, got %d)", name, want, got))
		}
	}

	if len(missing) > 0 {
		return false, fmt.Sprintf("Missing tool calls: %s", strings.Join(missing, ", "))
	}
	return true, fmt.Sprintf("Any-order match: all %v found in %v", expected, actual)
}
