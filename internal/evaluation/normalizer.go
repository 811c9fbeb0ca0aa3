// Package evaluation turns raw assertions into canonical form, runs them
// against traces, and aggregates per-trial results into suite verdicts.
package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// operatorKeys are the shorthand comparison keys recognized on assertions
// that carry no explicit type. Sorted for error messages.
var operatorKeys = []string{"contains", "eq", "gt", "gte", "lt", "lte", "ne", "regex"}

// NormalizeAssertion converts shorthand and sugar-type assertions to
// canonical form. tool_called and output_contains expand to path queries;
// operator-key shorthand picks up its default path and weight. Assertions
// already carrying a non-sugar type pass through unchanged, so the
// function is idempotent.
func NormalizeAssertion(a models.Assertion) (models.Assertion, error) {
	if a.Type != "" {
		switch a.Type {
		case "tool_called":
			return expandToolCalled(a), nil
		case "output_contains":
			return expandOutputContains(a), nil
		}
		return a, nil
	}

	found := presentOperators(a)

	if len(found) > 1 {
		names := make([]string, 0, len(found))
		for name := range found {
			names = append(names, name)
		}
		sort.Strings(names)
		return models.Assertion{}, fmt.Errorf(
			"assertion has multiple operator keys: %s; use exactly one operator per assertion",
			strings.Join(names, ", "))
	}
	if len(found) == 0 {
		return models.Assertion{}, fmt.Errorf(
			"assertion has no 'type' and no operator key from %s; cannot determine assertion type",
			strings.Join(operatorKeys, ", "))
	}

	var operator string
	var value any
	for name, val := range found {
		operator, value = name, val
	}

	expression := a.Path
	if expression == "" {
		expression = "response.content"
	}

	return models.Assertion{
		Type:       "jmespath",
		Expression: expression,
		Operator:   operator,
		Value:      value,
		Weight:     defaultWeight(a.Weight),
		Required:   a.Required,
	}, nil
}

// NormalizeAssertions normalizes a scenario's assertion list, annotating
// errors with the failing assertion's index.
func NormalizeAssertions(raw []models.Assertion) ([]models.Assertion, error) {
	out := make([]models.Assertion, 0, len(raw))
	for i, a := range raw {
		normalized, err := NormalizeAssertion(a)
		if err != nil {
			return nil, fmt.Errorf("assertion %d: %w", i, err)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func expandToolCalled(a models.Assertion) models.Assertion {
	return models.Assertion{
		Type:       "jmespath",
		Expression: fmt.Sprintf("tool_calls[?name=='%s'] | [0]", a.Tool),
		Operator:   "exists",
		Weight:     defaultWeight(a.Weight),
		Required:   a.Required,
	}
}

func expandOutputContains(a models.Assertion) models.Assertion {
	return models.Assertion{
		Type:       "jmespath",
		Expression: "response.content",
		Operator:   "contains",
		Value:      a.Value,
		Weight:     defaultWeight(a.Weight),
		Required:   a.Required,
	}
}

func presentOperators(a models.Assertion) map[string]any {
	found := make(map[string]any)
	if a.Eq != nil {
		found["eq"] = a.Eq
	}
	if a.Ne != nil {
		found["ne"] = a.Ne
	}
	if a.Gt != nil {
		found["gt"] = a.Gt
	}
	if a.Gte != nil {
		found["gte"] = a.Gte
	}
	if a.Lt != nil {
		found["lt"] = a.Lt
	}
	if a.Lte != nil {
		found["lte"] = a.Lte
	}
	if a.Contains != nil {
		found["contains"] = a.Contains
	}
	if a.Regex != nil {
		found["regex"] = a.Regex
	}
	return found
}

// defaultWeight treats a zero weight as unset. An assertion whose weight
// matters always carries a positive value.
func defaultWeight(w float64) float64 {
	if w == 0 {
		return 1.0
	}
	return w
}
