package judge

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/pkg/models"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

// ExtractScores pulls per-criterion scores out of a judge response. Tool
// call arguments win; text-embedded JSON is the fallback. The result must
// name at least one expected criterion, otherwise nil is returned and the
// vote counts as a parse failure.
func ExtractScores(result *adapters.TurnResult, criteria []models.Criterion) map[string]any {
	if result == nil {
		return nil
	}

	if len(result.ToolCalls) > 0 {
		if vote := extractFromToolCalls(result.ToolCalls); vote != nil {
			if namesAnyCriterion(vote, criteria) {
				return vote
			}
		}
	}

	if result.Content != nil && *result.Content != "" {
		if vote := ExtractJSONFromText(*result.Content); vote != nil {
			if namesAnyCriterion(vote, criteria) {
				return vote
			}
		}
	}

	return nil
}

// extractFromToolCalls finds the scoring tool call and returns its
// arguments with every criterion score clamped to [0, 1].
func extractFromToolCalls(calls []adapters.ToolCall) map[string]any {
	for _, tc := range calls {
		if tc.Name != ScoringToolName || tc.Arguments == nil {
			continue
		}
		return clampScores(tc.Arguments)
	}
	return nil
}

// ExtractJSONFromText recovers a JSON object from free text. Three
// strategies in order: parse the whole text, slice from the first '{' to
// the last '}', and finally a fenced ```json block.
func ExtractJSONFromText(text string) map[string]any {
	if text == "" {
		return nil
	}

	if obj := parseJSONObject(text); obj != nil {
		return obj
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		if obj := parseJSONObject(text[first : last+1]); obj != nil {
			return obj
		}
	}

	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		if obj := parseJSONObject(match[1]); obj != nil {
			return obj
		}
	}

	return nil
}

func parseJSONObject(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil
	}
	return obj
}

func namesAnyCriterion(vote map[string]any, criteria []models.Criterion) bool {
	for _, c := range criteria {
		if _, ok := vote[c.Name]; ok {
			return true
		}
	}
	return false
}

// clampScores copies the vote, clamping each nested numeric score to
// [0, 1]. Non-score entries pass through untouched.
func clampScores(args map[string]any) map[string]any {
	vote := make(map[string]any, len(args))
	for key, val := range args {
		entry, ok := val.(map[string]any)
		if !ok {
			vote[key] = val
			continue
		}
		score, ok := numericScore(entry["score"])
		if !ok {
			vote[key] = val
			continue
		}
		cloned := make(map[string]any, len(entry))
		for k, v := range entry {
			cloned[k] = v
		}
		cloned["score"] = clamp01(score)
		vote[key] = cloned
	}
	return vote
}

func numericScore(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
