package evaluators

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// PathQueryEvaluator runs JMESPath expressions against the trace document
// and compares the result with one of eight operators. Parse errors become
// failed results, never evaluation errors.
type PathQueryEvaluator struct{}

func (PathQueryEvaluator) Evaluate(_ context.Context, trace *models.RunTrace, assertion models.Assertion) (models.EvalResult, error) {
	weight := assertionWeight(assertion)

	compiled, err := jmespath.Compile(assertion.Expression)
	if err != nil {
		return models.EvalResult{
			AssertionType: "jmespath",
			Weight:        weight,
			Required:      assertion.Required,
			Details:       fmt.Sprintf("JMESPath parse error: %v", err),
		}, nil
	}

	data := BuildTraceData(trace)
	actual, err := compiled.Search(data)
	if err != nil {
		return models.EvalResult{
			AssertionType: "jmespath",
			Weight:        weight,
			Required:      assertion.Required,
			Details:       fmt.Sprintf("JMESPath error: %v", err),
		}, nil
	}

	passed := compare(actual, assertion.Operator, assertion.Value)

	details := fmt.Sprintf("path=%q operator=%s expected=%s actual=%s",
		assertion.Expression, assertion.Operator,
		formatValue(assertion.Value), formatValue(actual))

	return models.EvalResult{
		AssertionType: "jmespath",
		Score:         boolScore(passed),
		Passed:        passed,
		Weight:        weight,
		Required:      assertion.Required,
		Details:       details,
	}, nil
}

// BuildTraceData converts a trace into the JSON-shaped document that
// expressions query:
//
//	response   {content, finish_reason}
//	turns      [{role, content, tool_calls?, tool_call_id?, tool_name?}]
//	tool_calls [{id?, name, arguments}]
//	metadata   {model, provider, cost_usd, latency_seconds, input_tokens,
//	            output_tokens, total_tokens, turn_count, finish_reason}
//
// Numbers are float64 throughout so comparisons inside expressions work.
func BuildTraceData(trace *models.RunTrace) map[string]any {
	turns := make([]any, 0, len(trace.Messages))
	for _, msg := range trace.Messages {
		turn := map[string]any{
			"role":    msg.Role,
			"content": optionalString(msg.Content),
		}
		if msg.ToolCalls != nil {
			turn["tool_calls"] = toolCallDocs(msg.ToolCalls)
		}
		if msg.ToolCallID != "" {
			turn["tool_call_id"] = msg.ToolCallID
		}
		if msg.ToolName != "" {
			turn["tool_name"] = msg.ToolName
		}
		turns = append(turns, turn)
	}

	var costUSD any
	if trace.CostUSD != nil {
		costUSD = *trace.CostUSD
	}

	return map[string]any{
		"response": map[string]any{
			"content":       optionalString(trace.FinalContent),
			"finish_reason": trace.FinishReason,
		},
		"turns":      turns,
		"tool_calls": toolCallDocs(trace.ToolCallsMade),
		"metadata": map[string]any{
			"model":           trace.Model,
			"provider":        trace.Provider,
			"cost_usd":        costUSD,
			"latency_seconds": trace.LatencySeconds,
			"input_tokens":    float64(trace.InputTokens),
			"output_tokens":   float64(trace.OutputTokens),
			"total_tokens":    float64(trace.TotalTokens),
			"turn_count":      float64(trace.TurnCount),
			"finish_reason":   trace.FinishReason,
		},
	}
}

func toolCallDocs(calls []models.TraceToolCall) []any {
	docs := make([]any, 0, len(calls))
	for _, tc := range calls {
		if tc.Truncated {
			docs = append(docs, map[string]any{
				"truncated":      true,
				"original_count": float64(tc.OriginalCount),
			})
			continue
		}
		doc := map[string]any{
			"name":      tc.Name,
			"arguments": argumentsDoc(tc.Arguments),
		}
		if tc.ID != "" {
			doc["id"] = tc.ID
		}
		docs = append(docs, doc)
	}
	return docs
}

func argumentsDoc(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// compare applies an operator between the queried value and the expected
// one. A nil actual (path not found) always fails.
func compare(actual any, operator string, expected any) bool {
	if actual == nil {
		return false
	}

	switch operator {
	case "eq":
		return valuesEqual(actual, expected)
	case "ne":
		return !valuesEqual(actual, expected)
	case "gt", "gte", "lt", "lte":
		a, okA := toFloat(actual)
		e, okE := toFloat(expected)
		if !okA || !okE {
			return false
		}
		switch operator {
		case "gt":
			return a > e
		case "gte":
			return a >= e
		case "lt":
			return a < e
		default:
			return a <= e
		}
	case "exists":
		return true
	case "contains":
		switch v := actual.(type) {
		case string:
			return strings.Contains(v, stringify(expected))
		case []any:
			for _, item := range v {
				if valuesEqual(item, expected) {
					return true
				}
			}
			return false
		}
		return false
	case "regex":
		re, err := regexp.Compile(stringify(expected))
		if err != nil {
			return false
		}
		return re.MatchString(stringify(actual))
	}
	return false
}

// valuesEqual compares across numeric types (an int expectation matches a
// float64 from the document); everything else is deep equality.
func valuesEqual(a, b any) bool {
	af, aok := numericValue(a)
	bf, bok := numericValue(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// toFloat coerces numbers and numeric strings for ordered comparisons.
func toFloat(v any) (float64, bool) {
	if f, ok := numericValue(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}

// formatValue renders a value for details strings: strings quoted, nil as
// null, everything else via %v.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func boolScore(passed bool) float64 {
	if passed {
		return 1.0
	}
	return 0.0
}
