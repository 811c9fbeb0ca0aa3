package evaluators

import (
	"context"
	"strings"
	"testing"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func sampleTrace() *models.RunTrace {
	content := "The weather in Oslo is sunny with a high of 18."
	cost := 0.0123
	return &models.RunTrace{
		Messages: []models.TraceMessage{
			{Role: "user", Content: ptrStr("What is the weather in Oslo?")},
			{Role: "assistant", Content: &content},
		},
		ToolCallsMade: []models.TraceToolCall{
			{ID: "c1", Name: "search", Arguments: map[string]any{"query": "oslo weather"}},
			{ID: "c2", Name: "fetch", Arguments: map[string]any{"url": "https://example.org"}},
		},
		TurnCount:      2,
		InputTokens:    300,
		OutputTokens:   120,
		TotalTokens:    420,
		LatencySeconds: 2.5,
		FinalContent:   &content,
		FinishReason:   "stop",
		Model:          "gpt-4o",
		Provider:       "openai",
		CostUSD:        &cost,
	}
}

func ptrStr(s string) *string { return &s }

func evalPathQuery(t *testing.T, assertion models.Assertion) models.EvalResult {
	t.Helper()
	result, err := PathQueryEvaluator{}.Evaluate(context.Background(), sampleTrace(), assertion)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return result
}

func TestPathQueryOperators(t *testing.T) {
	tests := []struct {
		name      string
		assertion models.Assertion
		want      bool
	}{
		{
			name:      "contains substring",
			assertion: models.Assertion{Expression: "response.content", Operator: "contains", Value: "sunny"},
			want:      true,
		},
		{
			name:      "contains miss",
			assertion: models.Assertion{Expression: "response.content", Operator: "contains", Value: "snowstorm"},
			want:      false,
		},
		{
			name:      "contains list membership",
			assertion: models.Assertion{Expression: "tool_calls[].name", Operator: "contains", Value: "fetch"},
			want:      true,
		},
		{
			name:      "eq across numeric types",
			assertion: models.Assertion{Expression: "metadata.turn_count", Operator: "eq", Value: 2},
			want:      true,
		},
		{
			name:      "eq string",
			assertion: models.Assertion{Expression: "metadata.provider", Operator: "eq", Value: "openai"},
			want:      true,
		},
		{
			name:      "ne",
			assertion: models.Assertion{Expression: "metadata.provider", Operator: "ne", Value: "anthropic"},
			want:      true,
		},
		{
			name:      "gt",
			assertion: models.Assertion{Expression: "metadata.total_tokens", Operator: "gt", Value: 100},
			want:      true,
		},
		{
			name:      "gt numeric string coercion",
			assertion: models.Assertion{Expression: "metadata.latency_seconds", Operator: "gt", Value: "2"},
			want:      true,
		},
		{
			name:      "gte boundary",
			assertion: models.Assertion{Expression: "metadata.total_tokens", Operator: "gte", Value: 420},
			want:      true,
		},
		{
			name:      "lt fails at boundary",
			assertion: models.Assertion{Expression: "metadata.total_tokens", Operator: "lt", Value: 420},
			want:      false,
		},
		{
			name:      "lte boundary",
			assertion: models.Assertion{Expression: "metadata.total_tokens", Operator: "lte", Value: 420},
			want:      true,
		},
		{
			name:      "ordered comparison on non-numeric fails",
			assertion: models.Assertion{Expression: "metadata.provider", Operator: "gt", Value: 1},
			want:      false,
		},
		{
			name:      "exists on projected tool call",
			assertion: models.Assertion{Expression: "tool_calls[?name=='search'] | [0]", Operator: "exists"},
			want:      true,
		},
		{
			name:      "exists fails on missing path",
			assertion: models.Assertion{Expression: "tool_calls[?name=='nope'] | [0]", Operator: "exists"},
			want:      false,
		},
		{
			name:      "regex match",
			assertion: models.Assertion{Expression: "response.content", Operator: "regex", Value: `(?i)SUNNY`},
			want:      true,
		},
		{
			name:      "regex invalid pattern fails",
			assertion: models.Assertion{Expression: "response.content", Operator: "regex", Value: "["},
			want:      false,
		},
		{
			name:      "nil actual always fails",
			assertion: models.Assertion{Expression: "response.nonexistent", Operator: "eq", Value: nil},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalPathQuery(t, tt.assertion)
			if result.Passed != tt.want {
				t.Errorf("Passed = %v, want %v (details: %s)", result.Passed, tt.want, result.Details)
			}
			wantScore := 0.0
			if tt.want {
				wantScore = 1.0
			}
			if result.Score != wantScore {
				t.Errorf("Score = %v, want %v", result.Score, wantScore)
			}
			if result.AssertionType != "jmespath" {
				t.Errorf("AssertionType = %q, want jmespath", result.AssertionType)
			}
		})
	}
}

func TestPathQueryDetailsFormat(t *testing.T) {
	result := evalPathQuery(t, models.Assertion{
		Expression: "metadata.provider",
		Operator:   "eq",
		Value:      "anthropic",
	})

	want := `path="metadata.provider" operator=eq expected="anthropic" actual="openai"`
	if result.Details != want {
		t.Errorf("Details = %q, want %q", result.Details, want)
	}
}

func TestPathQueryParseErrorIsResultNotError(t *testing.T) {
	result := evalPathQuery(t, models.Assertion{Expression: "???", Operator: "exists"})

	if result.Passed {
		t.Error("Passed = true, want false for unparseable expression")
	}
	if result.Score != 0 {
		t.Errorf("Score = %v, want 0", result.Score)
	}
	if !strings.Contains(result.Details, "JMESPath parse error") {
		t.Errorf("Details = %q, want parse error note", result.Details)
	}
}

func TestPathQueryWeightAndRequiredCarried(t *testing.T) {
	result := evalPathQuery(t, models.Assertion{
		Expression: "response.content",
		Operator:   "exists",
		Weight:     2.5,
		Required:   true,
	})
	if result.Weight != 2.5 {
		t.Errorf("Weight = %v, want 2.5", result.Weight)
	}
	if !result.Required {
		t.Error("Required = false, want true")
	}

	// Zero weight means unset and defaults to 1.0.
	result = evalPathQuery(t, models.Assertion{Expression: "response.content", Operator: "exists"})
	if result.Weight != 1.0 {
		t.Errorf("default Weight = %v, want 1.0", result.Weight)
	}
}

func TestBuildTraceDataShape(t *testing.T) {
	data := BuildTraceData(sampleTrace())

	response, ok := data["response"].(map[string]any)
	if !ok {
		t.Fatal("response is not a map")
	}
	if response["finish_reason"] != "stop" {
		t.Errorf("response.finish_reason = %v, want stop", response["finish_reason"])
	}

	metadata, ok := data["metadata"].(map[string]any)
	if !ok {
		t.Fatal("metadata is not a map")
	}
	if metadata["total_tokens"] != float64(420) {
		t.Errorf("metadata.total_tokens = %v (%T), want float64 420",
			metadata["total_tokens"], metadata["total_tokens"])
	}
	if metadata["cost_usd"] != 0.0123 {
		t.Errorf("metadata.cost_usd = %v, want 0.0123", metadata["cost_usd"])
	}

	calls, ok := data["tool_calls"].([]any)
	if !ok || len(calls) != 2 {
		t.Fatalf("tool_calls = %v, want two entries", data["tool_calls"])
	}
	first, ok := calls[0].(map[string]any)
	if !ok || first["name"] != "search" {
		t.Errorf("tool_calls[0] = %v, want search entry", calls[0])
	}

	turns, ok := data["turns"].([]any)
	if !ok || len(turns) != 2 {
		t.Fatalf("turns = %v, want two entries", data["turns"])
	}
}

func TestBuildTraceDataNilCost(t *testing.T) {
	trace := sampleTrace()
	trace.CostUSD = nil
	data := BuildTraceData(trace)

	metadata := data["metadata"].(map[string]any)
	if metadata["cost_usd"] != nil {
		t.Errorf("metadata.cost_usd = %v, want nil", metadata["cost_usd"])
	}
}

func TestBuildTraceDataTruncatedToolCalls(t *testing.T) {
	trace := sampleTrace()
	trace.ToolCallsMade = []models.TraceToolCall{{Truncated: true, OriginalCount: 57}}

	data := BuildTraceData(trace)
	calls := data["tool_calls"].([]any)
	if len(calls) != 1 {
		t.Fatalf("tool_calls = %v, want one placeholder", calls)
	}
	doc := calls[0].(map[string]any)
	if doc["truncated"] != true || doc["original_count"] != float64(57) {
		t.Errorf("placeholder = %v, want truncated marker with count", doc)
	}
}
