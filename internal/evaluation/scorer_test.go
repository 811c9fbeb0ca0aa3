package evaluation

import (
	"context"
	"strings"
	"testing"

	"github.com/jherleth/salvo-ai/internal/evaluation/evaluators"
	"github.com/jherleth/salvo-ai/pkg/models"
)

func result(score float64, passed bool, weight float64, required bool) models.EvalResult {
	return models.EvalResult{
		AssertionType: "jmespath",
		Score:         score,
		Passed:        passed,
		Weight:        weight,
		Required:      required,
		Details:       "test",
	}
}

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name      string
		results   []models.EvalResult
		threshold float64
		score     float64
		passed    bool
		hardFail  bool
	}{
		{
			name:      "empty results pass vacuously",
			results:   nil,
			threshold: 0.8,
			score:     1.0,
			passed:    true,
		},
		{
			name: "all passing equal weights",
			results: []models.EvalResult{
				result(1.0, true, 1.0, false),
				result(1.0, true, 1.0, false),
			},
			threshold: 0.8,
			score:     1.0,
			passed:    true,
		},
		{
			name: "mixed pass and fail",
			results: []models.EvalResult{
				result(1.0, true, 1.0, false),
				result(0.0, false, 1.0, false),
			},
			threshold: 0.8,
			score:     0.5,
			passed:    false,
		},
		{
			name: "unequal weights",
			results: []models.EvalResult{
				result(1.0, true, 3.0, false),
				result(0.0, false, 1.0, false),
			},
			threshold: 0.7,
			score:     0.75,
			passed:    true,
		},
		{
			name: "score equal to threshold passes",
			results: []models.EvalResult{
				result(0.8, true, 1.0, false),
			},
			threshold: 0.8,
			score:     0.8,
			passed:    true,
		},
		{
			name: "score below threshold fails",
			results: []models.EvalResult{
				result(0.79, true, 1.0, false),
			},
			threshold: 0.8,
			score:     0.79,
			passed:    false,
		},
		{
			name: "required failure forces hard fail despite high score",
			results: []models.EvalResult{
				result(1.0, true, 10.0, false),
				result(0.0, false, 0.1, true),
			},
			threshold: 0.5,
			score:     10.0 / 10.1,
			passed:    false,
			hardFail:  true,
		},
		{
			name: "required assertion passing is not a hard fail",
			results: []models.EvalResult{
				result(1.0, true, 1.0, true),
			},
			threshold: 0.8,
			score:     1.0,
			passed:    true,
		},
		{
			name: "zero total weight scores zero",
			results: []models.EvalResult{
				result(1.0, true, 0.0, false),
			},
			threshold: 0.8,
			score:     0.0,
			passed:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, passed, hardFail := ComputeScore(tt.results, tt.threshold)
			if diff := score - tt.score; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("score = %v, want %v", score, tt.score)
			}
			if passed != tt.passed {
				t.Errorf("passed = %v, want %v", passed, tt.passed)
			}
			if hardFail != tt.hardFail {
				t.Errorf("hardFail = %v, want %v", hardFail, tt.hardFail)
			}
		})
	}
}

func evalTrace() *models.RunTrace {
	return &models.RunTrace{
		Messages: []models.TraceMessage{
			{Role: models.RoleUser, Content: ptr("Hello")},
			{Role: models.RoleAssistant, Content: ptr("Hi there!")},
		},
		TurnCount:      1,
		InputTokens:    10,
		OutputTokens:   20,
		TotalTokens:    30,
		LatencySeconds: 0.5,
		FinalContent:   ptr("Hi there!"),
		FinishReason:   "stop",
		Model:          "gpt-4",
		Provider:       "openai",
		ScenarioHash:   "abc123",
		CostUSD:        ptr(0.01),
	}
}

func TestEvaluateTraceSingleAssertion(t *testing.T) {
	assertions := []models.Assertion{
		{Type: "jmespath", Expression: "response.content", Operator: "contains", Value: "Hi", Weight: 1.0},
	}
	results, score, passed, err := EvaluateTrace(context.Background(), evalTrace(), assertions, 0.8, evaluators.Options{})
	if err != nil {
		t.Fatalf("EvaluateTrace() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if score != 1.0 {
		t.Errorf("score = %v, want 1.0", score)
	}
	if !passed {
		t.Error("passed = false, want true")
	}
}

func TestEvaluateTraceMixedAssertionTypes(t *testing.T) {
	assertions := []models.Assertion{
		{Type: "jmespath", Expression: "response.content", Operator: "contains", Value: "Hi", Weight: 1.0},
		{Type: "cost_limit", MaxUSD: ptr(0.10), Weight: 1.0},
		{Type: "latency_limit", MaxSeconds: ptr(5.0), Weight: 1.0},
	}
	results, score, passed, err := EvaluateTrace(context.Background(), evalTrace(), assertions, 0.8, evaluators.Options{})
	if err != nil {
		t.Fatalf("EvaluateTrace() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if !r.Passed {
			t.Errorf("results[%d].Passed = false (%s)", i, r.Details)
		}
	}
	if score != 1.0 || !passed {
		t.Errorf("score = %v passed = %v, want 1.0 true", score, passed)
	}
}

func TestEvaluateTraceFailingAssertion(t *testing.T) {
	assertions := []models.Assertion{
		{Type: "jmespath", Expression: "response.content", Operator: "eq", Value: "Goodbye", Weight: 1.0},
	}
	results, score, passed, err := EvaluateTrace(context.Background(), evalTrace(), assertions, 0.8, evaluators.Options{})
	if err != nil {
		t.Fatalf("EvaluateTrace() error = %v", err)
	}
	if results[0].Passed {
		t.Error("results[0].Passed = true, want false")
	}
	if score != 0.0 || passed {
		t.Errorf("score = %v passed = %v, want 0.0 false", score, passed)
	}
}

func TestEvaluateTraceToolSequence(t *testing.T) {
	trace := evalTrace()
	trace.ToolCallsMade = []models.TraceToolCall{
		{ID: "c1", Name: "search"},
		{ID: "c2", Name: "answer"},
	}
	assertions := []models.Assertion{
		{Type: "tool_sequence", Sequence: []string{"search", "answer"}, Mode: "exact", Weight: 1.0},
	}
	_, score, passed, err := EvaluateTrace(context.Background(), trace, assertions, 0.8, evaluators.Options{})
	if err != nil {
		t.Fatalf("EvaluateTrace() error = %v", err)
	}
	if score != 1.0 || !passed {
		t.Errorf("score = %v passed = %v, want 1.0 true", score, passed)
	}
}

func TestEvaluateTraceUnknownType(t *testing.T) {
	assertions := []models.Assertion{{Type: "mystery", Weight: 1.0}}
	_, _, _, err := EvaluateTrace(context.Background(), evalTrace(), assertions, 0.8, evaluators.Options{})
	if err == nil {
		t.Fatal("EvaluateTrace() = nil error, want unknown-type error")
	}
	if !strings.Contains(err.Error(), "unknown assertion type") {
		t.Errorf("error = %q", err)
	}
}
