package evaluators

import (
	"context"
	"testing"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func TestLatencyLimit(t *testing.T) {
	tests := []struct {
		name    string
		max     float64
		want    bool
		details string
	}{
		{"under limit", 3.0, true, "Latency 2.500s vs limit 3.000s"},
		{"over limit", 2.0, false, "Latency 2.500s vs limit 2.000s"},
		{"boundary passes", 2.5, true, "Latency 2.500s vs limit 2.500s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := LatencyLimitEvaluator{}.Evaluate(context.Background(), sampleTrace(), models.Assertion{
				MaxSeconds: ptrFloat(tt.max),
			})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if result.Passed != tt.want {
				t.Errorf("Passed = %v, want %v", result.Passed, tt.want)
			}
			if result.Details != tt.details {
				t.Errorf("Details = %q, want %q", result.Details, tt.details)
			}
		})
	}
}

func TestLatencyLimitMissingMaxSeconds(t *testing.T) {
	_, err := LatencyLimitEvaluator{}.Evaluate(context.Background(), sampleTrace(), models.Assertion{})
	if err == nil {
		t.Error("Evaluate() without max_seconds = nil error, want error")
	}
}
