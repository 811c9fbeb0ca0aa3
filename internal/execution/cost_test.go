package execution

import (
	"math"
	"testing"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name         string
		model        string
		inputTokens  int
		outputTokens int
		want         float64
	}{
		{"gpt-4o", "gpt-4o", 1000, 500, 0.0075},
		{"gpt-4o large usage", "gpt-4o", 1_000_000, 1_000_000, 12.50},
		{"gpt-4o-mini", "gpt-4o-mini", 1_000_000, 1_000_000, 0.75},
		{"claude sonnet", "claude-sonnet-4-5", 1_000_000, 1_000_000, 18.00},
		{"claude haiku", "claude-haiku-4-5", 1_000_000, 1_000_000, 6.00},
		{"zero tokens", "gpt-4o", 0, 0, 0},
		{"sonnet dated alias", "claude-sonnet-4-5-20250929", 1_000_000, 1_000_000, 18.00},
		{"haiku dated alias", "claude-haiku-4-5-20241022", 1_000_000, 1_000_000, 6.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCost(tt.model, tt.inputTokens, tt.outputTokens)
			if got == nil {
				t.Fatalf("EstimateCost(%q) = nil, want %v", tt.model, tt.want)
			}
			if math.Abs(*got-tt.want) > 1e-9 {
				t.Errorf("EstimateCost(%q, %d, %d) = %v, want %v",
					tt.model, tt.inputTokens, tt.outputTokens, *got, tt.want)
			}
		})
	}
}

func TestEstimateCostUnknownModel(t *testing.T) {
	if got := EstimateCost("some-future-model", 1000, 1000); got != nil {
		t.Errorf("EstimateCost(unknown) = %v, want nil", *got)
	}
}

func TestEstimateCostRoundsToSixDecimals(t *testing.T) {
	// 7 input tokens on gpt-4o: 7/1M * 2.50 = 0.0000175, rounds to 0.000018.
	got := EstimateCost("gpt-4o", 7, 0)
	if got == nil {
		t.Fatal("EstimateCost() = nil")
	}
	if *got != 0.000018 {
		t.Errorf("EstimateCost(gpt-4o, 7, 0) = %v, want 0.000018", *got)
	}
}
