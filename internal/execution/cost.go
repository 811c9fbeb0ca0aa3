// Package execution runs scenarios against model adapters: the multi-turn
// conversation loop with mock tool injection, trial orchestration with
// retries and early stopping, cost estimation, and trace sanitization.
package execution

import "math"

// ModelPricing is the USD price per million tokens for one model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// PricingTable maps model names to their token pricing.
var PricingTable = map[string]ModelPricing{
	// OpenAI models
	"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	// Anthropic models
	"claude-sonnet-4-5": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
}

// ModelAliases maps dated model versions to the base model they share
// pricing with.
var ModelAliases = map[string]string{
	"claude-sonnet-4-5-20250929": "claude-sonnet-4-5",
	"claude-haiku-4-5-20241022":  "claude-haiku-4-5",
}

// EstimateCost returns the estimated USD cost of a run, rounded to six
// decimal places, or nil when the model is not in the pricing table. A
// nil cost is "unknown", which downstream checks treat differently from
// zero.
func EstimateCost(model string, inputTokens, outputTokens int) *float64 {
	resolved := model
	if base, ok := ModelAliases[model]; ok {
		resolved = base
	}
	pricing, ok := PricingTable[resolved]
	if !ok {
		return nil
	}

	cost := float64(inputTokens)/1_000_000*pricing.InputPerMillion +
		float64(outputTokens)/1_000_000*pricing.OutputPerMillion
	rounded := math.Round(cost*1e6) / 1e6
	return &rounded
}
