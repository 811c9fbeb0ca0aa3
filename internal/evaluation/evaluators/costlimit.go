package evaluators

import (
	"context"
	"fmt"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// CostLimitEvaluator passes when the trace's estimated cost is at or under
// max_usd. An unknown cost (unpriced model) fails rather than passing
// silently.
type CostLimitEvaluator struct{}

func (CostLimitEvaluator) Evaluate(_ context.Context, trace *models.RunTrace, assertion models.Assertion) (models.EvalResult, error) {
	if assertion.MaxUSD == nil {
		return models.EvalResult{}, fmt.Errorf("cost_limit assertion is missing max_usd")
	}
	maxUSD := *assertion.MaxUSD
	weight := assertionWeight(assertion)

	if trace.CostUSD == nil {
		return models.EvalResult{
			AssertionType: "cost_limit",
			Weight:        weight,
			Required:      assertion.Required,
			Details:       fmt.Sprintf("Cost unknown (None) -- cannot verify limit of $%.4f", maxUSD),
		}, nil
	}

	passed := *trace.CostUSD <= maxUSD

	return models.EvalResult{
		AssertionType: "cost_limit",
		Score:         boolScore(passed),
		Passed:        passed,
		Weight:        weight,
		Required:      assertion.Required,
		Details:       fmt.Sprintf("Cost $%.4f vs limit $%.4f", *trace.CostUSD, maxUSD),
	}, nil
}
