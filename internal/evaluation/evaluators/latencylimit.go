package evaluators

import (
	"context"
	"fmt"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// LatencyLimitEvaluator passes when the trace's wall-clock latency is at
// or under max_seconds.
type LatencyLimitEvaluator struct{}

func (LatencyLimitEvaluator) Evaluate(_ context.Context, trace *models.RunTrace, assertion models.Assertion) (models.EvalResult, error) {
	if assertion.MaxSeconds == nil {
		return models.EvalResult{}, fmt.Errorf("latency_limit assertion is missing max_seconds")
	}
	maxSeconds := *assertion.MaxSeconds
	weight := assertionWeight(assertion)

	passed := trace.LatencySeconds <= maxSeconds

	return models.EvalResult{
		AssertionType: "latency_limit",
		Score:         boolScore(passed),
		Passed:        passed,
		Weight:        weight,
		Required:      assertion.Required,
		Details:       fmt.Sprintf("Latency %.3fs vs limit %.3fs", trace.LatencySeconds, maxSeconds),
	}, nil
}
