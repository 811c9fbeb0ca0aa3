package evaluation

import (
	"context"
	"time"

	"github.com/jherleth/salvo-ai/internal/evaluation/evaluators"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// ComputeScore folds individual assertion results into a weighted score.
// Returns (score, passed, hardFail): passed requires meeting the threshold
// AND no failed required assertion; no assertions at all is a vacuous pass.
// A total weight of zero scores 0 and fails.
func ComputeScore(results []models.EvalResult, threshold float64) (float64, bool, bool) {
	if len(results) == 0 {
		return 1.0, true, false
	}

	hardFail := false
	totalWeight := 0.0
	weightedSum := 0.0
	for _, r := range results {
		if r.Required && !r.Passed {
			hardFail = true
		}
		totalWeight += r.Weight
		weightedSum += r.Score * r.Weight
	}

	if totalWeight == 0 {
		return 0.0, false, hardFail
	}

	score := weightedSum / totalWeight
	passed := score >= threshold && !hardFail
	return score, passed, hardFail
}

// EvaluateTrace runs every assertion against the trace and computes the
// weighted score. Assertions must already be normalized. An unknown
// assertion type or a judge infrastructure failure aborts with an error;
// ordinary assertion failures are reflected in the results.
func EvaluateTrace(ctx context.Context, trace *models.RunTrace, assertions []models.Assertion, threshold float64, opts evaluators.Options) ([]models.EvalResult, float64, bool, error) {
	results := make([]models.EvalResult, 0, len(assertions))

	for _, assertion := range assertions {
		evaluator, err := evaluators.New(assertion.Type, opts)
		if err != nil {
			return nil, 0, false, err
		}

		evalCtx, span := opts.Tracer.StartEvaluator(ctx, assertion.Type)
		start := time.Now()
		result, err := evaluator.Evaluate(evalCtx, trace, assertion)
		opts.Metrics.RecordEvaluator(assertion.Type, time.Since(start).Seconds())
		if err != nil {
			opts.Tracer.RecordError(span, err)
			span.End()
			return nil, 0, false, err
		}
		span.End()

		results = append(results, result)
	}

	score, passed, _ := ComputeScore(results, threshold)
	return results, score, passed, nil
}
