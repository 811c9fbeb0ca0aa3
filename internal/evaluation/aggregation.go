package evaluation

import (
	"sort"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// AggregateMetrics are the score, latency, and cost statistics computed
// across a suite's scored trials. Pointer fields are nil when no trial
// produced the underlying measurement.
type AggregateMetrics struct {
	ScoreAvg float64
	ScoreMin float64
	ScoreP50 float64
	ScoreP95 float64
	PassRate float64

	LatencyP50 *float64
	LatencyP95 *float64

	CostTotal       *float64
	CostAvgPerTrial *float64
}

// ComputeAggregateMetrics computes percentile statistics across scored
// trials. A single trial collapses p50 and p95 to its own value.
func ComputeAggregateMetrics(scored []models.TrialResult) AggregateMetrics {
	if len(scored) == 0 {
		return AggregateMetrics{}
	}

	n := len(scored)
	scores := make([]float64, n)
	latencies := make([]float64, n)
	var costs []float64
	passedCount := 0
	for i, t := range scored {
		scores[i] = t.Score
		latencies[i] = t.LatencySeconds
		if t.CostUSD != nil {
			costs = append(costs, *t.CostUSD)
		}
		if t.Passed {
			passedCount++
		}
	}

	sum := 0.0
	min := scores[0]
	for _, s := range scores {
		sum += s
		if s < min {
			min = s
		}
	}

	m := AggregateMetrics{
		ScoreAvg: sum / float64(n),
		ScoreMin: min,
		PassRate: float64(passedCount) / float64(n),
	}

	if n == 1 {
		m.ScoreP50 = scores[0]
		m.ScoreP95 = scores[0]
		m.LatencyP50 = ptr(latencies[0])
		m.LatencyP95 = ptr(latencies[0])
	} else {
		sortedScores := sortedCopy(scores)
		m.ScoreP50 = quantile(sortedScores, 50)
		m.ScoreP95 = quantile(sortedScores, 95)
		sortedLatencies := sortedCopy(latencies)
		m.LatencyP50 = ptr(quantile(sortedLatencies, 50))
		m.LatencyP95 = ptr(quantile(sortedLatencies, 95))
	}

	if len(costs) > 0 {
		total := 0.0
		for _, c := range costs {
			total += c
		}
		m.CostTotal = ptr(total)
		m.CostAvgPerTrial = ptr(total / float64(n))
	}

	return m
}

// quantile returns the p-th percentile (1..99) of sorted data using the
// exclusive method: the cut point for n values lands at p*(n+1)/100,
// interpolating between neighbors and clamping to the data range.
// Requires at least two values.
func quantile(sorted []float64, p int) float64 {
	n := len(sorted)
	j := p * (n + 1) / 100
	delta := p * (n + 1) % 100
	if j < 1 {
		j = 1
	} else if j > n-1 {
		j = n - 1
	}
	return (sorted[j-1]*float64(100-delta) + sorted[j]*float64(delta)) / 100
}

// DetermineVerdict maps a suite's trials to its aggregate verdict.
// Priority: infra error (unless allowed) > hard fail > partial (threshold
// missed but some trials passed) > fail > pass.
func DetermineVerdict(trials []models.TrialResult, avgScore, threshold float64, allowInfra bool) models.Verdict {
	hasInfra := false
	hasHardFail := false
	for _, t := range trials {
		switch t.Status {
		case models.TrialInfraError:
			hasInfra = true
		case models.TrialHardFail:
			hasHardFail = true
		}
	}

	if hasInfra && !allowInfra {
		return models.VerdictInfraError
	}
	if hasHardFail {
		return models.VerdictHardFail
	}

	scoredCount := 0
	passedCount := 0
	for _, t := range trials {
		if t.Status == models.TrialInfraError {
			continue
		}
		scoredCount++
		if t.Passed {
			passedCount++
		}
	}
	passRate := 0.0
	if scoredCount > 0 {
		passRate = float64(passedCount) / float64(scoredCount)
	}

	if avgScore < threshold {
		if passRate > 0 {
			return models.VerdictPartial
		}
		return models.VerdictFail
	}
	return models.VerdictPass
}

// AggregateFailures groups failed assertions across trials by type and
// details prefix, then ranks them by fail count times average weight lost.
// Up to three sample detail strings are kept per group.
func AggregateFailures(trials []models.TrialResult) []models.AssertionFailure {
	totalTrials := len(trials)
	if totalTrials == 0 {
		return nil
	}

	type groupKey struct {
		assertionType string
		expression    string
	}
	index := make(map[groupKey]int)
	var failures []models.AssertionFailure

	for _, trial := range trials {
		for _, er := range trial.EvalResults {
			if er.Passed {
				continue
			}

			expr := er.Details
			if len(expr) > 80 {
				expr = expr[:80]
			}
			key := groupKey{er.AssertionType, expr}

			i, ok := index[key]
			if !ok {
				i = len(failures)
				index[key] = i
				failures = append(failures, models.AssertionFailure{
					AssertionType: er.AssertionType,
					Expression:    expr,
				})
			}

			failures[i].FailCount++
			failures[i].TotalWeightLost += (1.0 - er.Score) * er.Weight
			if len(failures[i].SampleDetails) < 3 {
				failures[i].SampleDetails = append(failures[i].SampleDetails, er.Details)
			}
		}
	}

	for i := range failures {
		failures[i].FailRate = float64(failures[i].FailCount) / float64(totalTrials)
	}

	// Rank by fail count times average weight lost, which reduces to the
	// total weight lost.
	sort.SliceStable(failures, func(a, b int) bool {
		return failures[a].TotalWeightLost > failures[b].TotalWeightLost
	})

	return failures
}

func sortedCopy(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}

func ptr[T any](v T) *T { return &v }
