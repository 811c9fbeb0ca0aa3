package judge

import (
	"sort"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// CriterionScore summarizes one criterion across all judge votes.
type CriterionScore struct {
	Name        string    `json:"name"`
	MedianScore float64   `json:"median_score"`
	AllScores   []float64 `json:"all_scores"`
	Weight      float64   `json:"weight"`
}

// AggregateVotes folds k judge votes into a single result. Each criterion
// gets the median of its scores (missing votes contribute nothing to the
// median but a missing criterion scores 0 inside a vote's own average).
// The overall score is the weight-averaged median; pass/fail is a strict
// majority of votes whose own weighted average meets the threshold.
func AggregateVotes(votes []map[string]any, criteria []models.Criterion, threshold float64) (float64, bool, []CriterionScore) {
	if len(votes) == 0 {
		return 0.0, false, nil
	}

	perCriterion := make([][]float64, len(criteria))
	for _, vote := range votes {
		for i, c := range criteria {
			if score, ok := voteScore(vote, c.Name); ok {
				perCriterion[i] = append(perCriterion[i], score)
			}
		}
	}

	details := make([]CriterionScore, 0, len(criteria))
	medians := make([]float64, len(criteria))
	totalWeight := 0.0
	for i, c := range criteria {
		scores := perCriterion[i]
		if scores == nil {
			scores = []float64{}
		}
		medians[i] = median(scores)
		totalWeight += criterionWeight(c)
		details = append(details, CriterionScore{
			Name:        c.Name,
			MedianScore: medians[i],
			AllScores:   scores,
			Weight:      criterionWeight(c),
		})
	}

	overall := 0.0
	if totalWeight > 0 {
		for i, c := range criteria {
			overall += medians[i] * criterionWeight(c)
		}
		overall /= totalWeight
	}

	passCount := 0
	for _, vote := range votes {
		voteTotal := 0.0
		for _, c := range criteria {
			if score, ok := voteScore(vote, c.Name); ok {
				voteTotal += score * criterionWeight(c)
			}
		}
		voteAvg := 0.0
		if totalWeight > 0 {
			voteAvg = voteTotal / totalWeight
		}
		if voteAvg >= threshold {
			passCount++
		}
	}
	passed := float64(passCount) > float64(len(votes))/2

	return overall, passed, details
}

func voteScore(vote map[string]any, name string) (float64, bool) {
	entry, ok := vote[name].(map[string]any)
	if !ok {
		return 0, false
	}
	return numericScore(entry["score"])
}

// median of a sorted copy; 0 for an empty slice.
func median(scores []float64) float64 {
	n := len(scores)
	if n == 0 {
		return 0.0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
