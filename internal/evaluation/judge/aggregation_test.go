package judge

import (
	"math"
	"reflect"
	"testing"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func vote(scores map[string]float64) map[string]any {
	v := make(map[string]any, len(scores))
	for name, score := range scores {
		v[name] = map[string]any{"score": score, "reasoning": "r"}
	}
	return v
}

func TestAggregateVotesMedianPerCriterion(t *testing.T) {
	criteria := []models.Criterion{{Name: "accuracy"}}
	votes := []map[string]any{
		vote(map[string]float64{"accuracy": 0.2}),
		vote(map[string]float64{"accuracy": 0.9}),
		vote(map[string]float64{"accuracy": 0.8}),
	}

	overall, passed, details := AggregateVotes(votes, criteria, 0.8)
	if math.Abs(overall-0.8) > 1e-9 {
		t.Errorf("overall = %v, want median 0.8", overall)
	}
	// Votes 0.9 and 0.8 meet the threshold: 2 of 3 is a majority.
	if !passed {
		t.Error("majority of votes passed, expected passed=true")
	}
	if len(details) != 1 || details[0].Name != "accuracy" {
		t.Fatalf("details = %v", details)
	}
	if details[0].MedianScore != 0.8 {
		t.Errorf("median = %v, want 0.8", details[0].MedianScore)
	}
	if !reflect.DeepEqual(details[0].AllScores, []float64{0.2, 0.9, 0.8}) {
		t.Errorf("all scores = %v", details[0].AllScores)
	}
}

func TestAggregateVotesWeightedOverall(t *testing.T) {
	criteria := []models.Criterion{
		{Name: "accuracy", Weight: 3},
		{Name: "tone", Weight: 1},
	}
	votes := []map[string]any{
		vote(map[string]float64{"accuracy": 1.0, "tone": 0.0}),
	}

	overall, _, details := AggregateVotes(votes, criteria, 0.5)
	if math.Abs(overall-0.75) > 1e-9 {
		t.Errorf("overall = %v, want (1.0*3 + 0.0*1)/4 = 0.75", overall)
	}
	if details[0].Weight != 3 || details[1].Weight != 1 {
		t.Errorf("weights = %v, %v", details[0].Weight, details[1].Weight)
	}
}

func TestAggregateVotesDefaultWeight(t *testing.T) {
	criteria := []models.Criterion{
		{Name: "accuracy"},
		{Name: "tone"},
	}
	votes := []map[string]any{
		vote(map[string]float64{"accuracy": 1.0, "tone": 0.5}),
	}

	overall, _, _ := AggregateVotes(votes, criteria, 0.5)
	if math.Abs(overall-0.75) > 1e-9 {
		t.Errorf("overall = %v, want equal-weight average 0.75", overall)
	}
}

func TestAggregateVotesStrictMajority(t *testing.T) {
	criteria := []models.Criterion{{Name: "accuracy"}}

	// 1 of 2 passing votes is not a strict majority.
	votes := []map[string]any{
		vote(map[string]float64{"accuracy": 0.9}),
		vote(map[string]float64{"accuracy": 0.1}),
	}
	if _, passed, _ := AggregateVotes(votes, criteria, 0.8); passed {
		t.Error("tie should not pass")
	}

	// 2 of 2 passes.
	votes = []map[string]any{
		vote(map[string]float64{"accuracy": 0.9}),
		vote(map[string]float64{"accuracy": 0.85}),
	}
	if _, passed, _ := AggregateVotes(votes, criteria, 0.8); !passed {
		t.Error("unanimous votes should pass")
	}
}

func TestAggregateVotesMissingCriterionInVote(t *testing.T) {
	criteria := []models.Criterion{
		{Name: "accuracy"},
		{Name: "tone"},
	}
	votes := []map[string]any{
		vote(map[string]float64{"accuracy": 1.0}),
	}

	overall, passed, details := AggregateVotes(votes, criteria, 0.6)
	// tone has no scores so its median is 0; the vote's own average also
	// treats the missing criterion as 0.
	if math.Abs(overall-0.5) > 1e-9 {
		t.Errorf("overall = %v, want 0.5", overall)
	}
	if passed {
		t.Error("vote average 0.5 below threshold 0.6, expected failure")
	}
	if details[1].MedianScore != 0 || len(details[1].AllScores) != 0 {
		t.Errorf("missing criterion details = %+v", details[1])
	}
}

func TestAggregateVotesEmpty(t *testing.T) {
	overall, passed, details := AggregateVotes(nil, []models.Criterion{{Name: "accuracy"}}, 0.8)
	if overall != 0 || passed || details != nil {
		t.Errorf("empty votes = (%v, %v, %v), want (0, false, nil)", overall, passed, details)
	}
}

func TestMedianEvenCount(t *testing.T) {
	tests := []struct {
		scores []float64
		want   float64
	}{
		{nil, 0},
		{[]float64{0.4}, 0.4},
		{[]float64{0.2, 0.8}, 0.5},
		{[]float64{0.9, 0.1, 0.5}, 0.5},
		{[]float64{0.1, 0.9, 0.3, 0.7}, 0.5},
	}
	for _, tt := range tests {
		if got := median(tt.scores); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("median(%v) = %v, want %v", tt.scores, got, tt.want)
		}
	}
}
