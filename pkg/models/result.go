package models

// EvalResult is the outcome of evaluating one assertion against a trace.
// Score is in [0, 1]; Weight and Required are copied from the assertion so
// the scorer and failure aggregation need no back-reference.
type EvalResult struct {
	AssertionType string         `json:"assertion_type"`
	Score         float64        `json:"score"`
	Passed        bool           `json:"passed"`
	Weight        float64        `json:"weight"`
	Required      bool           `json:"required"`
	Details       string         `json:"details"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
