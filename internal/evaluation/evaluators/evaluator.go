// Package evaluators maps assertion types to their evaluation logic.
// Every evaluator takes a completed run trace and one canonical assertion
// and produces an EvalResult; only the judge performs I/O.
package evaluators

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/internal/observability"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// Evaluator scores a single assertion against a run trace. The context is
// honored by evaluators that call out to a model; pure evaluators ignore it.
type Evaluator interface {
	Evaluate(ctx context.Context, trace *models.RunTrace, assertion models.Assertion) (models.EvalResult, error)
}

// Options carries cross-cutting dependencies. The judge uses the scenario
// for context building, project-level judge defaults, an adapter
// constructor, and a cost estimator for judge-call accounting; the
// evaluation loop uses the tracer and metrics to time each evaluator.
// Zero values are fine for trace-only evaluators.
type Options struct {
	Scenario     *models.Scenario
	JudgeConfig  *models.JudgeConfig
	NewAdapter   func(name string) (adapters.Adapter, error)
	EstimateCost func(model string, inputTokens, outputTokens int) *float64
	Logger       *slog.Logger
	Tracer       *observability.Tracer
	Metrics      *observability.Metrics
}

// Types returns the registered assertion types, sorted.
func Types() []string {
	return []string{"cost_limit", "jmespath", "judge", "latency_limit", "tool_sequence"}
}

// New returns the evaluator for an assertion type.
func New(assertionType string, opts Options) (Evaluator, error) {
	switch assertionType {
	case "jmespath":
		return PathQueryEvaluator{}, nil
	case "tool_sequence":
		return ToolSequenceEvaluator{}, nil
	case "cost_limit":
		return CostLimitEvaluator{}, nil
	case "latency_limit":
		return LatencyLimitEvaluator{}, nil
	case "judge":
		return NewJudgeEvaluator(opts), nil
	}
	return nil, fmt.Errorf("unknown assertion type %q (available: %s)",
		assertionType, strings.Join(Types(), ", "))
}

// assertionWeight treats a zero weight as the default 1.0.
func assertionWeight(a models.Assertion) float64 {
	if a.Weight == 0 {
		return 1.0
	}
	return a.Weight
}
