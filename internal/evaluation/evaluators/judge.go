package evaluators

import (
	"context"
	"fmt"
	"strings"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/internal/evaluation/judge"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// Built-in judge defaults, used when neither the assertion nor the
// project config specifies a value.
const (
	defaultJudgeAdapter   = "openai"
	defaultJudgeModel     = "gpt-4o-mini"
	defaultJudgeK         = 3
	defaultJudgeMaxTokens = 1024
	defaultJudgeThreshold = 0.8
)

// judgeSettings is the fully resolved judge call configuration.
type judgeSettings struct {
	adapter     string
	model       string
	k           int
	temperature float64
	maxTokens   int
}

// resolveJudgeSettings merges configuration layers: built-in defaults,
// then the project judge config, then assertion-level overrides.
func resolveJudgeSettings(a models.Assertion, project *models.JudgeConfig) judgeSettings {
	s := judgeSettings{
		adapter:   defaultJudgeAdapter,
		model:     defaultJudgeModel,
		k:         defaultJudgeK,
		maxTokens: defaultJudgeMaxTokens,
	}

	if project != nil {
		if project.Adapter != "" {
			s.adapter = project.Adapter
		}
		if project.Model != "" {
			s.model = project.Model
		}
		if project.K != 0 {
			s.k = project.K
		}
		if project.Temperature != 0 {
			s.temperature = project.Temperature
		}
		if project.MaxTokens != 0 {
			s.maxTokens = project.MaxTokens
		}
	}

	if a.JudgeAdapter != "" {
		s.adapter = a.JudgeAdapter
	}
	if a.JudgeModel != "" {
		s.model = a.JudgeModel
	}
	if a.K != nil {
		s.k = *a.K
	}
	if a.Temperature != nil {
		s.temperature = *a.Temperature
	}
	if a.MaxTokens != nil {
		s.maxTokens = *a.MaxTokens
	}

	return s
}

func resolveJudgeThreshold(a models.Assertion, project *models.JudgeConfig) float64 {
	if a.Threshold != nil {
		return *a.Threshold
	}
	if project != nil && project.DefaultThreshold != 0 {
		return project.DefaultThreshold
	}
	return defaultJudgeThreshold
}

// JudgeEvaluator scores an assertion by asking a separate LLM to grade the
// agent's response against named criteria. It runs k independent calls,
// extracts structured scores from each, and aggregates medians with a
// majority-vote pass decision. Individual call failures count as parse
// failures; only adapter resolution errors abort the evaluation.
type JudgeEvaluator struct {
	opts Options
}

// NewJudgeEvaluator wires the judge with its dependencies.
func NewJudgeEvaluator(opts Options) *JudgeEvaluator {
	return &JudgeEvaluator{opts: opts}
}

func (e *JudgeEvaluator) Evaluate(ctx context.Context, trace *models.RunTrace, assertion models.Assertion) (models.EvalResult, error) {
	weight := assertionWeight(assertion)
	settings := resolveJudgeSettings(assertion, e.opts.JudgeConfig)
	threshold := resolveJudgeThreshold(assertion, e.opts.JudgeConfig)
	criteria := assertion.Criteria

	if settings.k == 1 && e.opts.Logger != nil {
		e.opts.Logger.Debug("judge k=1 disables majority voting")
	}

	systemPrompt := assertion.CustomPrompt
	if systemPrompt == "" {
		systemPrompt = judge.BuildSystemPrompt(criteria)
	}
	contextBlock := judge.BuildContext(trace, e.opts.Scenario, assertion.IncludeSystemPrompt)
	userPrompt := judge.BuildUserPrompt(contextBlock)
	scoringTool := judge.BuildScoringTool(criteria)

	newAdapter := e.opts.NewAdapter
	if newAdapter == nil {
		newAdapter = adapters.New
	}
	adapter, err := newAdapter(settings.adapter)
	if err != nil {
		return models.EvalResult{}, fmt.Errorf("resolve judge adapter: %w", err)
	}

	cfg := adapters.Config{
		Model:       settings.model,
		Temperature: &settings.temperature,
		MaxTokens:   &settings.maxTokens,
		Extras:      judge.FormatToolChoice(adapter.ProviderName(), judge.ScoringToolName),
	}
	messages := []adapters.Message{
		{Role: adapters.RoleSystem, Content: &systemPrompt},
		{Role: adapters.RoleUser, Content: &userPrompt},
	}

	var votes []map[string]any
	parseFailures := 0
	totalCost := 0.0

	for i := 0; i < settings.k; i++ {
		res, err := adapter.SendTurn(ctx, messages, []adapters.ToolSpec{scoringTool}, cfg)
		if err != nil {
			if e.opts.Logger != nil {
				e.opts.Logger.Debug("judge call failed", "vote", i+1, "error", err)
			}
			parseFailures++
			continue
		}

		if e.opts.EstimateCost != nil {
			if cost := e.opts.EstimateCost(settings.model, res.Usage.InputTokens, res.Usage.OutputTokens); cost != nil {
				totalCost += *cost
			}
		}

		vote := judge.ExtractScores(res, criteria)
		if vote == nil {
			parseFailures++
			continue
		}
		votes = append(votes, vote)
	}

	if len(votes) == 0 {
		return models.EvalResult{
			AssertionType: "judge",
			Weight:        weight,
			Required:      assertion.Required,
			Details:       fmt.Sprintf("judge_parse_failed: %d/%d calls failed", parseFailures, settings.k),
			Metadata: map[string]any{
				"judge_model":    settings.model,
				"judge_k":        settings.k,
				"judge_cost_usd": totalCost,
			},
		}, nil
	}

	overall, majorityPassed, perCriterion := judge.AggregateVotes(votes, criteria, threshold)

	summary := make([]string, 0, len(perCriterion))
	for _, d := range perCriterion {
		summary = append(summary, fmt.Sprintf("%s=%.2f", d.Name, d.MedianScore))
	}
	details := fmt.Sprintf("judge=%s k=%d votes=%d/%d | judge_cost=$%.6f | %s",
		settings.model, settings.k, len(votes), settings.k, totalCost,
		strings.Join(summary, ", "))

	return models.EvalResult{
		AssertionType: "judge",
		Score:         overall,
		Passed:        majorityPassed,
		Weight:        weight,
		Required:      assertion.Required,
		Details:       details,
		Metadata: map[string]any{
			"judge_model":    settings.model,
			"judge_k":        settings.k,
			"judge_cost_usd": totalCost,
			"per_criterion":  perCriterion,
		},
	}, nil
}
