// Package judge builds the prompts, scoring tool, and vote aggregation
// behind LLM-as-judge assertions. The judge model scores the agent's
// response against named criteria via a forced tool call; k independent
// votes are aggregated with per-criterion medians and a majority verdict.
package judge

import (
	"fmt"
	"strings"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// ScoringToolName is the tool the judge model must call to submit scores.
const ScoringToolName = "score_criteria"

const systemTemplate = `You are an expert evaluator assessing the quality of an AI agent's response.

Evaluate the agent's response against each of the following criteria independently. Score each criterion on a 0.0 to 1.0 scale using these anchors:

- **0.0**: Completely fails to meet the criterion
- **0.25**: Mostly fails, with only minor elements present
- **0.5**: Partially meets the criterion
- **0.75**: Mostly meets the criterion with minor gaps
- **1.0**: Fully meets the criterion

**Criteria to evaluate:**

%s

**Instructions:**
- Evaluate each criterion independently -- do not let one criterion's score influence another.
- Provide specific reasoning for each score referencing the agent's actual output.
- Use the score_criteria tool to submit your evaluation.`

const userTemplate = `Please evaluate the following agent interaction against the criteria defined in your instructions.

%s

Use the score_criteria tool to submit your per-criterion scores and reasoning.`

// BuildCriteriaBlock formats the criteria list, one per line.
func BuildCriteriaBlock(criteria []models.Criterion) string {
	lines := make([]string, 0, len(criteria))
	for _, c := range criteria {
		lines = append(lines, fmt.Sprintf("- **%s** (weight: %g): %s",
			c.Name, criterionWeight(c), c.Description))
	}
	return strings.Join(lines, "\n")
}

// BuildSystemPrompt renders the judge system prompt from the criteria.
func BuildSystemPrompt(criteria []models.Criterion) string {
	return fmt.Sprintf(systemTemplate, BuildCriteriaBlock(criteria))
}

// BuildUserPrompt wraps the trace context block in the user template.
func BuildUserPrompt(contextBlock string) string {
	return fmt.Sprintf(userTemplate, contextBlock)
}

// BuildScoringTool defines the score_criteria tool: one nested object per
// criterion with a numeric score and a reasoning string, all required.
func BuildScoringTool(criteria []models.Criterion) adapters.ToolSpec {
	properties := make(map[string]any, len(criteria))
	required := make([]string, 0, len(criteria))

	for _, c := range criteria {
		required = append(required, c.Name)
		properties[c.Name] = map[string]any{
			"type":        "object",
			"description": fmt.Sprintf("Evaluation for '%s': %s", c.Name, c.Description),
			"properties": map[string]any{
				"score": map[string]any{
					"type":        "number",
					"description": fmt.Sprintf("Score for %s on 0.0-1.0 scale", c.Name),
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Reasoning for the %s score", c.Name),
				},
			},
			"required": []string{"score", "reasoning"},
		}
	}

	return adapters.ToolSpec{
		Name:        ScoringToolName,
		Description: "Submit per-criterion evaluation scores and reasoning.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// FormatToolChoice returns the provider-specific extras that force the
// judge model to call the scoring tool. Unknown providers get no forcing.
func FormatToolChoice(providerName, toolName string) map[string]any {
	lower := strings.ToLower(providerName)

	if strings.Contains(lower, "openai") {
		return map[string]any{
			adapters.ExtrasToolChoice: map[string]any{
				"type":     "function",
				"function": map[string]any{"name": toolName},
			},
		}
	}
	if strings.Contains(lower, "anthropic") {
		return map[string]any{
			adapters.ExtrasToolChoice: map[string]any{
				"type": "tool",
				"name": toolName,
			},
		}
	}
	return map[string]any{}
}

// criterionWeight treats a zero weight as the default 1.0.
func criterionWeight(c models.Criterion) float64 {
	if c.Weight == 0 {
		return 1.0
	}
	return c.Weight
}
