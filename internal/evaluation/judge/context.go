package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jherleth/salvo-ai/pkg/models"
)

const (
	maxSystemPromptChars = 2000
	maxArgumentChars     = 100
)

// BuildContext assembles the markdown block the judge model sees: the
// agent's final response and a tool-call summary, plus the scenario system
// prompt and available tools when includeSystemPrompt is set.
func BuildContext(trace *models.RunTrace, scenario *models.Scenario, includeSystemPrompt bool) string {
	var sections []string

	if includeSystemPrompt && scenario != nil {
		sp := scenario.SystemPrompt
		if len(sp) > maxSystemPromptChars {
			sp = sp[:maxSystemPromptChars] + "..."
		}
		sections = append(sections, "## Scenario System Prompt\n\n"+sp)

		if len(scenario.Tools) > 0 {
			toolLines := make([]string, 0, len(scenario.Tools))
			for _, t := range scenario.Tools {
				toolLines = append(toolLines, fmt.Sprintf("- **%s**: %s", t.Name, t.Description))
			}
			sections = append(sections, "## Available Tools\n\n"+strings.Join(toolLines, "\n"))
		}
	}

	final := "(empty)"
	if trace.FinalContent != nil && *trace.FinalContent != "" {
		final = *trace.FinalContent
	}
	sections = append(sections, "## Agent's Final Response\n\n"+final)

	sections = append(sections, "## Tool Calls Made\n\n"+BuildToolCallSummary(trace, maxArgumentChars))

	return strings.Join(sections, "\n\n")
}

// BuildToolCallSummary lists the trace's tool calls, one numbered line per
// call, with stringified arguments capped at maxArgLength characters.
func BuildToolCallSummary(trace *models.RunTrace, maxArgLength int) string {
	if len(trace.ToolCallsMade) == 0 {
		return "No tool calls were made."
	}

	lines := make([]string, 0, len(trace.ToolCallsMade))
	for i, tc := range trace.ToolCallsMade {
		name := tc.Name
		if name == "" {
			name = "unknown"
		}
		args := "{}"
		if tc.Arguments != nil {
			if raw, err := json.Marshal(tc.Arguments); err == nil {
				args = string(raw)
			}
		}
		if len(args) > maxArgLength {
			args = args[:maxArgLength] + "..."
		}
		lines = append(lines, fmt.Sprintf("%d. %s(%s)", i+1, name, args))
	}
	return strings.Join(lines, "\n")
}
