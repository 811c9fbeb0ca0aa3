package judge

import (
	"reflect"
	"strings"
	"testing"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func TestBuildCriteriaBlock(t *testing.T) {
	criteria := []models.Criterion{
		{Name: "accuracy", Description: "The answer is correct.", Weight: 2},
		{Name: "tone", Description: "The answer is polite.", Weight: 1.5},
		{Name: "brevity", Description: "The answer is short."},
	}

	block := BuildCriteriaBlock(criteria)
	want := "- **accuracy** (weight: 2): The answer is correct.\n" +
		"- **tone** (weight: 1.5): The answer is polite.\n" +
		"- **brevity** (weight: 1): The answer is short."
	if block != want {
		t.Errorf("BuildCriteriaBlock() = %q, want %q", block, want)
	}
}

func TestBuildSystemPromptContainsAnchorsAndCriteria(t *testing.T) {
	prompt := BuildSystemPrompt([]models.Criterion{{Name: "accuracy", Description: "Correct."}})

	for _, anchor := range []string{"**0.0**", "**0.25**", "**0.5**", "**0.75**", "**1.0**"} {
		if !strings.Contains(prompt, anchor) {
			t.Errorf("system prompt missing anchor %s", anchor)
		}
	}
	if !strings.Contains(prompt, "- **accuracy** (weight: 1): Correct.") {
		t.Error("system prompt missing criteria block")
	}
	if !strings.Contains(prompt, "score_criteria tool") {
		t.Error("system prompt missing tool instruction")
	}
}

func TestBuildUserPromptWrapsContext(t *testing.T) {
	prompt := BuildUserPrompt("## Agent's Final Response\n\nhello")
	if !strings.Contains(prompt, "## Agent's Final Response\n\nhello") {
		t.Error("user prompt missing context block")
	}
	if !strings.Contains(prompt, "score_criteria") {
		t.Error("user prompt missing tool reminder")
	}
}

func TestBuildScoringTool(t *testing.T) {
	criteria := []models.Criterion{
		{Name: "accuracy", Description: "Correct."},
		{Name: "tone", Description: "Polite."},
	}

	tool := BuildScoringTool(criteria)
	if tool.Name != ScoringToolName {
		t.Errorf("tool name = %q, want %s", tool.Name, ScoringToolName)
	}

	required, ok := tool.Parameters["required"].([]string)
	if !ok || !reflect.DeepEqual(required, []string{"accuracy", "tone"}) {
		t.Errorf("required = %v, want both criteria", tool.Parameters["required"])
	}

	properties := tool.Parameters["properties"].(map[string]any)
	entry, ok := properties["accuracy"].(map[string]any)
	if !ok {
		t.Fatal("accuracy property missing")
	}
	inner := entry["properties"].(map[string]any)
	if _, ok := inner["score"]; !ok {
		t.Error("score property missing")
	}
	if _, ok := inner["reasoning"]; !ok {
		t.Error("reasoning property missing")
	}
	innerRequired, ok := entry["required"].([]string)
	if !ok || !reflect.DeepEqual(innerRequired, []string{"score", "reasoning"}) {
		t.Errorf("per-criterion required = %v", entry["required"])
	}
}

func TestFormatToolChoice(t *testing.T) {
	openai := FormatToolChoice("openai", ScoringToolName)
	choice, ok := openai["tool_choice"].(map[string]any)
	if !ok || choice["type"] != "function" {
		t.Errorf("openai tool choice = %v", openai)
	}
	fn := choice["function"].(map[string]any)
	if fn["name"] != ScoringToolName {
		t.Errorf("openai function name = %v", fn["name"])
	}

	anthropic := FormatToolChoice("Anthropic", ScoringToolName)
	choice, ok = anthropic["tool_choice"].(map[string]any)
	if !ok || choice["type"] != "tool" || choice["name"] != ScoringToolName {
		t.Errorf("anthropic tool choice = %v", anthropic)
	}

	if other := FormatToolChoice("custom", ScoringToolName); len(other) != 0 {
		t.Errorf("unknown provider extras = %v, want empty", other)
	}
}
