// Package models defines the shared data model for scenarios, traces,
// evaluation results, and trial suites. These types encode the user-facing
// YAML contract as well as everything Salvo persists under .salvo/.
package models

import (
	"encoding/json"
	"fmt"
)

// Scenario defaults applied when the YAML omits a field.
const (
	DefaultAdapter   = "openai"
	DefaultThreshold = 0.8
	DefaultMaxTurns  = 10
)

// Tool sequence matching modes.
const (
	ModeExact    = "exact"
	ModeInOrder  = "in_order"
	ModeAnyOrder = "any_order"
)

// Assertion type names recognized by the evaluator registry and the
// normalizer sugar expansion.
const (
	AssertionPathQuery      = "jmespath"
	AssertionToolSequence   = "tool_sequence"
	AssertionCostLimit      = "cost_limit"
	AssertionLatencyLimit   = "latency_limit"
	AssertionJudge          = "judge"
	AssertionToolCalled     = "tool_called"
	AssertionOutputContains = "output_contains"
)

// ToolParameter is the JSON Schema subset describing a tool's arguments.
type ToolParameter struct {
	Type       string         `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"enum=object"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
	Required   []string       `yaml:"required,omitempty" json:"required,omitempty"`
}

// ToolDef defines a tool available to the agent during a scenario run.
// MockResponse is returned verbatim whenever the model calls the tool:
// strings pass through as-is, structured values are serialized to JSON.
type ToolDef struct {
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters   ToolParameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	MockResponse any           `yaml:"mock_response,omitempty" json:"mock_response,omitempty"`
}

// Criterion is a single dimension scored by the LLM judge.
type Criterion struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Weight      float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// Assertion is a single check evaluated against a run trace.
//
// Three surface forms are accepted and reduced to canonical form by the
// normalizer in internal/evaluation:
//
//   - canonical: {type: jmespath, expression: ..., operator: ..., value: ...}
//   - sugar types: tool_called / output_contains
//   - operator-key shorthand: {path: ..., eq: ...} with exactly one of
//     eq/ne/gt/gte/lt/lte/contains/regex
//
// Judge assertions carry their own criteria plus optional overrides of the
// project-level judge configuration.
type Assertion struct {
	Type     string  `yaml:"type,omitempty" json:"type,omitempty"`
	Weight   float64 `yaml:"weight,omitempty" json:"weight,omitempty" jsonschema:"minimum=0"`
	Required bool    `yaml:"required,omitempty" json:"required,omitempty"`

	// tool_called sugar.
	Tool string `yaml:"tool,omitempty" json:"tool,omitempty"`

	// tool_sequence.
	Mode     string   `yaml:"mode,omitempty" json:"mode,omitempty" jsonschema:"enum=exact,enum=in_order,enum=any_order"`
	Sequence []string `yaml:"sequence,omitempty" json:"sequence,omitempty"`

	// Canonical path-query form.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Operator   string `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value      any    `yaml:"value,omitempty" json:"value,omitempty"`

	// Operator-key shorthand. Path defaults to response.content.
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	Eq       any    `yaml:"eq,omitempty" json:"eq,omitempty"`
	Ne       any    `yaml:"ne,omitempty" json:"ne,omitempty"`
	Gt       any    `yaml:"gt,omitempty" json:"gt,omitempty"`
	Gte      any    `yaml:"gte,omitempty" json:"gte,omitempty"`
	Lt       any    `yaml:"lt,omitempty" json:"lt,omitempty"`
	Lte      any    `yaml:"lte,omitempty" json:"lte,omitempty"`
	Contains any    `yaml:"contains,omitempty" json:"contains,omitempty"`
	Regex    any    `yaml:"regex,omitempty" json:"regex,omitempty"`

	// Budget limits.
	MaxUSD     *float64 `yaml:"max_usd,omitempty" json:"max_usd,omitempty" jsonschema:"minimum=0"`
	MaxSeconds *float64 `yaml:"max_seconds,omitempty" json:"max_seconds,omitempty" jsonschema:"minimum=0"`

	// Judge configuration. Unset fields fall back to the project-level
	// judge config, then to built-in defaults.
	Criteria            []Criterion `yaml:"criteria,omitempty" json:"criteria,omitempty"`
	JudgeAdapter        string      `yaml:"judge_adapter,omitempty" json:"judge_adapter,omitempty"`
	JudgeModel          string      `yaml:"judge_model,omitempty" json:"judge_model,omitempty"`
	K                   *int        `yaml:"k,omitempty" json:"k,omitempty" jsonschema:"minimum=1,maximum=21"`
	Temperature         *float64    `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens           *int        `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"minimum=1"`
	Threshold           *float64    `yaml:"threshold,omitempty" json:"threshold,omitempty" jsonschema:"minimum=0,maximum=1"`
	IncludeSystemPrompt bool        `yaml:"include_system_prompt,omitempty" json:"include_system_prompt,omitempty"`
	CustomPrompt        string      `yaml:"custom_prompt,omitempty" json:"custom_prompt,omitempty"`
}

// Scenario is a complete test definition loaded from YAML. It is the
// user-facing contract: model configuration, prompts, mocked tools, and
// the assertions evaluated against each run.
type Scenario struct {
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	Tags         map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Adapter      string            `yaml:"adapter,omitempty" json:"adapter,omitempty"`
	Model        string            `yaml:"model" json:"model"`
	SystemPrompt string            `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Prompt       string            `yaml:"prompt" json:"prompt"`
	Tools        []ToolDef         `yaml:"tools,omitempty" json:"tools,omitempty"`
	Assertions   []Assertion       `yaml:"assertions,omitempty" json:"assertions,omitempty"`
	Threshold    float64           `yaml:"threshold,omitempty" json:"threshold,omitempty" jsonschema:"minimum=0,maximum=1"`
	MaxTurns     int               `yaml:"max_turns,omitempty" json:"max_turns,omitempty" jsonschema:"minimum=1,maximum=100"`
	Temperature  *float64          `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Seed         *int              `yaml:"seed,omitempty" json:"seed,omitempty"`
	Extras       map[string]any    `yaml:"extras,omitempty" json:"extras,omitempty"`
}

// ApplyDefaults fills adapter, threshold, and max-turns when unset.
// Zero values are treated as unset; the loader decodes YAML into an
// already-defaulted struct, so explicit zeros in a file survive there.
func (s *Scenario) ApplyDefaults() {
	if s.Adapter == "" {
		s.Adapter = DefaultAdapter
	}
	if s.Threshold == 0 {
		s.Threshold = DefaultThreshold
	}
	if s.MaxTurns == 0 {
		s.MaxTurns = DefaultMaxTurns
	}
}

// Validate enforces required fields and value ranges. The loader performs
// the same checks through JSON Schema with source positions; Validate covers
// scenarios constructed programmatically or restored from snapshots.
func (s *Scenario) Validate() error {
	if s.Model == "" {
		return fmt.Errorf("scenario: model is required")
	}
	if s.Prompt == "" {
		return fmt.Errorf("scenario: prompt is required")
	}
	if s.Threshold < 0 || s.Threshold > 1 {
		return fmt.Errorf("scenario: threshold %v out of range [0, 1]", s.Threshold)
	}
	if s.MaxTurns < 1 || s.MaxTurns > 100 {
		return fmt.Errorf("scenario: max_turns %d out of range [1, 100]", s.MaxTurns)
	}
	for i, tool := range s.Tools {
		if tool.Name == "" {
			return fmt.Errorf("scenario: tools[%d] missing name", i)
		}
	}
	return nil
}

// CanonicalJSON returns a deterministic JSON encoding of the scenario:
// struct fields in declaration order, map keys sorted by encoding/json.
// This is the input to the scenario hash stored on every trace.
func (s *Scenario) CanonicalJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Name returns the scenario's display name: the description when present,
// otherwise the first 50 characters of the prompt.
func (s *Scenario) Name() string {
	if s.Description != "" {
		return s.Description
	}
	runes := []rune(s.Prompt)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return string(runes)
}
