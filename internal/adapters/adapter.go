// Package adapters defines the provider-neutral adapter contract and the
// OpenAI and Anthropic implementations behind it.
//
// An Adapter exchanges exactly one conversation turn with a model: it takes
// the transcript so far plus the available tool specs and returns the
// model's reply, including any tool calls, token usage, and the raw
// provider response for debugging. Adapters are stateless between calls;
// the execution layer owns the conversation.
package adapters

import (
	"context"
	"encoding/json"
)

// Message roles in the provider-neutral transcript.
const (
	RoleSystem     = "system"
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool_result"
)

// ToolCall is a provider-neutral tool invocation requested by the model.
// Arguments are already decoded from the provider's wire format.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// TokenUsage counts tokens consumed by a single turn.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Message is one entry of the conversation sent to the provider.
// Role is one of system, user, assistant, or tool_result; tool_result
// messages carry the ToolCallID and ToolName they answer.
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolSpec describes a tool the model may call. Parameters is a JSON
// Schema object; each adapter maps it to its provider's tool format.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Config carries per-request model parameters. Pointer fields distinguish
// "unset" from explicit zero values. Extras holds provider-specific knobs;
// adapters map well-known keys (currently tool_choice) and ignore the rest.
type Config struct {
	Model       string         `json:"model"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Seed        *int           `json:"seed,omitempty"`
	Extras      map[string]any `json:"extras,omitempty"`
}

// TurnResult is the model's reply to a single turn. Content is nil when
// the model produced no text (a tool-call-only turn). RawResponse is the
// provider's response serialized verbatim for debugging.
type TurnResult struct {
	Content      *string         `json:"content"`
	ToolCalls    []ToolCall      `json:"tool_calls,omitempty"`
	Usage        TokenUsage      `json:"usage"`
	RawResponse  json.RawMessage `json:"raw_response,omitempty"`
	FinishReason string          `json:"finish_reason"`
}

// Adapter is the contract every model provider implements.
type Adapter interface {
	// SendTurn sends the transcript and tool specs to the provider and
	// returns the model's next message. Errors are classified via Classify
	// for retry decisions.
	SendTurn(ctx context.Context, messages []Message, tools []ToolSpec, cfg Config) (*TurnResult, error)

	// ProviderName returns the canonical provider name ("openai",
	// "anthropic") recorded on traces and used for metrics labels.
	ProviderName() string
}

// ExtrasToolChoice is the well-known Extras key adapters map onto the
// provider's forced-tool-choice parameter.
const ExtrasToolChoice = "tool_choice"
