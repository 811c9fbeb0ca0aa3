package models

import "time"

// Message roles recorded in a trace.
const (
	RoleSystem     = "system"
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool_result"
)

// TraceToolCall records a single tool invocation requested by the model.
// When a message's tool-call list exceeds the storage size limit, the list
// is replaced by a single marker entry with Truncated set and OriginalCount
// holding the number of calls that were dropped.
type TraceToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`

	Truncated     bool `json:"truncated,omitempty"`
	OriginalCount int  `json:"original_count,omitempty"`
}

// TraceMessage is one message in the conversation transcript.
// Content is a pointer because assistant messages may legitimately carry
// no text (tool-call-only turns) and that is distinct from empty text.
type TraceMessage struct {
	Role       string          `json:"role"`
	Content    *string         `json:"content"`
	ToolCalls  []TraceToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
}

// RunTrace is the complete record of a single scenario execution: the
// full transcript, every tool call in order, token and cost accounting,
// and provenance metadata. Traces round-trip losslessly through JSON;
// CostUSD stays a pointer because an unknown cost is never zero.
type RunTrace struct {
	Messages       []TraceMessage  `json:"messages"`
	ToolCallsMade  []TraceToolCall `json:"tool_calls_made"`
	TurnCount      int             `json:"turn_count"`
	InputTokens    int             `json:"input_tokens"`
	OutputTokens   int             `json:"output_tokens"`
	TotalTokens    int             `json:"total_tokens"`
	LatencySeconds float64         `json:"latency_seconds"`
	FinalContent   *string         `json:"final_content"`
	FinishReason   string          `json:"finish_reason"`
	Model          string          `json:"model"`
	Provider       string          `json:"provider"`
	Timestamp      time.Time       `json:"timestamp"`
	ScenarioHash   string          `json:"scenario_hash"`
	CostUSD        *float64        `json:"cost_usd"`
	ExtrasResolved map[string]any  `json:"extras_resolved,omitempty"`
	MaxTurnsHit    bool            `json:"max_turns_hit"`
}
