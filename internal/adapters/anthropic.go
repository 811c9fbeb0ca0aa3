package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicAdapter drives Anthropic's Messages API. Anthropic has no
// dedicated system role in the message list and no tool role at all, so
// conversion hoists system prompts into the request's System field and
// wraps tool results in user-role tool_result blocks.
type AnthropicAdapter struct {
	apiKey string

	mu     sync.Mutex
	client *anthropic.Client
}

// AnthropicOption configures an AnthropicAdapter.
type AnthropicOption func(*AnthropicAdapter)

// WithAnthropicAPIKey overrides the ANTHROPIC_API_KEY environment variable.
func WithAnthropicAPIKey(key string) AnthropicOption {
	return func(a *AnthropicAdapter) { a.apiKey = key }
}

// NewAnthropicAdapter returns an adapter for Anthropic models. The client
// is created lazily on the first SendTurn so that construction never fails.
func NewAnthropicAdapter(opts ...AnthropicOption) *AnthropicAdapter {
	a := &AnthropicAdapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProviderName implements Adapter.
func (a *AnthropicAdapter) ProviderName() string { return "anthropic" }

func (a *AnthropicAdapter) getClient() (*anthropic.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	key := a.apiKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, &AdapterError{
			Reason:   ReasonAuthentication,
			Provider: "anthropic",
			Message:  "ANTHROPIC_API_KEY is not set",
		}
	}
	client := anthropic.NewClient(option.WithAPIKey(key))
	a.client = &client
	return a.client, nil
}

// SendTurn implements Adapter.
func (a *AnthropicAdapter) SendTurn(ctx context.Context, messages []Message, tools []ToolSpec, cfg Config) (*TurnResult, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}

	converted, system, err := convertAnthropicMessages(messages)
	if err != nil {
		return nil, NewAdapterError("anthropic", cfg.Model, err)
	}

	maxTokens := defaultAnthropicMaxTokens
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages:  converted,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*cfg.Temperature)
	}
	if len(tools) > 0 {
		sdkTools, err := convertAnthropicTools(tools)
		if err != nil {
			return nil, NewAdapterError("anthropic", cfg.Model, err)
		}
		params.Tools = sdkTools
	}
	if raw, ok := cfg.Extras[ExtrasToolChoice]; ok {
		choice, err := convertAnthropicToolChoice(raw)
		if err != nil {
			return nil, NewAdapterError("anthropic", cfg.Model, err)
		}
		if choice != nil {
			params.ToolChoice = *choice
		}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, NewAdapterError("anthropic", cfg.Model, err)
	}
	if msg == nil {
		return nil, &AdapterError{
			Reason:   ReasonServerError,
			Provider: "anthropic",
			Model:    cfg.Model,
			Message:  "response message is nil",
		}
	}

	result := &TurnResult{FinishReason: string(msg.StopReason)}
	var textParts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, NewAdapterError("anthropic", cfg.Model,
						fmt.Errorf("decode tool_use input for %q: %w", block.Name, err))
				}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	if len(textParts) > 0 {
		joined := strings.Join(textParts, "\n")
		result.Content = &joined
	}
	result.Usage = TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	if raw, err := json.Marshal(msg); err == nil {
		result.RawResponse = raw
	}
	return result, nil
}

// convertAnthropicMessages splits the transcript into the API's message
// list and the request-level system prompt. The last system message wins
// when a scenario somehow carries more than one.
func convertAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string, error) {
	var converted []anthropic.MessageParam
	var system string
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Content != nil {
				system = *msg.Content
			}
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != nil && *msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(*msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			converted = append(converted, anthropic.NewAssistantMessage(blocks...))
		case RoleToolResult:
			content := ""
			if msg.Content != nil {
				content = *msg.Content
			}
			converted = append(converted, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, content, false),
			))
		default:
			content := ""
			if msg.Content != nil {
				content = *msg.Content
			}
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	return converted, system, nil
}

func convertAnthropicTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for tool %q: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("convert schema for tool %q: %w", t.Name, err)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, tool)
	}
	return out, nil
}

// convertAnthropicToolChoice accepts the provider-agnostic extras value.
// Maps use the Anthropic wire shape ({"type": "tool", "name": ...});
// plain strings name the mode directly.
func convertAnthropicToolChoice(raw any) (*anthropic.ToolChoiceUnionParam, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return anthropicToolChoiceMode(v, "")
	case map[string]any:
		mode, _ := v["type"].(string)
		name, _ := v["name"].(string)
		return anthropicToolChoiceMode(mode, name)
	default:
		return nil, fmt.Errorf("unsupported tool_choice value of type %T", raw)
	}
}

func anthropicToolChoiceMode(mode, name string) (*anthropic.ToolChoiceUnionParam, error) {
	switch mode {
	case "auto", "":
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, nil
	case "any", "required":
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil
	case "none":
		return &anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}, nil
	case "tool":
		if name == "" {
			return nil, fmt.Errorf("tool_choice type %q requires a name", mode)
		}
		choice := anthropic.ToolChoiceParamOfTool(name)
		return &choice, nil
	default:
		return nil, fmt.Errorf("unsupported tool_choice type %q", mode)
	}
}
