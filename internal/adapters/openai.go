package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to the OpenAI chat completions API through the
// go-openai SDK. The client is created lazily on first use so that
// constructing the adapter (for registry listing, validation) never
// requires credentials.
type OpenAIAdapter struct {
	apiKey string

	mu     sync.Mutex
	client *openai.Client
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*OpenAIAdapter)

// WithOpenAIAPIKey overrides the OPENAI_API_KEY environment variable.
func WithOpenAIAPIKey(key string) OpenAIOption {
	return func(a *OpenAIAdapter) { a.apiKey = key }
}

// NewOpenAIAdapter creates an OpenAI adapter. The API key is resolved from
// options first, then from OPENAI_API_KEY when the first turn is sent.
func NewOpenAIAdapter(opts ...OpenAIOption) *OpenAIAdapter {
	a := &OpenAIAdapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProviderName implements Adapter.
func (a *OpenAIAdapter) ProviderName() string {
	return "openai"
}

func (a *OpenAIAdapter) getClient() (*openai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	key := a.apiKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, &AdapterError{
			Reason:   ReasonAuthentication,
			Provider: "openai",
			Message:  "OPENAI_API_KEY is not set",
		}
	}
	a.client = openai.NewClient(key)
	return a.client, nil
}

// SendTurn implements Adapter. It converts the transcript to OpenAI chat
// messages, issues one non-streaming completion request, and extracts the
// reply, tool calls, and usage.
func (a *OpenAIAdapter) SendTurn(ctx context.Context, messages []Message, tools []ToolSpec, cfg Config) (*TurnResult, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:    cfg.Model,
		Messages: convertOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = convertOpenAITools(tools)
	}
	if cfg.Temperature != nil {
		req.Temperature = float32(*cfg.Temperature)
	}
	if cfg.MaxTokens != nil {
		req.MaxTokens = *cfg.MaxTokens
	}
	if cfg.Seed != nil {
		req.Seed = cfg.Seed
	}
	// tool_choice is the one well-known extras key; the request field is
	// untyped so the caller-provided shape passes through unchanged.
	if choice, ok := cfg.Extras[ExtrasToolChoice]; ok {
		req.ToolChoice = choice
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, NewAdapterError("openai", cfg.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &AdapterError{
			Reason:   ReasonServerError,
			Provider: "openai",
			Model:    cfg.Model,
			Message:  "response contained no choices",
		}
	}

	choice := resp.Choices[0]

	var content *string
	if choice.Message.Content != "" {
		text := choice.Message.Content
		content = &text
	}

	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args, err := decodeToolArguments(tc.Function.Arguments)
		if err != nil {
			return nil, NewAdapterError("openai", cfg.Model,
				fmt.Errorf("decode tool call %s arguments: %w", tc.Function.Name, err))
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		raw = nil
	}

	return &TurnResult{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		RawResponse:  raw,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// convertOpenAIMessages maps the neutral transcript to OpenAI chat roles.
// Assistant tool calls become function-typed tool_calls with re-marshaled
// JSON argument strings; tool_result messages become role "tool".
func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			entry := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			if msg.Content != nil {
				entry.Content = *msg.Content
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					argsJSON = []byte("{}")
				}
				entry.ToolCalls = append(entry.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			out = append(out, entry)
		case RoleToolResult:
			entry := openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
			}
			if msg.Content != nil {
				entry.Content = *msg.Content
			}
			out = append(out, entry)
		default:
			// system and user pass through unchanged.
			entry := openai.ChatCompletionMessage{Role: msg.Role}
			if msg.Content != nil {
				entry.Content = *msg.Content
			}
			out = append(out, entry)
		}
	}
	return out
}

func convertOpenAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func decodeToolArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
