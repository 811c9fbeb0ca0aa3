package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jherleth/salvo-ai/internal/adapters"
	"github.com/jherleth/salvo-ai/internal/observability"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// ToolMockNotFoundError is raised when the model calls a tool that has no
// mock_response defined. It is fatal for the trial: without a mock the
// conversation cannot continue deterministically.
type ToolMockNotFoundError struct {
	ToolName       string
	AvailableMocks []string
}

func (e *ToolMockNotFoundError) Error() string {
	available := "none"
	if len(e.AvailableMocks) > 0 {
		names := append([]string(nil), e.AvailableMocks...)
		sort.Strings(names)
		available = strings.Join(names, ", ")
	}
	return fmt.Sprintf("model called tool %q but no mock_response is defined; available mocks: %s",
		e.ToolName, available)
}

// ScenarioRunner drives the multi-turn conversation loop for one scenario
// execution. It feeds mock tool responses back into the conversation until
// the model produces a final answer (no tool calls) or the max-turns
// safety net is hit.
type ScenarioRunner struct {
	adapter adapters.Adapter
	logger  *slog.Logger
	tracer  *observability.Tracer
	metrics *observability.Metrics
}

// NewScenarioRunner builds a runner around an adapter. Tracer and metrics
// are optional; nil values record nothing.
func NewScenarioRunner(adapter adapters.Adapter, logger *slog.Logger, tracer *observability.Tracer, metrics *observability.Metrics) *ScenarioRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScenarioRunner{
		adapter: adapter,
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
	}
}

// ScenarioHash returns the SHA-256 hex digest of the scenario's canonical
// JSON. Recorded on every trace so re-evaluation can detect drift between
// the recorded scenario and the file on disk.
func ScenarioHash(s *models.Scenario) (string, error) {
	raw, err := s.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("hash scenario: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Run executes the scenario and returns the full run trace. It returns a
// *ToolMockNotFoundError when the model calls an unmocked tool, or the
// adapter's error when a turn fails.
func (r *ScenarioRunner) Run(ctx context.Context, scenario *models.Scenario, cfg adapters.Config) (*models.RunTrace, error) {
	maxTurns := scenario.MaxTurns
	if maxTurns <= 0 {
		maxTurns = models.DefaultMaxTurns
	}

	messages := make([]adapters.Message, 0, 2)
	if scenario.SystemPrompt != "" {
		system := scenario.SystemPrompt
		messages = append(messages, adapters.Message{Role: adapters.RoleSystem, Content: &system})
	}
	prompt := scenario.Prompt
	messages = append(messages, adapters.Message{Role: adapters.RoleUser, Content: &prompt})

	toolSpecs := buildToolSpecs(scenario.Tools)
	mocks := buildMockResponses(scenario.Tools)
	provider := r.adapter.ProviderName()

	var totalUsage adapters.TokenUsage
	var allToolCalls []models.TraceToolCall
	var result *adapters.TurnResult
	turnCount := 0
	start := time.Now()

	for turn := 0; turn < maxTurns; turn++ {
		turnCount++

		llmCtx, span := r.tracer.StartLLMRequest(ctx, provider, cfg.Model)
		turnStart := time.Now()
		res, err := r.adapter.SendTurn(llmCtx, messages, toolSpecs, cfg)
		turnSeconds := time.Since(turnStart).Seconds()
		if err != nil {
			r.tracer.RecordError(span, err)
			span.End()
			r.metrics.RecordLLMRequest(provider, cfg.Model, "error", turnSeconds, 0, 0)
			return nil, err
		}
		span.End()
		r.metrics.RecordLLMRequest(provider, cfg.Model, "success", turnSeconds,
			res.Usage.InputTokens, res.Usage.OutputTokens)

		result = res
		totalUsage.InputTokens += res.Usage.InputTokens
		totalUsage.OutputTokens += res.Usage.OutputTokens
		totalUsage.TotalTokens += res.Usage.TotalTokens

		messages = append(messages, adapters.Message{
			Role:      adapters.RoleAssistant,
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})

		// No tool calls means the model produced its final answer.
		if len(res.ToolCalls) == 0 {
			break
		}

		r.logger.Debug("processing tool calls",
			"turn", turnCount, "count", len(res.ToolCalls))

		for _, tc := range res.ToolCalls {
			mock, ok := mocks[tc.Name]
			if !ok {
				return nil, &ToolMockNotFoundError{
					ToolName:       tc.Name,
					AvailableMocks: mockNames(mocks),
				}
			}
			content := serializeMock(mock)
			messages = append(messages, adapters.Message{
				Role:       adapters.RoleToolResult,
				Content:    &content,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}

		for _, tc := range res.ToolCalls {
			allToolCalls = append(allToolCalls, models.TraceToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
	}

	elapsed := time.Since(start).Seconds()
	maxTurnsHit := turnCount >= maxTurns && result != nil && len(result.ToolCalls) > 0

	hash, err := ScenarioHash(scenario)
	if err != nil {
		return nil, err
	}

	finishReason := "error"
	var finalContent *string
	if result != nil {
		finishReason = result.FinishReason
		finalContent = result.Content
	}

	return &models.RunTrace{
		Messages:       toTraceMessages(messages),
		ToolCallsMade:  allToolCalls,
		TurnCount:      turnCount,
		InputTokens:    totalUsage.InputTokens,
		OutputTokens:   totalUsage.OutputTokens,
		TotalTokens:    totalUsage.TotalTokens,
		LatencySeconds: elapsed,
		FinalContent:   finalContent,
		FinishReason:   finishReason,
		Model:          cfg.Model,
		Provider:       provider,
		Timestamp:      time.Now().UTC(),
		ScenarioHash:   hash,
		CostUSD:        EstimateCost(cfg.Model, totalUsage.InputTokens, totalUsage.OutputTokens),
		ExtrasResolved: cfg.Extras,
		MaxTurnsHit:    maxTurnsHit,
	}, nil
}

func buildToolSpecs(tools []models.ToolDef) []adapters.ToolSpec {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]adapters.ToolSpec, 0, len(tools))
	for _, tool := range tools {
		params := map[string]any{"type": "object"}
		if tool.Parameters.Type != "" {
			params["type"] = tool.Parameters.Type
		}
		props := tool.Parameters.Properties
		if props == nil {
			props = map[string]any{}
		}
		params["properties"] = props
		if len(tool.Parameters.Required) > 0 {
			params["required"] = tool.Parameters.Required
		}
		specs = append(specs, adapters.ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return specs
}

func buildMockResponses(tools []models.ToolDef) map[string]any {
	mocks := make(map[string]any)
	for _, tool := range tools {
		if tool.MockResponse != nil {
			mocks[tool.Name] = tool.MockResponse
		}
	}
	return mocks
}

func mockNames(mocks map[string]any) []string {
	names := make([]string, 0, len(mocks))
	for name := range mocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// serializeMock turns a mock response into the tool-result string fed back
// to the model: strings pass through, structured values become JSON.
func serializeMock(mock any) string {
	switch v := mock.(type) {
	case string:
		return v
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toTraceMessages(messages []adapters.Message) []models.TraceMessage {
	out := make([]models.TraceMessage, len(messages))
	for i, msg := range messages {
		var calls []models.TraceToolCall
		for _, tc := range msg.ToolCalls {
			calls = append(calls, models.TraceToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		out[i] = models.TraceMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  calls,
			ToolCallID: msg.ToolCallID,
			ToolName:   msg.ToolName,
		}
	}
	return out
}
