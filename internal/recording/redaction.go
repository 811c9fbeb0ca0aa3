package recording

import (
	"fmt"
	"regexp"

	"github.com/jherleth/salvo-ai/internal/execution"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// ContentExcluded replaces message content in metadata-only recordings.
const ContentExcluded = "[CONTENT_EXCLUDED]"

// BuildPipeline returns a redaction function combining the built-in
// secret patterns with custom ones from salvo.yaml. Custom patterns
// extend the built-ins, never replace them, and are compiled up front
// so a bad pattern fails at configuration time instead of mid-run.
func BuildPipeline(customPatterns []string) (func(string) string, error) {
	customs := make([]*regexp.Regexp, 0, len(customPatterns))
	for _, p := range customPatterns {
		compiled, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid custom redaction pattern %q: %w", p, err)
		}
		customs = append(customs, compiled)
	}
	return func(content string) string {
		content = execution.Redact(content)
		for _, pattern := range customs {
			content = pattern.ReplaceAllString(content, execution.RedactedPlaceholder)
		}
		return content
	}, nil
}

// ApplyPipeline runs the redaction function over every message's content
// and the trace's final content, returning a new trace. Tool calls,
// counters, and provenance fields are shared with the input.
func ApplyPipeline(trace *models.RunTrace, redact func(string) string) *models.RunTrace {
	if trace == nil || redact == nil {
		return trace
	}
	out := *trace
	out.Messages = make([]models.TraceMessage, len(trace.Messages))
	for i, msg := range trace.Messages {
		if msg.Content != nil {
			redacted := redact(*msg.Content)
			msg.Content = &redacted
		}
		out.Messages[i] = msg
	}
	if trace.FinalContent != nil {
		final := redact(*trace.FinalContent)
		out.FinalContent = &final
	}
	return &out
}

// StripForMetadataOnly blanks message content and tool-call arguments
// while keeping roles, ids, names, token counts, and timing. The final
// content is dropped entirely. Applies to both the per-message tool
// calls and the trace-level call list; metadata_only means no transcript
// content anywhere in the recording.
func StripForMetadataOnly(trace *models.RunTrace) *models.RunTrace {
	if trace == nil {
		return nil
	}
	out := *trace
	out.Messages = make([]models.TraceMessage, len(trace.Messages))
	for i, msg := range trace.Messages {
		if msg.Content != nil {
			excluded := ContentExcluded
			msg.Content = &excluded
		}
		msg.ToolCalls = stripToolCalls(msg.ToolCalls)
		out.Messages[i] = msg
	}
	out.ToolCallsMade = stripToolCalls(trace.ToolCallsMade)
	out.FinalContent = nil
	return &out
}

func stripToolCalls(calls []models.TraceToolCall) []models.TraceToolCall {
	if calls == nil {
		return nil
	}
	out := make([]models.TraceToolCall, len(calls))
	for i, tc := range calls {
		tc.Arguments = nil
		out[i] = tc
	}
	return out
}
