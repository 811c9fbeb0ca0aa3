package execution

import (
	"encoding/json"
	"regexp"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// RedactionPatterns match common secret formats in trace message content.
// Order matters: bearer tokens must be caught before the general
// credential pattern rewrites only the value part.
var RedactionPatterns = []string{
	`(?i)bearer\s+[a-zA-Z0-9._-]+`,
	`sk-[a-zA-Z0-9]{20,}`,
	`(?i)(api[_-]?key|secret|password|token|authorization)\s*[:=]\s*\S+`,
	`(?i)cookie:\s*\S+`,
	`(?i)set-cookie:\s*\S+`,
	`(?i)x-api-key:\s*\S+`,
	`sk-ant-[a-zA-Z0-9-]{20,}`,
	`ghp_[a-zA-Z0-9]{36}`,
	`gho_[a-zA-Z0-9]{36}`,
}

var compiledPatterns = compilePatterns(RedactionPatterns)

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// RedactedPlaceholder replaces matched secrets.
const RedactedPlaceholder = "[REDACTED]"

// Size limits for trace storage.
const (
	// MaxMessageContentSize caps a single message's content in characters.
	MaxMessageContentSize = 50_000
	// MaxToolCallsSize caps a message's serialized tool-call list in bytes.
	MaxToolCallsSize = 100_000
	// MaxTraceTotalSize is the overall trace budget in bytes.
	MaxTraceTotalSize = 5_000_000
)

// Redact replaces secret patterns in content with the placeholder.
func Redact(content string) string {
	for _, pattern := range compiledPatterns {
		content = pattern.ReplaceAllString(content, RedactedPlaceholder)
	}
	return content
}

// Truncate limits content to maxChars characters, appending a notice when
// anything was cut.
func Truncate(content string, maxChars int) string {
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	return string(runes[:maxChars]) + "... [truncated]"
}

// ApplyTraceLimits returns a sanitized copy of the trace: every message's
// content is redacted and truncated, and oversized per-message tool-call
// lists are replaced by a truncation marker. The input trace is not
// modified.
func ApplyTraceLimits(trace *models.RunTrace) *models.RunTrace {
	if trace == nil {
		return nil
	}
	sanitized := *trace
	sanitized.Messages = make([]models.TraceMessage, len(trace.Messages))

	for i, msg := range trace.Messages {
		clean := msg

		if msg.Content != nil {
			content := Truncate(Redact(*msg.Content), MaxMessageContentSize)
			clean.Content = &content
		}

		if msg.ToolCalls != nil {
			if serialized, err := json.Marshal(msg.ToolCalls); err == nil && len(serialized) > MaxToolCallsSize {
				clean.ToolCalls = []models.TraceToolCall{{
					Truncated:     true,
					OriginalCount: len(msg.ToolCalls),
				}}
			}
		}

		sanitized.Messages[i] = clean
	}

	return &sanitized
}
