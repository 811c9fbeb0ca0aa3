package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// Reason categorizes why an adapter request failed. The retry layer keys
// off these to decide whether another attempt can succeed.
type Reason string

const (
	// ReasonRateLimit indicates rate limiting (HTTP 429).
	ReasonRateLimit Reason = "rate_limit"

	// ReasonTimeout indicates a request or context deadline expired.
	ReasonTimeout Reason = "timeout"

	// ReasonConnection indicates a network-level failure before any
	// HTTP response (refused, reset, DNS).
	ReasonConnection Reason = "connection"

	// ReasonServerError indicates server-side issues (HTTP 5xx).
	ReasonServerError Reason = "server_error"

	// ReasonInvalidRequest indicates client-side issues (HTTP 400, 422).
	ReasonInvalidRequest Reason = "invalid_request"

	// ReasonAuthentication indicates credential failure (HTTP 401, 403).
	ReasonAuthentication Reason = "authentication"

	// ReasonNotFound indicates an unknown model or endpoint (HTTP 404).
	ReasonNotFound Reason = "not_found"

	// ReasonCanceled indicates the caller canceled the context.
	ReasonCanceled Reason = "canceled"

	// ReasonUnknown indicates an unclassified error.
	ReasonUnknown Reason = "unknown"
)

// IsTransient reports whether retrying may succeed: rate limits, timeouts,
// connection failures, and server errors qualify; everything else is
// permanent for the duration of the run.
func (r Reason) IsTransient() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonConnection, ReasonServerError:
		return true
	default:
		return false
	}
}

// AdapterError is a structured error from a model provider. It captures
// the context the retry layer and trial reporting need.
type AdapterError struct {
	// Reason categorizes the error for retry decisions.
	Reason Reason

	// Provider is the adapter name ("openai", "anthropic").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if one was received.
	Status int

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError wraps a provider error with classification.
func NewAdapterError(provider, model string, cause error) *AdapterError {
	err := &AdapterError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = Classify(cause)
	}
	return err
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *AdapterError) WithStatus(status int) *AdapterError {
	e.Status = status
	if reason := classifyStatus(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithMessage sets the error message.
func (e *AdapterError) WithMessage(msg string) *AdapterError {
	e.Message = msg
	return e
}

// Classify inspects an error and returns its Reason. Typed errors from the
// SDKs, the context package, and the net package are checked first; the
// string fallback catches providers that surface plain errors.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Reason
	}

	var openaiAPIErr *openai.APIError
	if errors.As(err, &openaiAPIErr) {
		if reason := classifyStatus(openaiAPIErr.HTTPStatusCode); reason != ReasonUnknown {
			return reason
		}
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		if reason := classifyStatus(openaiReqErr.HTTPStatusCode); reason != ReasonUnknown {
			return reason
		}
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		if reason := classifyStatus(anthropicErr.StatusCode); reason != ReasonUnknown {
			return reason
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonConnection
	}

	return classifyString(err.Error())
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	return Classify(err).IsTransient()
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusRequestTimeout:
		return ReasonTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuthentication
	case status == http.StatusNotFound:
		return ReasonNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyString(msg string) Reason {
	msg = strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timed out"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429"):
		return ReasonRateLimit
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe"):
		return ReasonConnection
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403"):
		return ReasonAuthentication
	case strings.Contains(msg, "internal server") ||
		strings.Contains(msg, "server error") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503"):
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}
