package models

import (
	"encoding/json"
	"time"
)

// TraceMetadata captures the context a trace was recorded under. The
// schema version gates replay compatibility across salvo releases.
type TraceMetadata struct {
	SchemaVersion int       `json:"schema_version"`
	RecordingMode string    `json:"recording_mode"`
	SalvoVersion  string    `json:"salvo_version"`
	RecordedAt    time.Time `json:"recorded_at"`
	SourceRunID   string    `json:"source_run_id"`
	ScenarioName  string    `json:"scenario_name"`
	ScenarioFile  string    `json:"scenario_file"`
	ScenarioHash  string    `json:"scenario_hash"`
}

// RecordedTrace wraps a redacted RunTrace with recording metadata and a
// snapshot of the scenario it ran against, so a recording can be replayed
// or re-evaluated without the original scenario file.
type RecordedTrace struct {
	Metadata         TraceMetadata   `json:"metadata"`
	Trace            RunTrace        `json:"trace"`
	ScenarioSnapshot json.RawMessage `json:"scenario_snapshot"`
	OriginalTraceID  string          `json:"original_trace_id,omitempty"`
}

// RevalResult is the outcome of re-evaluating a recorded trace, linked
// back to the source trace. AssertionsSkipped counts content-dependent
// assertions that could not run against a metadata-only recording.
type RevalResult struct {
	ReevalID          string       `json:"reeval_id"`
	OriginalTraceID   string       `json:"original_trace_id"`
	ScenarioName      string       `json:"scenario_name"`
	ScenarioFile      string       `json:"scenario_file,omitempty"`
	EvalResults       []EvalResult `json:"eval_results"`
	Score             float64      `json:"score"`
	Passed            bool         `json:"passed"`
	Threshold         float64      `json:"threshold"`
	EvaluatedAt       time.Time    `json:"evaluated_at"`
	AssertionsUsed    int          `json:"assertions_used"`
	AssertionsSkipped int          `json:"assertions_skipped"`
}
