package recording

import (
	"fmt"
	"time"

	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// TraceRecorder turns the traces of a finished suite into recordings:
// load, redact, optionally strip, wrap with metadata, persist.
type TraceRecorder struct {
	store   *storage.Store
	mode    string
	version string
	redact  func(string) string
}

// NewTraceRecorder builds a recorder. mode is "full" or "metadata_only"
// (empty defaults to full); customPatterns extend the built-in redaction
// set; version is stamped into each recording's metadata.
func NewTraceRecorder(store *storage.Store, mode string, customPatterns []string, version string) (*TraceRecorder, error) {
	if mode == "" {
		mode = models.RecordingModeFull
	}
	if mode != models.RecordingModeFull && mode != models.RecordingModeMetadataOnly {
		return nil, fmt.Errorf("unknown recording mode %q", mode)
	}
	redact, err := BuildPipeline(customPatterns)
	if err != nil {
		return nil, err
	}
	return &TraceRecorder{store: store, mode: mode, version: version, redact: redact}, nil
}

// RecordSuite records every trial trace of a suite and returns the trace
// IDs persisted, in trial order. Trials without a stored trace are
// skipped. The latest-recorded pointer ends on the last ID written, so
// `salvo replay` with no argument shows the most recent trial.
func (r *TraceRecorder) RecordSuite(suite *models.TrialSuiteResult, scenario *models.Scenario, scenarioFile string) ([]string, error) {
	if suite == nil {
		return nil, fmt.Errorf("record suite: suite is required")
	}
	if scenario == nil {
		return nil, fmt.Errorf("record suite: scenario is required")
	}
	snapshot, err := scenario.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("snapshot scenario: %w", err)
	}

	var recorded []string
	for _, trial := range suite.Trials {
		if trial.TraceID == "" {
			continue
		}
		trace, err := r.store.LoadTrace(trial.TraceID)
		if err != nil {
			return recorded, fmt.Errorf("load trace %s: %w", trial.TraceID, err)
		}
		if trace == nil {
			continue
		}

		redacted := ApplyPipeline(trace, r.redact)
		if r.mode == models.RecordingModeMetadataOnly {
			redacted = StripForMetadataOnly(redacted)
		}

		rec := &models.RecordedTrace{
			Metadata: models.TraceMetadata{
				SchemaVersion: CurrentTraceSchemaVersion,
				RecordingMode: r.mode,
				SalvoVersion:  r.version,
				RecordedAt:    time.Now().UTC(),
				SourceRunID:   suite.RunID,
				ScenarioName:  suite.ScenarioName,
				ScenarioFile:  scenarioFile,
				ScenarioHash:  trace.ScenarioHash,
			},
			Trace:            *redacted,
			ScenarioSnapshot: snapshot,
		}
		if err := r.store.SaveRecordedTrace(trial.TraceID, rec); err != nil {
			return recorded, fmt.Errorf("save recorded trace %s: %w", trial.TraceID, err)
		}
		recorded = append(recorded, trial.TraceID)
	}

	if len(recorded) > 0 {
		if err := r.store.UpdateLatestRecordedSymlink(recorded[len(recorded)-1]); err != nil {
			return recorded, fmt.Errorf("update latest recording: %w", err)
		}
	}
	return recorded, nil
}
