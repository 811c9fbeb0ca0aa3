package recording

import (
	"github.com/jherleth/salvo-ai/internal/storage"
	"github.com/jherleth/salvo-ai/pkg/models"
)

// TraceReplayer loads recordings for replay display or re-evaluation.
type TraceReplayer struct {
	store *storage.Store
}

func NewTraceReplayer(store *storage.Store) *TraceReplayer {
	return &TraceReplayer{store: store}
}

// Load fetches a recording by trace ID, or the most recent one when
// traceID is empty. A missing recording returns (nil, nil).
func (r *TraceReplayer) Load(traceID string) (*models.RecordedTrace, error) {
	if traceID != "" {
		return r.store.LoadRecordedTrace(traceID)
	}
	return r.store.LoadLatestRecordedTrace()
}

// IsMetadataOnly reports whether the recording has stripped content.
func (r *TraceReplayer) IsMetadataOnly(rec *models.RecordedTrace) bool {
	return rec != nil && rec.Metadata.RecordingMode == models.RecordingModeMetadataOnly
}
