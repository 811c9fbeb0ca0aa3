// Package recording persists redacted copies of run traces for later
// replay and re-evaluation. A recording wraps the trace with metadata
// (schema version, recording mode, source run) and a snapshot of the
// scenario it ran against, so it stands alone without the original
// scenario file. Two modes exist: full keeps redacted transcript text,
// metadata_only strips all content and keeps structure and counters.
package recording

import (
	"fmt"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// CurrentTraceSchemaVersion is the recorded-trace format this build
// writes and the newest it can read.
const CurrentTraceSchemaVersion = 1

// ValidateTraceVersion rejects recordings written by a newer salvo.
// Older versions are always readable.
func ValidateTraceVersion(meta models.TraceMetadata) error {
	if meta.SchemaVersion > CurrentTraceSchemaVersion {
		return fmt.Errorf(
			"trace schema version %d is newer than supported version %d: upgrade salvo to read this trace",
			meta.SchemaVersion, CurrentTraceSchemaVersion)
	}
	return nil
}
