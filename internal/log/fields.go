// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldUserID    = "user_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldProvider  = "provider"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"

	// Transcript fields
	FieldLanguage   = "language"
	FieldDurationS  = "duration_seconds"
	FieldSegments   = "segments"
	FieldProgress   = "progress"
	FieldBlobPath   = "blob_path"
	FieldUsageKind  = "usage_kind"
	FieldCostCents  = "cost_cents"
	FieldExportKind = "export_format"
)
