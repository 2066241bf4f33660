// SPDX-License-Identifier: MIT

package model

// SessionStatus is the client-visible lifecycle for a transcription session.
// It is intentionally coarse-grained and stable across providers.
type SessionStatus string

const (
	StatusUploading  SessionStatus = "UPLOADING"
	StatusPending    SessionStatus = "PENDING"
	StatusProcessing SessionStatus = "PROCESSING"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusFailed     SessionStatus = "FAILED"
	StatusCancelled  SessionStatus = "CANCELLED"
)

// IsTerminal returns true if the status ends the current run.
// FAILED is retryable and therefore not terminal.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusUploading, StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Provider identifies an STT back end, or "auto" for config-time resolution.
type Provider string

const (
	ProviderAuto       Provider = "auto"
	ProviderGoogle     Provider = "google"
	ProviderAssemblyAI Provider = "assemblyai"
)

// Valid reports whether p is a known provider preference.
func (p Provider) Valid() bool {
	switch p {
	case ProviderAuto, ProviderGoogle, ProviderAssemblyAI:
		return true
	}
	return false
}

// Plan is the subscription tier that scopes quota limits.
type Plan string

const (
	PlanFree           Plan = "FREE"
	PlanStudent        Plan = "STUDENT"
	PlanPro            Plan = "PRO"
	PlanEnterprise     Plan = "ENTERPRISE"
	PlanCoachingSchool Plan = "COACHING_SCHOOL"
)

// UserRole is the authorisation tier of a user account.
type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleStaff      UserRole = "STAFF"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

// SpeakerRole labels a diarized speaker or a single segment.
type SpeakerRole string

const (
	RoleCoach  SpeakerRole = "coach"
	RoleClient SpeakerRole = "client"
)

// Valid reports whether r is an assignable speaker role.
func (r SpeakerRole) Valid() bool {
	return r == RoleCoach || r == RoleClient
}

// UsageKind classifies a usage-ledger entry.
type UsageKind string

const (
	UsageOriginal     UsageKind = "ORIGINAL"
	UsageRetryFailed  UsageKind = "RETRY_FAILED"
	UsageRetrySuccess UsageKind = "RETRY_SUCCESS"
	UsageExport       UsageKind = "EXPORT"
	UsageManual       UsageKind = "MANUAL"
)

// CountsTowardMinutes reports whether this kind advances the monthly
// usage_minutes counter.
func (k UsageKind) CountsTowardMinutes() bool {
	return k == UsageOriginal || k == UsageRetrySuccess
}

// ReasonCode is a compact, typed failure/decision signal surfaced to callers.
// Keep these stable: metrics + client UX depend on them.
type ReasonCode string

const (
	RNone                  ReasonCode = "NONE"
	RNotFound              ReasonCode = "NOT_FOUND"
	RStateConflict         ReasonCode = "STATE_CONFLICT"
	RFileTooLarge          ReasonCode = "FILE_TOO_LARGE"
	RAudioMissing          ReasonCode = "AUDIO_MISSING"
	RLangNotSupported      ReasonCode = "LANG_NOT_SUPPORTED"
	RQuotaExceeded         ReasonCode = "QUOTA_EXCEEDED"
	RInvalidFormat         ReasonCode = "INVALID_FORMAT"
	RTranscriptUnavailable ReasonCode = "TRANSCRIPT_UNAVAILABLE"
	RWorkerLost            ReasonCode = "WORKER_LOST"
	RUpstreamFailed        ReasonCode = "UPSTREAM_FAILED"
)

// ExportFormat enumerates the supported transcript projections.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatVTT  ExportFormat = "vtt"
	FormatSRT  ExportFormat = "srt"
	FormatTXT  ExportFormat = "txt"
	FormatXLSX ExportFormat = "xlsx"
)

// Valid reports whether f is a supported export format.
func (f ExportFormat) Valid() bool {
	switch f {
	case FormatJSON, FormatVTT, FormatSRT, FormatTXT, FormatXLSX:
		return true
	}
	return false
}
