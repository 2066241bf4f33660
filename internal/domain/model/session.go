// SPDX-License-Identifier: MIT

package model

import "time"

// Session is the aggregate root for one audio recording and its
// derived transcript. The store is the source of truth; in-memory
// copies are snapshots.
type Session struct {
	ID      string `json:"sessionId"`
	OwnerID string `json:"ownerId"`
	Title   string `json:"title"`

	// Language is a BCP-47 tag or "auto" for provider-side detection.
	Language string `json:"language"`

	// Provider is the caller's preference; ResolvedProvider is the
	// concrete back end pinned at dispatch time. Resolution is sticky
	// across retries so a retry replays against the same provider.
	Provider         Provider `json:"provider"`
	ResolvedProvider Provider `json:"resolvedProvider,omitempty"`

	AudioFilename string `json:"audioFilename,omitempty"`
	BlobPath      string `json:"blobPath,omitempty"`
	AudioSizeMB   float64 `json:"audioSizeMb,omitempty"`

	// DurationSeconds is set on completion only.
	DurationSeconds float64 `json:"durationSeconds,omitempty"`

	Status             SessionStatus `json:"status"`
	TranscriptionJobID string        `json:"transcriptionJobId,omitempty"`
	ProviderBatchID    string        `json:"providerBatchId,omitempty"`
	ProgressPct        int           `json:"progressPct"`
	ErrorMessage       string        `json:"errorMessage,omitempty"`

	// CancelRequested signals a cooperative cancel to a PROCESSING run.
	// The worker observes it on its next heartbeat.
	CancelRequested bool `json:"cancelRequested,omitempty"`

	// ManualTranscript marks a session completed from a user-supplied
	// transcript file. Such a session may have no audio object at all.
	ManualTranscript bool `json:"manualTranscript,omitempty"`

	// RetryCount is the number of user-initiated retries. A completion
	// with RetryCount > 0 bills as a retry, not an original run.
	RetryCount int `json:"retryCount,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"transcriptionStartedAt,omitempty"`
	CompletedAt *time.Time `json:"transcriptionCompletedAt,omitempty"`
}

// EstimatedMinutes approximates the audio length for quota admission
// before the provider has reported a real duration. Compressed speech
// lands near 1 MB/min, so the file size doubles as the estimate.
func (s *Session) EstimatedMinutes() int {
	if s.DurationSeconds > 0 {
		return minutesCeil(s.DurationSeconds)
	}
	if s.AudioSizeMB <= 0 {
		return 1
	}
	est := int(s.AudioSizeMB + 0.5)
	if est < 1 {
		est = 1
	}
	return est
}

// TranscriptSegment is a single contiguous span of transcribed speech.
type TranscriptSegment struct {
	ID           string  `json:"segmentId"`
	SessionID    string  `json:"sessionId"`
	SpeakerID    int     `json:"speakerId"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Content      string  `json:"content"`

	// Confidence is the per-segment mean in [0,1]; negative means unknown.
	Confidence float64 `json:"confidence"`
}

// ConfidenceKnown reports whether the provider supplied a confidence.
func (t TranscriptSegment) ConfidenceKnown() bool {
	return t.Confidence >= 0
}

// User carries the identity and quota counters of an account.
type User struct {
	ID    string   `json:"userId"`
	Email string   `json:"email"`
	Plan  Plan     `json:"plan"`
	Role  UserRole `json:"role"`

	// Monthly window counters, reset lazily at the UTC month boundary.
	UsageMinutes      int       `json:"usageMinutes"`
	SessionCount      int       `json:"sessionCount"`
	TranscriptionCount int      `json:"transcriptionCount"`
	ExportCount       int       `json:"exportCount"`
	CurrentMonthStart time.Time `json:"currentMonthStart"`

	// Cumulative totals, never reset.
	TotalMinutes   int `json:"totalMinutes"`
	TotalCostCents int `json:"totalCostCents"`
}

// UsageLog is an immutable billing/usage record appended on completion.
type UsageLog struct {
	ID              string    `json:"usageLogId"`
	UserID          string    `json:"userId"`
	SessionID       string    `json:"sessionId"`
	Kind            UsageKind `json:"kind"`
	DurationMinutes int       `json:"durationMinutes"`
	Billable        bool      `json:"billable"`
	CostCents       int       `json:"costCents"`
	Currency        string    `json:"currency"`
	Provider        Provider  `json:"provider"`

	// Optional quality metadata from the provider result.
	WordCount      int     `json:"wordCount,omitempty"`
	SpeakerCount   int     `json:"speakerCount,omitempty"`
	MeanConfidence float64 `json:"meanConfidence,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// PlanLimits is the immutable limit snapshot a single admission
// decision sees. -1 means unlimited.
type PlanLimits struct {
	MaxSessionsPerMonth   int      `yaml:"maxSessionsPerMonth" json:"maxSessionsPerMonth"`
	MaxMinutesPerMonth    int      `yaml:"maxMinutesPerMonth" json:"maxMinutesPerMonth"`
	MaxTranscriptions     int      `yaml:"maxTranscriptions" json:"maxTranscriptions"`
	MaxFileSizeMB         float64  `yaml:"maxFileSizeMB" json:"maxFileSizeMB"`
	MaxExportsPerMonth    int      `yaml:"maxExportsPerMonth" json:"maxExportsPerMonth"`
	MaxConcurrentJobs     int      `yaml:"maxConcurrentJobs" json:"maxConcurrentJobs"`
	RetentionDays         int      `yaml:"retentionDays" json:"retentionDays"`
	ExportFormats         []string `yaml:"exportFormats" json:"exportFormats"`
	PriorityProcessing    bool     `yaml:"priorityProcessing" json:"priorityProcessing"`
	SpeakerRelabeling     bool     `yaml:"speakerRelabeling" json:"speakerRelabeling"`
}

// MonthStartUTC returns the first instant of t's calendar month in UTC.
func MonthStartUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DurationMinutes converts transcribed seconds to billable minutes:
// ceiling, minimum 1 when any audio was processed.
func DurationMinutes(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return minutesCeil(seconds)
}

func minutesCeil(seconds float64) int {
	m := int(seconds) / 60
	if float64(m*60) < seconds {
		m++
	}
	if m < 1 {
		m = 1
	}
	return m
}
