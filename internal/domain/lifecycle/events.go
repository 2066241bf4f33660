// SPDX-License-Identifier: MIT

// Package lifecycle defines the session state machine: the closed set
// of events, the transition table, and the reason-coded error types
// every component above the store speaks.
package lifecycle

// EventKind enumerates every cause of a session state change.
type EventKind string

const (
	EvAudioAttached    EventKind = "audio.attached"
	EvUploadReset      EventKind = "upload.reset"
	EvStartRequested   EventKind = "transcription.start"
	EvProgress         EventKind = "transcription.progress"
	EvCompleted        EventKind = "transcription.completed"
	EvFailed           EventKind = "transcription.failed"
	EvCancelRequested  EventKind = "session.cancel"
	EvCancelObserved   EventKind = "session.cancel_observed"
	EvRetryRequested   EventKind = "transcription.retry"
	EvReaped           EventKind = "session.reaped"
	EvManualTranscript EventKind = "transcript.uploaded"
)
