// SPDX-License-Identifier: MIT

package lifecycle

import "github.com/coachscribe/coachscribe/internal/domain/model"

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From   model.SessionStatus
	To     model.SessionStatus
	Event  EventKind
	Reason model.ReasonCode
}

var transitionsTable = []Transition{
	// Upload path
	{From: model.StatusUploading, To: model.StatusPending, Event: EvAudioAttached},
	// A failed run may hand out a fresh upload URL; the session drops
	// back to UPLOADING with its audio fields reset.
	{From: model.StatusFailed, To: model.StatusUploading, Event: EvUploadReset},

	// Dispatch path
	{From: model.StatusPending, To: model.StatusProcessing, Event: EvStartRequested},
	{From: model.StatusProcessing, To: model.StatusProcessing, Event: EvProgress},
	{From: model.StatusProcessing, To: model.StatusCompleted, Event: EvCompleted},
	{From: model.StatusProcessing, To: model.StatusFailed, Event: EvFailed},

	// Cancellation: instant from UPLOADING/PENDING; a PROCESSING run
	// only flags the intent and the worker terminalizes it.
	{From: model.StatusUploading, To: model.StatusCancelled, Event: EvCancelRequested},
	{From: model.StatusPending, To: model.StatusCancelled, Event: EvCancelRequested},
	{From: model.StatusProcessing, To: model.StatusProcessing, Event: EvCancelRequested},
	{From: model.StatusProcessing, To: model.StatusCancelled, Event: EvCancelObserved},

	// Retry: FAILED is retryable in place; COMPLETED re-runs are an
	// explicit user decision and bill as RETRY_SUCCESS on completion.
	{From: model.StatusFailed, To: model.StatusPending, Event: EvRetryRequested},
	{From: model.StatusCompleted, To: model.StatusPending, Event: EvRetryRequested},

	// Reaper: a PROCESSING session whose worker vanished.
	{From: model.StatusProcessing, To: model.StatusFailed, Event: EvReaped, Reason: model.RWorkerLost},

	// Manual transcript upload bypasses the provider entirely.
	{From: model.StatusUploading, To: model.StatusCompleted, Event: EvManualTranscript},
	{From: model.StatusPending, To: model.StatusCompleted, Event: EvManualTranscript},
	{From: model.StatusFailed, To: model.StatusCompleted, Event: EvManualTranscript},
}

// TransitionFor returns the allowed transition for a given status+event.
func TransitionFor(from model.SessionStatus, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the full table, for exhaustive tests.
func Transitions() []Transition {
	out := make([]Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}
