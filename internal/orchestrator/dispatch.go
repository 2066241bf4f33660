// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/queue"
	"github.com/coachscribe/coachscribe/internal/quota"
	"github.com/coachscribe/coachscribe/internal/stt"
)

// Jobs take roughly this multiple of the audio length to transcribe;
// the same factor feeds the progress estimate and the reaper deadline.
const processingFactor = 2.5

// StartResult is the dispatch acknowledgement.
type StartResult struct {
	JobID                      string `json:"jobId"`
	EstimatedCompletionMinutes int    `json:"estimatedCompletionMinutes"`
	Retry                      bool   `json:"retry,omitempty"`
}

// StartTranscription admits, transitions PENDING to PROCESSING and
// enqueues the work. Exactly one of N concurrent callers wins the
// compare-and-set; the rest observe a state conflict.
func (o *Orchestrator) StartTranscription(ctx context.Context, id, ownerID string) (*StartResult, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusPending {
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("start requires PENDING, session is %s", sess.Status), nil)
	}
	return o.dispatch(ctx, sess)
}

// RetryTranscription restarts a FAILED session, or re-runs a COMPLETED
// one, in place. The prior transcript is cleared; provider resolution
// is sticky from the first run.
func (o *Orchestrator) RetryTranscription(ctx context.Context, id, ownerID string) (*StartResult, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.StatusFailed, model.StatusCompleted:
	default:
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("retry requires FAILED or COMPLETED, session is %s", sess.Status), nil)
	}

	if err := o.requireAudio(ctx, sess); err != nil {
		return nil, err
	}

	sess, err = o.transition(ctx, sess, lifecycle.EvRetryRequested, func(s *model.Session) {
		s.ErrorMessage = ""
		s.TranscriptionJobID = ""
		s.ProviderBatchID = ""
		s.ProgressPct = 0
		s.DurationSeconds = 0
		s.CompletedAt = nil
		s.ManualTranscript = false
		s.CancelRequested = false
		s.RetryCount++
	})
	if err != nil {
		return nil, err
	}
	if err := o.Store.ClearSegments(ctx, sess.ID); err != nil {
		return nil, err
	}

	res, err := o.dispatch(ctx, sess)
	if err != nil {
		return nil, err
	}
	res.Retry = true
	return res, nil
}

// Cancel stops a session. UPLOADING and PENDING cancel instantly; a
// PROCESSING run is flagged and the worker terminalizes it on its next
// heartbeat. Cancelling a CANCELLED session is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, id, ownerID string) (*model.Session, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.StatusCancelled:
		return sess, nil
	case model.StatusUploading, model.StatusPending:
		return o.transition(ctx, sess, lifecycle.EvCancelRequested, nil)
	case model.StatusProcessing:
		return o.transition(ctx, sess, lifecycle.EvCancelRequested, func(s *model.Session) {
			s.CancelRequested = true
		})
	default:
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("cannot cancel a %s session", sess.Status), nil)
	}
}

// dispatch is the shared PENDING -> PROCESSING path.
func (o *Orchestrator) dispatch(ctx context.Context, sess *model.Session) (*StartResult, error) {
	if err := o.requireAudio(ctx, sess); err != nil {
		return nil, err
	}

	// Sticky resolution: a retry replays against the provider pinned on
	// the first dispatch.
	resolved := sess.ResolvedProvider
	if resolved == "" {
		var err error
		resolved, err = o.Providers.Resolve(sess.Provider)
		if err != nil {
			return nil, lifecycle.NewReasonError(model.RUpstreamFailed, err.Error(), err)
		}
	}
	backend, err := o.Providers.Backend(resolved)
	if err != nil {
		return nil, lifecycle.NewReasonError(model.RUpstreamFailed, err.Error(), err)
	}
	if err := stt.CheckLanguage(backend, sess.Language); err != nil {
		return nil, err
	}

	user, err := o.user(ctx, sess.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := o.admit(ctx, user, quota.ActionTranscribe, 0); err != nil {
		return nil, err
	}
	estMinutes := sess.EstimatedMinutes()
	if err := o.admit(ctx, user, quota.ActionCheckMinutes, float64(estMinutes)); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	now := o.now()
	sess, err = o.transition(ctx, sess, lifecycle.EvStartRequested, func(s *model.Session) {
		s.StartedAt = &now
		s.CompletedAt = nil
		s.ResolvedProvider = resolved
		s.TranscriptionJobID = jobID
		s.ProgressPct = 0
		s.ErrorMessage = ""
		s.CancelRequested = false
	})
	if err != nil {
		return nil, err
	}

	if err := o.Queue.Enqueue(ctx, queue.Job{
		SessionID: sess.ID,
		OwnerID:   sess.OwnerID,
		Attempt:   sess.RetryCount,
	}); err != nil {
		// The run never reached a worker; fail it so the state does not
		// claim progress that will not happen.
		if _, ferr := o.transition(ctx, sess, lifecycle.EvFailed, func(s *model.Session) {
			s.ErrorMessage = "work queue unavailable"
		}); ferr != nil {
			logger := log.WithComponentFromContext(ctx, "orchestrator")
			logger.Error().
				Err(ferr).
				Str(log.FieldSessionID, sess.ID).
				Msg("failed to mark session FAILED after enqueue error")
		}
		return nil, lifecycle.NewReasonError(model.ReasonCode("INTERNAL"), "enqueue", err)
	}

	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldJobID, jobID).
		Str(log.FieldProvider, string(resolved)).
		Int("estimated_minutes", estMinutes).
		Msg("transcription dispatched")

	return &StartResult{
		JobID:                      jobID,
		EstimatedCompletionMinutes: estimateCompletionMinutes(estMinutes),
	}, nil
}

// requireAudio rejects with AUDIO_MISSING when the blob is not
// reachable, leaving the session state untouched.
func (o *Orchestrator) requireAudio(ctx context.Context, sess *model.Session) error {
	if sess.BlobPath == "" {
		return lifecycle.NewReasonError(model.RAudioMissing, "no audio attached", nil)
	}
	exists, _, err := o.Blob.Exists(ctx, sess.BlobPath)
	if err != nil {
		return fmt.Errorf("probe audio object: %w", err)
	}
	if !exists {
		return lifecycle.NewReasonError(model.RAudioMissing, "audio object "+sess.BlobPath+" not found", nil)
	}
	return nil
}

func estimateCompletionMinutes(audioMinutes int) int {
	est := int(math.Ceil(processingFactor * float64(audioMinutes)))
	if est < 1 {
		est = 1
	}
	return est
}
