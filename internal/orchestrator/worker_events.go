// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/stt"
	"github.com/coachscribe/coachscribe/internal/usage"
)

// Progress records a heartbeat from the worker. Updates are monotonic
// within a run; events arriving after a terminal transition are
// dropped silently. The returned snapshot carries the cancel flag the
// worker checks before resuming.
func (o *Orchestrator) Progress(ctx context.Context, id, ownerID string, pct int) (*model.Session, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusProcessing {
		return sess, nil
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	if pct <= sess.ProgressPct {
		return sess, nil
	}

	updated, err := o.transition(ctx, sess, lifecycle.EvProgress, func(s *model.Session) {
		if pct > s.ProgressPct {
			s.ProgressPct = pct
		}
	})
	if errors.Is(err, lifecycle.ErrStateConflict) {
		// The run went terminal under us; the coalesced update is moot.
		return o.GetSession(ctx, id, ownerID)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Complete lands a successful provider result: segments in one atomic
// batch, the terminal transition, and exactly one usage log. A
// redelivered completion for an already-COMPLETED session is a no-op
// and never double-bills.
func (o *Orchestrator) Complete(ctx context.Context, id, ownerID string, res *stt.Result) error {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case model.StatusCompleted, model.StatusCancelled:
		return nil
	case model.StatusProcessing:
	default:
		return lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("complete requires PROCESSING, session is %s", sess.Status), nil)
	}

	if err := validateResult(res); err != nil {
		return err
	}

	now := o.now()
	segments := make([]model.TranscriptSegment, len(res.Segments))
	for i, seg := range res.Segments {
		segments[i] = model.TranscriptSegment{
			ID:           uuid.NewString(),
			SessionID:    id,
			SpeakerID:    seg.SpeakerID,
			StartSeconds: seg.StartSeconds,
			EndSeconds:   seg.EndSeconds,
			Content:      seg.Content,
			Confidence:   seg.Confidence,
		}
	}
	if err := o.Store.SaveSegments(ctx, id, segments); err != nil {
		return err
	}

	if _, err := o.transition(ctx, sess, lifecycle.EvCompleted, func(s *model.Session) {
		s.DurationSeconds = res.DurationSeconds
		s.ProgressPct = 100
		s.CompletedAt = &now
		s.ErrorMessage = ""
		s.CancelRequested = false
		s.ProviderBatchID = res.ProviderJobID
	}); err != nil {
		// The run went terminal under us (cancel won the race). The
		// orphaned batch must not outlive the lost transition.
		if cerr := o.Store.ClearSegments(ctx, id); cerr != nil {
			logger := log.WithComponentFromContext(ctx, "orchestrator")
			logger.Error().
				Err(cerr).
				Str(log.FieldSessionID, id).
				Msg("failed to clear segments after lost completion race")
		}
		if errors.Is(err, lifecycle.ErrStateConflict) {
			return nil
		}
		return err
	}

	kind := model.UsageOriginal
	if sess.RetryCount > 0 {
		kind = model.UsageRetrySuccess
	}
	return o.appendUsage(ctx, sess, kind, res, now)
}

// Fail records a terminal failure for the current run. The audio stays
// in place so the user can retry. A failed retry run logs a
// non-billable RETRY_FAILED entry.
func (o *Orchestrator) Fail(ctx context.Context, id, ownerID, message string) error {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if sess.Status != model.StatusProcessing {
		return nil
	}
	if message == "" {
		message = "transcription failed"
	}

	if _, err := o.transition(ctx, sess, lifecycle.EvFailed, func(s *model.Session) {
		s.ErrorMessage = message
	}); err != nil {
		if errors.Is(err, lifecycle.ErrStateConflict) {
			return nil
		}
		return err
	}

	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Warn().
		Str(log.FieldSessionID, id).
		Str(log.FieldReason, message).
		Msg("transcription failed")

	if sess.RetryCount > 0 {
		entry := &model.UsageLog{
			ID:              uuid.NewString(),
			UserID:          sess.OwnerID,
			SessionID:       sess.ID,
			Kind:            model.UsageRetryFailed,
			DurationMinutes: sess.EstimatedMinutes(),
			Billable:        false,
			CostCents:       0,
			Currency:        o.Rates.Currency,
			Provider:        sess.ResolvedProvider,
			CreatedAt:       o.now(),
		}
		if _, err := o.Ledger.Append(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// ObserveCancelled terminalizes a PROCESSING run whose cancel flag the
// worker has acted on. No usage log is written.
func (o *Orchestrator) ObserveCancelled(ctx context.Context, id, ownerID string) error {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if sess.Status != model.StatusProcessing {
		return nil
	}
	_, err = o.transition(ctx, sess, lifecycle.EvCancelObserved, func(s *model.Session) {
		s.CancelRequested = false
	})
	if errors.Is(err, lifecycle.ErrStateConflict) {
		return nil
	}
	return err
}

func (o *Orchestrator) appendUsage(ctx context.Context, sess *model.Session, kind model.UsageKind, res *stt.Result, now time.Time) error {
	// Rollover on completion: a result landing in a new month resets
	// the window before the counters advance.
	user, err := o.user(ctx, sess.OwnerID)
	if err != nil {
		return err
	}
	monthStart := model.MonthStartUTC(now)
	if user.CurrentMonthStart.Before(monthStart) {
		if err := o.Store.ResetMonthlyCounters(ctx, user.ID, monthStart); err != nil {
			return err
		}
	}

	minutes := model.DurationMinutes(res.DurationSeconds)
	entry := &model.UsageLog{
		ID:              uuid.NewString(),
		UserID:          sess.OwnerID,
		SessionID:       sess.ID,
		Kind:            kind,
		DurationMinutes: minutes,
		Billable:        true,
		CostCents:       usage.CostCents(o.Rates, sess.ResolvedProvider, minutes, res.SpeakerCount, res.MeanConfidence),
		Currency:        o.Rates.Currency,
		Provider:        sess.ResolvedProvider,
		WordCount:       res.WordCount,
		SpeakerCount:    res.SpeakerCount,
		MeanConfidence:  res.MeanConfidence,
		CreatedAt:       now,
	}
	inserted, err := o.Ledger.Append(ctx, entry)
	if err != nil {
		return err
	}
	if inserted {
		logger := log.WithComponentFromContext(ctx, "orchestrator")
		logger.Info().
			Str(log.FieldSessionID, sess.ID).
			Str(log.FieldUsageKind, string(kind)).
			Int(log.FieldCostCents, entry.CostCents).
			Int("duration_minutes", minutes).
			Msg("usage recorded")
	}
	return nil
}

func validateResult(res *stt.Result) error {
	if res == nil || len(res.Segments) == 0 {
		return lifecycle.NewReasonError(model.RTranscriptUnavailable, "provider returned no segments", nil)
	}
	if res.DurationSeconds <= 0 {
		return lifecycle.NewReasonError(model.RInvalidFormat, "non-positive audio duration", nil)
	}
	for i, seg := range res.Segments {
		if seg.StartSeconds < 0 || seg.EndSeconds <= seg.StartSeconds {
			return lifecycle.NewReasonError(model.RInvalidFormat,
				fmt.Sprintf("segment %d has invalid span [%f, %f]", i, seg.StartSeconds, seg.EndSeconds), nil)
		}
		if seg.Content == "" {
			return lifecycle.NewReasonError(model.RInvalidFormat, fmt.Sprintf("segment %d has no content", i), nil)
		}
	}
	return nil
}
