// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/export"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/metrics"
	"github.com/coachscribe/coachscribe/internal/quota"
	"github.com/coachscribe/coachscribe/internal/store"
)

// ExportTranscript renders the transcript of a COMPLETED session with
// role overlays applied. Exporting never mutates the segments.
func (o *Orchestrator) ExportTranscript(ctx context.Context, id, ownerID string, format model.ExportFormat) ([]byte, string, error) {
	if !format.Valid() {
		return nil, "", lifecycle.NewReasonError(model.RInvalidFormat,
			fmt.Sprintf("unsupported export format %q", format), nil)
	}

	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, "", err
	}
	if sess.Status != model.StatusCompleted {
		return nil, "", lifecycle.NewReasonError(model.RTranscriptUnavailable,
			fmt.Sprintf("session is %s, transcript exists on COMPLETED only", sess.Status), nil)
	}

	user, err := o.user(ctx, ownerID)
	if err != nil {
		return nil, "", err
	}
	if err := o.admit(ctx, user, quota.ActionExport, 0); err != nil {
		return nil, "", err
	}

	segments, err := o.Store.Segments(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if len(segments) == 0 {
		return nil, "", lifecycle.NewReasonError(model.RTranscriptUnavailable, "no segments stored", nil)
	}
	sessionRoles, err := o.Store.SessionRoles(ctx, id)
	if err != nil {
		return nil, "", err
	}
	segmentRoles, err := o.Store.SegmentRoles(ctx, id)
	if err != nil {
		return nil, "", err
	}

	data, contentType, err := export.Render(&export.Transcript{
		Session:      sess,
		Segments:     segments,
		SessionRoles: sessionRoles,
		SegmentRoles: segmentRoles,
	}, format)
	if err != nil {
		return nil, "", err
	}

	// The admit above is advisory; the store's conditional bump is what
	// holds the ceiling under concurrent exports.
	exportCap := o.Quota.Plans.Limits(user.Plan).MaxExportsPerMonth
	if err := o.Store.IncrementExportCount(ctx, ownerID, exportCap); err != nil {
		if errors.Is(err, store.ErrLimitReached) {
			return nil, "", lifecycle.NewReasonError(model.RQuotaExceeded,
				fmt.Sprintf("%s: limit=%d", quota.ActionExport, exportCap), err)
		}
		return nil, "", err
	}
	metrics.IncExport(string(format))

	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldExportKind, string(format)).
		Int("bytes", len(data)).
		Msg("transcript exported")
	return data, contentType, nil
}

// UploadTranscript accepts a user-supplied .vtt or .srt transcript and
// completes the session without invoking a provider. The manual entry
// is recorded in the ledger as non-billable.
func (o *Orchestrator) UploadTranscript(ctx context.Context, id, ownerID, filename string, content []byte) (*model.Session, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.StatusUploading, model.StatusPending, model.StatusFailed:
	default:
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("transcript upload not allowed in %s", sess.Status), nil)
	}

	parsed, err := export.ParseTranscript(filename, content)
	if err != nil {
		return nil, err
	}

	var duration float64
	for i := range parsed {
		parsed[i].ID = uuid.NewString()
		parsed[i].SessionID = id
		if parsed[i].EndSeconds > duration {
			duration = parsed[i].EndSeconds
		}
	}
	if err := o.Store.SaveSegments(ctx, id, parsed); err != nil {
		return nil, err
	}

	now := o.now()
	updated, err := o.transition(ctx, sess, lifecycle.EvManualTranscript, func(s *model.Session) {
		s.DurationSeconds = duration
		s.ProgressPct = 100
		s.CompletedAt = &now
		s.ErrorMessage = ""
		s.CancelRequested = false
		s.ManualTranscript = true
	})
	if err != nil {
		return nil, err
	}

	entry := &model.UsageLog{
		ID:              uuid.NewString(),
		UserID:          ownerID,
		SessionID:       id,
		Kind:            model.UsageManual,
		DurationMinutes: model.DurationMinutes(duration),
		Billable:        false,
		CostCents:       0,
		Currency:        o.Rates.Currency,
		Provider:        sess.ResolvedProvider,
		CreatedAt:       now,
	}
	if _, err := o.Ledger.Append(ctx, entry); err != nil {
		return nil, err
	}

	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Info().
		Str(log.FieldSessionID, id).
		Int(log.FieldSegments, len(parsed)).
		Msg("manual transcript accepted")
	return updated, nil
}
