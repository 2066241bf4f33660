// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

// StatusReport is the user-facing view of a session's run.
type StatusReport struct {
	Status    model.SessionStatus `json:"status"`
	Progress  int                 `json:"progress"`
	Message   string              `json:"message,omitempty"`
	StartedAt *time.Time          `json:"startedAt,omitempty"`

	// EstimatedCompletion is projected from the audio length while the
	// run is open; nil otherwise.
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`

	// ProcessingSpeed is audio seconds transcribed per wall-clock
	// second; 0 when unknown.
	ProcessingSpeed float64 `json:"processingSpeed,omitempty"`

	// ManualTranscript marks a session completed from an uploaded
	// transcript file; such a session may carry no audio object.
	ManualTranscript bool `json:"manualTranscript,omitempty"`
}

// GetStatus reports the authoritative status with progress and timing
// estimates. For FAILED sessions the message is the stored diagnostic,
// never the raw provider error.
func (o *Orchestrator) GetStatus(ctx context.Context, id, ownerID string) (*StatusReport, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	rep := &StatusReport{
		Status:           sess.Status,
		Progress:         sess.ProgressPct,
		StartedAt:        sess.StartedAt,
		ManualTranscript: sess.ManualTranscript,
	}

	switch sess.Status {
	case model.StatusFailed:
		rep.Message = sess.ErrorMessage

	case model.StatusCompleted:
		rep.Progress = 100
		if sess.StartedAt != nil && sess.CompletedAt != nil {
			if elapsed := sess.CompletedAt.Sub(*sess.StartedAt).Seconds(); elapsed > 0 {
				rep.ProcessingSpeed = sess.DurationSeconds / elapsed
			}
		}

	case model.StatusProcessing:
		audioSeconds := estimatedAudioSeconds(sess)
		if sess.StartedAt != nil {
			elapsed := o.now().Sub(*sess.StartedAt)
			if est := EstimateProgress(elapsed, audioSeconds); est > rep.Progress {
				rep.Progress = est
			}
			eta := sess.StartedAt.Add(time.Duration(processingFactor * audioSeconds * float64(time.Second)))
			rep.EstimatedCompletion = &eta
			if sec := elapsed.Seconds(); sec > 0 {
				rep.ProcessingSpeed = float64(rep.Progress) / 100 * audioSeconds / sec
			}
		}
	}
	return rep, nil
}

// EstimateProgress projects progress from wall-clock time when the
// provider exposes none. The estimate never reports done.
func EstimateProgress(elapsed time.Duration, audioSeconds float64) int {
	if audioSeconds <= 0 {
		return 0
	}
	pct := int(100 * elapsed.Seconds() / (processingFactor * audioSeconds))
	if pct > 99 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

func estimatedAudioSeconds(sess *model.Session) float64 {
	if sess.DurationSeconds > 0 {
		return sess.DurationSeconds
	}
	return float64(sess.EstimatedMinutes()) * 60
}
