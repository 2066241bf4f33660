// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/metrics"
)

// ReaperConfig bounds how long a PROCESSING run may hold its state
// without a worker keeping it alive.
type ReaperConfig struct {
	Interval time.Duration
	// TimeoutMultiplier scales the estimated processing time into the
	// wall-clock deadline.
	TimeoutMultiplier float64
	MinTimeout        time.Duration
}

// DefaultReaperConfig matches the shipped deployment values.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:          time.Minute,
		TimeoutMultiplier: 2.0,
		MinTimeout:        30 * time.Minute,
	}
}

// RunReaper periodically force-fails PROCESSING sessions whose worker
// vanished, so a crash between provider success and the completion
// write cannot strand a run forever. Blocks until ctx is done.
func (o *Orchestrator) RunReaper(ctx context.Context, cfg ReaperConfig) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("reaper")
	logger.Info().Dur("interval", cfg.Interval).Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			if n, err := o.ReapOnce(ctx, cfg); err != nil {
				logger.Error().Err(err).Msg("reap sweep failed")
			} else if n > 0 {
				logger.Warn().Int("reaped", n).Msg("stale sessions failed")
			}
		}
	}
}

// ReapOnce runs a single sweep and returns how many sessions it
// terminalized.
func (o *Orchestrator) ReapOnce(ctx context.Context, cfg ReaperConfig) (int, error) {
	now := o.now()
	// Heartbeats touch the row, so anything past the minimum timeout
	// without an update is a candidate; the per-session deadline below
	// decides.
	candidates, err := o.Store.StaleProcessing(ctx, now.Add(-cfg.MinTimeout))
	if err != nil {
		return 0, err
	}

	reaped := 0
	logger := log.WithComponent("reaper")
	for _, sess := range candidates {
		if !o.pastDeadline(sess, cfg, now) {
			continue
		}
		_, err := o.transition(ctx, sess, lifecycle.EvReaped, func(s *model.Session) {
			s.ErrorMessage = string(model.RWorkerLost)
			s.CancelRequested = false
		})
		if errors.Is(err, lifecycle.ErrStateConflict) {
			continue // the worker beat us to a terminal state
		}
		if err != nil {
			return reaped, err
		}
		metrics.IncReaped()
		reaped++
		logger.Warn().
			Str(log.FieldSessionID, sess.ID).
			Str(log.FieldReason, string(model.RWorkerLost)).
			Msg("reaped stale processing session")
	}
	return reaped, nil
}

func (o *Orchestrator) pastDeadline(sess *model.Session, cfg ReaperConfig, now time.Time) bool {
	started := sess.CreatedAt
	if sess.StartedAt != nil {
		started = *sess.StartedAt
	}
	timeout := time.Duration(cfg.TimeoutMultiplier * estimatedAudioSeconds(sess) * float64(time.Second))
	if timeout < cfg.MinTimeout {
		timeout = cfg.MinTimeout
	}
	return now.Sub(started) > timeout
}
