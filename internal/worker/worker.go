// SPDX-License-Identifier: MIT

// Package worker executes transcription runs off the request path. A
// pool of consumers drains the job queue, drives the provider job
// machinery and reports progress, completion or failure back to the
// orchestrator. The worker never mutates session status directly.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/coachscribe/coachscribe/internal/blob"
	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/metrics"
	"github.com/coachscribe/coachscribe/internal/orchestrator"
	"github.com/coachscribe/coachscribe/internal/queue"
	"github.com/coachscribe/coachscribe/internal/resilience"
	"github.com/coachscribe/coachscribe/internal/stt"
)

// Config bounds a pool's concurrency and retry behaviour.
type Config struct {
	Concurrency int

	// HeartbeatInterval caps how long a PROCESSING session may go
	// without a progress write while its upstream job is open.
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	ProviderTimeout   time.Duration

	// Per-run retry policy for transient provider errors.
	RetryAttempts int
	RetryBase     time.Duration
	RetryMax      time.Duration

	// ProviderRPS caps outbound calls per provider across the pool.
	// Zero means uncapped.
	ProviderRPS float64
}

// DefaultConfig matches the shipped deployment values.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		HeartbeatInterval: 30 * time.Second,
		PollInterval:      5 * time.Second,
		ProviderTimeout:   30 * time.Second,
		RetryAttempts:     3,
		RetryBase:         5 * time.Second,
		RetryMax:          120 * time.Second,
		ProviderRPS:       10,
	}
}

// Pool consumes the queue and runs transcription jobs to completion.
type Pool struct {
	Orc       *orchestrator.Orchestrator
	Queue     queue.Queue
	Providers *stt.Registry
	Blob      blob.Gateway
	Config    Config

	mu       sync.Mutex
	breakers map[model.Provider]*resilience.CircuitBreaker
	limiters map[model.Provider]*rate.Limiter
}

func NewPool(orc *orchestrator.Orchestrator, q queue.Queue, reg *stt.Registry, bg blob.Gateway, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pool{
		Orc:       orc,
		Queue:     q,
		Providers: reg,
		Blob:      bg,
		Config:    cfg,
		breakers:  make(map[model.Provider]*resilience.CircuitBreaker),
		limiters:  make(map[model.Provider]*rate.Limiter),
	}
}

// Run blocks, consuming jobs with the configured concurrency, until
// ctx is cancelled or the queue closes.
func (p *Pool) Run(ctx context.Context) error {
	logger := log.WithComponent("worker")
	logger.Info().Int("concurrency", p.Config.Concurrency).Msg("worker pool started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.Config.Concurrency; i++ {
		g.Go(func() error {
			for {
				job, err := p.Queue.Dequeue(ctx)
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrClosed) {
					return nil
				}
				if err != nil {
					logger.Error().Err(err).Msg("dequeue failed")
					continue
				}
				p.runJob(ctx, job)
			}
		})
	}
	err := g.Wait()
	logger.Info().Msg("worker pool stopped")
	return err
}

func (p *Pool) runJob(ctx context.Context, job queue.Job) {
	ctx = log.ContextWithSessionID(ctx, job.SessionID)
	logger := log.WithComponentFromContext(ctx, "worker")

	outcome, err := p.process(ctx, job)
	if err != nil {
		logger.Error().Err(err).Str("outcome", outcome).Msg("transcription run ended with error")
	} else {
		logger.Info().Str("outcome", outcome).Msg("transcription run finished")
	}
	metrics.IncWorkerRun(outcome)
}

// process drives one session from PROCESSING to a terminal outcome.
// Returned outcome is completed, failed, cancelled or skipped.
func (p *Pool) process(ctx context.Context, job queue.Job) (string, error) {
	sess, err := p.Orc.GetSession(ctx, job.SessionID, job.OwnerID)
	if err != nil {
		return "skipped", err
	}
	// Redelivery after a terminal transition is a no-op; the CAS in the
	// orchestrator makes acting on it impossible anyway.
	if sess.Status != model.StatusProcessing {
		return "skipped", nil
	}
	if sess.CancelRequested {
		return "cancelled", p.Orc.ObserveCancelled(ctx, sess.ID, sess.OwnerID)
	}

	backend, err := p.Providers.Backend(sess.ResolvedProvider)
	if err != nil {
		return "failed", p.Orc.Fail(ctx, sess.ID, sess.OwnerID, "no backend for provider "+string(sess.ResolvedProvider))
	}

	req := stt.Request{
		AudioURI: p.Blob.URI(sess.BlobPath),
		Language: sess.Language,
	}

	var jobID string
	if err := p.withRetry(ctx, backend.Name(), "start", func(callCtx context.Context) error {
		var startErr error
		jobID, startErr = backend.StartJob(callCtx, req)
		return startErr
	}); err != nil {
		return p.failRun(ctx, sess, "provider rejected the job", err)
	}

	ctx = log.ContextWithJobID(ctx, jobID)
	return p.poll(ctx, sess, backend, jobID)
}

// poll heartbeats the session until the upstream job settles. Every
// resume is preceded by a cancellation check.
func (p *Pool) poll(ctx context.Context, sess *model.Session, backend stt.Backend, jobID string) (string, error) {
	started := time.Now()
	audioSeconds := float64(sess.EstimatedMinutes()) * 60

	heartbeat := p.Config.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	interval := p.Config.PollInterval
	if interval <= 0 || interval > heartbeat {
		interval = heartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown mid-run: leave the session PROCESSING; the reaper
			// or a restarted worker picks it up.
			return "skipped", ctx.Err()
		case <-ticker.C:
		}

		var status stt.JobStatus
		if err := p.withRetry(ctx, backend.Name(), "poll", func(callCtx context.Context) error {
			var pollErr error
			status, pollErr = backend.PollJob(callCtx, jobID)
			return pollErr
		}); err != nil {
			return p.failRun(ctx, sess, "lost contact with the provider", err)
		}

		switch {
		case status.Failed:
			logger := log.WithComponentFromContext(ctx, "worker")
			logger.Warn().
				Str(log.FieldProvider, string(backend.Name())).
				Str(log.FieldReason, status.Message).
				Msg("provider reported job failure")
			return "failed", p.Orc.Fail(ctx, sess.ID, sess.OwnerID, string(model.RUpstreamFailed))

		case status.Done:
			var res *stt.Result
			if err := p.withRetry(ctx, backend.Name(), "fetch", func(callCtx context.Context) error {
				var fetchErr error
				res, fetchErr = backend.FetchResult(callCtx, jobID)
				return fetchErr
			}); err != nil {
				return p.failRun(ctx, sess, "could not fetch the transcript", err)
			}
			if res.ProviderJobID == "" {
				res.ProviderJobID = jobID
			}
			if err := p.Orc.Complete(ctx, sess.ID, sess.OwnerID, res); err != nil {
				return "failed", p.Orc.Fail(ctx, sess.ID, sess.OwnerID, shortDiagnostic(err))
			}
			return "completed", nil

		default:
			pct := status.ProgressPct
			if pct < 0 {
				pct = orchestrator.EstimateProgress(time.Since(started), audioSeconds)
			}
			snap, err := p.Orc.Progress(ctx, sess.ID, sess.OwnerID, pct)
			if err != nil {
				return "skipped", err
			}
			if snap.Status != model.StatusProcessing {
				return "skipped", nil
			}
			if snap.CancelRequested {
				p.cancelUpstream(ctx, backend, jobID)
				return "cancelled", p.Orc.ObserveCancelled(ctx, sess.ID, sess.OwnerID)
			}
		}
	}
}

func (p *Pool) cancelUpstream(ctx context.Context, backend stt.Backend, jobID string) {
	cancelCtx, cancel := context.WithTimeout(ctx, p.Config.ProviderTimeout)
	defer cancel()
	if err := backend.CancelJob(cancelCtx, jobID); err != nil {
		logger := log.WithComponentFromContext(ctx, "worker")
		logger.Warn().
			Err(err).
			Str(log.FieldProvider, string(backend.Name())).
			Msg("upstream cancel failed; job will be orphaned at the provider")
	}
}

func (p *Pool) failRun(ctx context.Context, sess *model.Session, diagnostic string, cause error) (string, error) {
	logger := log.WithComponentFromContext(ctx, "worker")
	logger.Error().
		Err(cause).
		Str(log.FieldSessionID, sess.ID).
		Msg(diagnostic)
	return "failed", p.Orc.Fail(ctx, sess.ID, sess.OwnerID, diagnostic)
}

// withRetry wraps a provider call with the per-call timeout, the
// provider's circuit breaker, latency metrics and the run-local retry
// policy for transient errors.
func (p *Pool) withRetry(ctx context.Context, provider model.Provider, op string, fn func(context.Context) error) error {
	schedule := resilience.BackoffSchedule{Base: p.Config.RetryBase, Max: p.Config.RetryMax}
	attempts := p.Config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	breaker := p.breaker(provider)
	limiter := p.limiter(provider)

	return resilience.Retry(ctx, attempts, schedule, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.Config.ProviderTimeout)
		defer cancel()

		if err := limiter.Wait(callCtx); err != nil {
			return err
		}
		beginning := time.Now()
		err := breaker.Execute(func() error { return fn(callCtx) })
		metrics.ObserveProviderCall(string(provider), op, time.Since(beginning).Seconds())
		if err != nil {
			metrics.IncProviderCall(string(provider), op, "error")
			wrapped := fmt.Errorf("%s %s: %w", provider, op, err)
			if permanentReason(lifecycle.ReasonOf(err)) {
				return resilience.Permanent(wrapped)
			}
			return wrapped
		}
		metrics.IncProviderCall(string(provider), op, "ok")
		return nil
	})
}

// permanentReason is true for deterministic rejections. Replaying the
// same request cannot succeed, so the retry policy gives up at once.
func permanentReason(code model.ReasonCode) bool {
	switch code {
	case model.RInvalidFormat, model.RLangNotSupported, model.RAudioMissing,
		model.RFileTooLarge, model.RNotFound:
		return true
	}
	return false
}

func (p *Pool) breaker(provider model.Provider) *resilience.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.breakers[provider]; ok {
		return b
	}
	b := resilience.NewCircuitBreaker("stt_"+string(provider), 5, time.Minute)
	p.breakers[provider] = b
	return b
}

func (p *Pool) limiter(provider model.Provider) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[provider]; ok {
		return l
	}
	rps := rate.Limit(p.Config.ProviderRPS)
	if rps <= 0 {
		rps = rate.Inf
	}
	l := rate.NewLimiter(rps, 1)
	p.limiters[provider] = l
	return l
}

func shortDiagnostic(err error) string {
	if err == nil {
		return "transcription failed"
	}
	s := err.Error()
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
