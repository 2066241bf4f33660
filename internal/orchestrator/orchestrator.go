// SPDX-License-Identifier: MIT

// Package orchestrator drives the transcription lifecycle state
// machine. It is the only component allowed to mutate session status;
// every transition goes through the store's compare-and-set so a lost
// race surfaces as a state conflict instead of a silent overwrite.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coachscribe/coachscribe/internal/blob"
	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/metrics"
	"github.com/coachscribe/coachscribe/internal/queue"
	"github.com/coachscribe/coachscribe/internal/quota"
	"github.com/coachscribe/coachscribe/internal/store"
	"github.com/coachscribe/coachscribe/internal/stt"
	"github.com/coachscribe/coachscribe/internal/usage"
)

// Orchestrator owns session state transitions and their side effects.
type Orchestrator struct {
	Store     store.Store
	Blob      blob.Gateway
	Providers *stt.Registry
	Quota     *quota.Evaluator
	Ledger    usage.Ledger
	Queue     queue.Queue
	Rates     usage.Rates

	UploadURLTTL time.Duration

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func New(st store.Store, bg blob.Gateway, reg *stt.Registry, ev *quota.Evaluator, led usage.Ledger, q queue.Queue, rates usage.Rates, uploadTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		Store:        st,
		Blob:         bg,
		Providers:    reg,
		Quota:        ev,
		Ledger:       led,
		Queue:        q,
		Rates:        rates,
		UploadURLTTL: uploadTTL,
		Now:          time.Now,
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// CreateSession opens a new session in UPLOADING for the owner.
func (o *Orchestrator) CreateSession(ctx context.Context, ownerID, title, language string, provider model.Provider) (*model.Session, error) {
	if title == "" {
		return nil, lifecycle.NewReasonError(model.RInvalidFormat, "empty title", nil)
	}
	if provider == "" {
		provider = model.ProviderAuto
	}
	if !provider.Valid() {
		return nil, lifecycle.NewReasonError(model.RInvalidFormat, fmt.Sprintf("unknown provider %q", provider), nil)
	}
	if language == "" {
		language = "auto"
	}

	user, err := o.user(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := o.admit(ctx, user, quota.ActionCreateSession, 0); err != nil {
		return nil, err
	}

	now := o.now()
	sess := &model.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Language:  language,
		Provider:  provider,
		Status:    model.StatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.Store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldUserID, ownerID).
		Str(log.FieldProvider, string(provider)).
		Msg("session created")
	return sess, nil
}

// GetSession reads an owner-scoped session.
func (o *Orchestrator) GetSession(ctx context.Context, id, ownerID string) (*model.Session, error) {
	sess, err := o.Store.GetSession(ctx, id, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, lifecycle.NewReasonError(model.RNotFound, "session "+id, err)
	}
	return sess, err
}

// ListSessions pages the owner's sessions, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context, ownerID string, status *model.SessionStatus, limit, offset int) ([]*model.Session, error) {
	return o.Store.ListSessions(ctx, ownerID, status, limit, offset)
}

// --- shared internals ---

func (o *Orchestrator) user(ctx context.Context, userID string) (*model.User, error) {
	u, err := o.Store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, lifecycle.NewReasonError(model.RNotFound, "user "+userID, err)
	}
	return u, err
}

// admit runs a quota decision and applies any month rollover it
// instructs. A denial comes back as a reason-coded error carrying the
// evaluator's limit snapshot in the detail.
func (o *Orchestrator) admit(ctx context.Context, user *model.User, action quota.Action, requested float64) error {
	d := o.Quota.Evaluate(user, action, requested)
	if d.ResetCounters {
		if err := o.Store.ResetMonthlyCounters(ctx, user.ID, d.MonthStart); err != nil {
			return err
		}
		user.UsageMinutes = 0
		user.SessionCount = 0
		user.TranscriptionCount = 0
		user.ExportCount = 0
		user.CurrentMonthStart = d.MonthStart
	}
	if d.Admitted {
		return nil
	}
	detail := fmt.Sprintf("%s: limit=%d used=%d requested=%d", action, d.Limit, d.Used, d.Requested)
	return lifecycle.NewReasonError(d.Reason, detail, nil)
}

// transition applies a lifecycle event through the store's CAS and
// records the edge metric. An event the table does not allow from the
// current state yields a state conflict.
func (o *Orchestrator) transition(ctx context.Context, sess *model.Session, ev lifecycle.EventKind, mutate func(*model.Session)) (*model.Session, error) {
	tr, ok := lifecycle.TransitionFor(sess.Status, ev)
	if !ok {
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("event %s not allowed in %s", ev, sess.Status), nil)
	}

	updated, err := o.Store.Transition(ctx, sess.ID, tr.From, tr.To, mutate)
	if errors.Is(err, store.ErrStateConflict) {
		metrics.IncTransitionConflict()
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("session %s left %s concurrently", sess.ID, tr.From), err)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, lifecycle.NewReasonError(model.RNotFound, "session "+sess.ID, err)
	}
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(tr.From), string(tr.To), string(ev))
	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Debug().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldOldState, string(tr.From)).
		Str(log.FieldNewState, string(tr.To)).
		Str(log.FieldEvent, string(ev)).
		Msg("session transition")
	return updated, nil
}
