// SPDX-License-Identifier: MIT

// Package store is the system-of-record for sessions, transcript
// segments, role overlays and user accounts.
//
// Design intent:
//   - Every session read is ownership-scoped: a mismatch reads as not
//     found, never as forbidden.
//   - All status changes go through the compare-and-set Transition;
//     the orchestrator is the only caller.
//   - Segment and role writes are single transactions; a partial batch
//     is never observable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("status changed concurrently")
	ErrDuplicate     = errors.New("duplicate row")
	ErrLimitReached  = errors.New("counter limit reached")
)

// SessionStore owns reads and writes of the session aggregate.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	// GetSession returns the session only when ownerID matches.
	GetSession(ctx context.Context, id, ownerID string) (*model.Session, error)
	ListSessions(ctx context.Context, ownerID string, status *model.SessionStatus, limit, offset int) ([]*model.Session, error)

	// UpdateSession applies fn to the current row inside a transaction
	// and persists the result. fn returning an error aborts the write.
	UpdateSession(ctx context.Context, id, ownerID string, fn func(*model.Session) error) (*model.Session, error)

	// Transition performs a compare-and-set on (id, status): the write
	// only lands if the row is still in from. mutate adjusts the rest
	// of the record; status and UpdatedAt are set by the store.
	Transition(ctx context.Context, id string, from, to model.SessionStatus, mutate func(*model.Session)) (*model.Session, error)

	// SaveSegments replaces the transcript in one atomic batch.
	SaveSegments(ctx context.Context, sessionID string, segments []model.TranscriptSegment) error
	Segments(ctx context.Context, sessionID string) ([]model.TranscriptSegment, error)
	ClearSegments(ctx context.Context, sessionID string) error

	PutSessionRoles(ctx context.Context, sessionID string, roles map[int]model.SpeakerRole) error
	PutSegmentRoles(ctx context.Context, sessionID string, roles map[string]model.SpeakerRole) error
	SessionRoles(ctx context.Context, sessionID string) (map[int]model.SpeakerRole, error)
	SegmentRoles(ctx context.Context, sessionID string) (map[string]model.SpeakerRole, error)

	// Aggregates for quota admission.
	CountSessionsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	SumDurationSince(ctx context.Context, ownerID string, since time.Time) (float64, error)

	// StaleProcessing lists PROCESSING sessions whose last update is
	// older than the cutoff; input to the reaper.
	StaleProcessing(ctx context.Context, cutoff time.Time) ([]*model.Session, error)
}

// UserStore owns account rows and their monthly counters.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	PutUser(ctx context.Context, u *model.User) error

	// ResetMonthlyCounters zeroes the monthly window and pins
	// current_month_start, only if the stored month is older. The
	// guard makes concurrent rollovers reset exactly once.
	ResetMonthlyCounters(ctx context.Context, userID string, monthStart time.Time) error

	// IncrementExportCount bumps the monthly export counter, refusing
	// with ErrLimitReached once the counter holds limit. Negative limit
	// means no ceiling. The check and the bump are one atomic step, so
	// concurrent exports cannot both take the last slot.
	IncrementExportCount(ctx context.Context, userID string, limit int) error
}
