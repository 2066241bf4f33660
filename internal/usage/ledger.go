// SPDX-License-Identifier: MIT

package usage

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/metrics"
	"github.com/coachscribe/coachscribe/internal/store"
)

// Ledger appends usage records and advances user counters atomically.
//
// Append is idempotent on (session, kind): a duplicate insert reports
// inserted=false and leaves counters untouched, so a redelivered
// completion never double-bills.
type Ledger interface {
	Append(ctx context.Context, entry *model.UsageLog) (inserted bool, err error)
}

// SQLLedger writes the log row and the user counter update in one
// transaction on the store's database handle.
type SQLLedger struct {
	DB *sql.DB
}

func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{DB: db}
}

func (l *SQLLedger) Append(ctx context.Context, entry *model.UsageLog) (bool, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO usage_logs (usage_log_id, user_id, session_id, kind, duration_minutes,
			billable, cost_cents, currency, provider, word_count, speaker_count,
			mean_confidence, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.SessionID, entry.Kind, entry.DurationMinutes,
		boolInt(entry.Billable), entry.CostCents, entry.Currency, entry.Provider,
		entry.WordCount, entry.SpeakerCount, entry.MeanConfidence, entry.CreatedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			logger := log.WithComponentFromContext(ctx, "ledger")
			logger.Debug().
				Str(log.FieldSessionID, entry.SessionID).
				Str(log.FieldUsageKind, string(entry.Kind)).
				Msg("duplicate usage log suppressed")
			return false, nil
		}
		return false, err
	}

	if err := advanceCountersTx(ctx, tx, entry); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	metrics.IncUsageLog(string(entry.Kind), billedMinutes(entry))
	return true, nil
}

func advanceCountersTx(ctx context.Context, tx *sql.Tx, entry *model.UsageLog) error {
	addMinutes := 0
	if entry.Kind.CountsTowardMinutes() {
		addMinutes = entry.DurationMinutes
	}
	addTranscriptions := 0
	switch entry.Kind {
	case model.UsageOriginal, model.UsageRetrySuccess, model.UsageRetryFailed, model.UsageManual:
		addTranscriptions = 1
	}
	// Retries re-run an already counted session; only first-run kinds
	// advance the per-month session counter.
	addSessions := 0
	switch entry.Kind {
	case model.UsageOriginal, model.UsageManual:
		addSessions = 1
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET
			usage_minutes = usage_minutes + ?,
			session_count = session_count + ?,
			transcription_count = transcription_count + ?,
			total_minutes = total_minutes + ?,
			total_cost_cents = total_cost_cents + ?
		 WHERE user_id = ?`,
		addMinutes, addSessions, addTranscriptions, addMinutes, entry.CostCents, entry.UserID)
	return err
}

func billedMinutes(entry *model.UsageLog) int {
	if entry.Billable {
		return entry.DurationMinutes
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MemLedger is the in-memory counterpart for unit tests.
type MemLedger struct {
	Users store.UserStore

	mu      sync.Mutex
	Entries []model.UsageLog
	seen    map[string]bool
}

func NewMemLedger(users store.UserStore) *MemLedger {
	return &MemLedger{Users: users, seen: make(map[string]bool)}
}

func (l *MemLedger) Append(ctx context.Context, entry *model.UsageLog) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := entry.SessionID + "|" + string(entry.Kind)
	if l.seen[key] {
		return false, nil
	}

	u, err := l.Users.GetUser(ctx, entry.UserID)
	if err != nil {
		return false, err
	}
	if entry.Kind.CountsTowardMinutes() {
		u.UsageMinutes += entry.DurationMinutes
		u.TotalMinutes += entry.DurationMinutes
	}
	switch entry.Kind {
	case model.UsageOriginal, model.UsageRetrySuccess, model.UsageRetryFailed, model.UsageManual:
		u.TranscriptionCount++
	}
	switch entry.Kind {
	case model.UsageOriginal, model.UsageManual:
		u.SessionCount++
	}
	u.TotalCostCents += entry.CostCents
	if err := l.Users.PutUser(ctx, u); err != nil {
		return false, err
	}

	l.seen[key] = true
	l.Entries = append(l.Entries, *entry)
	return true, nil
}

// LogsFor returns the recorded entries for a session, oldest first.
func (l *MemLedger) LogsFor(sessionID string) []model.UsageLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.UsageLog
	for _, e := range l.Entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}
