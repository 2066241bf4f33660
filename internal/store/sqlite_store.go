// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements SessionStore and UserStore on one database.
// The usage ledger shares the same handle so a completion can advance
// counters and append its log row in a single transaction.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or creates) the database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

// NewSqliteStoreWithDB wraps an existing handle (tests, shared pools).
func NewSqliteStoreWithDB(db *sql.DB) (*SqliteStore, error) {
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// HealthCheck reports whether the database answers.
func (s *SqliteStore) HealthCheck(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		plan TEXT NOT NULL,
		role TEXT NOT NULL,
		usage_minutes INTEGER NOT NULL DEFAULT 0,
		session_count INTEGER NOT NULL DEFAULT 0,
		transcription_count INTEGER NOT NULL DEFAULT 0,
		export_count INTEGER NOT NULL DEFAULT 0,
		current_month_start_ms INTEGER NOT NULL,
		total_minutes INTEGER NOT NULL DEFAULT 0,
		total_cost_cents INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(user_id),
		title TEXT NOT NULL,
		language TEXT NOT NULL,
		provider TEXT NOT NULL,
		resolved_provider TEXT,
		audio_filename TEXT,
		blob_path TEXT,
		audio_size_mb REAL NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		job_id TEXT,
		provider_batch_id TEXT,
		progress_pct INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		manual_transcript INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		started_at_ms INTEGER,
		completed_at_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status, updated_at_ms);

	CREATE TABLE IF NOT EXISTS segments (
		segment_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		speaker_id INTEGER NOT NULL,
		start_seconds REAL NOT NULL,
		end_seconds REAL NOT NULL,
		content TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT -1
	);

	CREATE INDEX IF NOT EXISTS idx_segments_session ON segments(session_id, start_seconds);

	CREATE TABLE IF NOT EXISTS session_roles (
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		speaker_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (session_id, speaker_id)
	);

	CREATE TABLE IF NOT EXISTS segment_roles (
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		segment_id TEXT NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (session_id, segment_id)
	);

	CREATE TABLE IF NOT EXISTS usage_logs (
		usage_log_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		kind TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		billable INTEGER NOT NULL,
		cost_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		provider TEXT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		speaker_count INTEGER NOT NULL DEFAULT 0,
		mean_confidence REAL NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		UNIQUE (session_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_usage_user_month ON usage_logs(user_id, created_at_ms);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

const sessionColumns = `session_id, owner_id, title, language, provider, resolved_provider,
	audio_filename, blob_path, audio_size_mb, duration_seconds, status, job_id,
	provider_batch_id, progress_pct, error_message, cancel_requested, manual_transcript,
	retry_count, created_at_ms, updated_at_ms, started_at_ms, completed_at_ms`

// --- Session CRUD ---

func (s *SqliteStore) CreateSession(ctx context.Context, rec *model.Session) error {
	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Title, rec.Language, rec.Provider, nullStr(string(rec.ResolvedProvider)),
		nullStr(rec.AudioFilename), nullStr(rec.BlobPath), rec.AudioSizeMB, rec.DurationSeconds,
		rec.Status, nullStr(rec.TranscriptionJobID), nullStr(rec.ProviderBatchID),
		rec.ProgressPct, nullStr(rec.ErrorMessage), boolInt(rec.CancelRequested),
		boolInt(rec.ManualTranscript), rec.RetryCount,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
		timePtrMs(rec.StartedAt), timePtrMs(rec.CompletedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrDuplicate
	}
	return err
}

func (s *SqliteStore) GetSession(ctx context.Context, id, ownerID string) (*model.Session, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ? AND owner_id = ?`, id, ownerID)
	return scanSession(row)
}

func (s *SqliteStore) getSessionAnyOwner(ctx context.Context, q queryRower, id string) (*model.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

func (s *SqliteStore) ListSessions(ctx context.Context, ownerID string, status *model.SessionStatus, limit, offset int) ([]*model.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_id = ?`
	args := []any{ownerID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at_ms DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SqliteStore) UpdateSession(ctx context.Context, id, ownerID string, fn func(*model.Session) error) (*model.Session, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.getSessionAnyOwner(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now()
	if err := writeSession(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SqliteStore) Transition(ctx context.Context, id string, from, to model.SessionStatus, mutate func(*model.Session)) (*model.Session, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.getSessionAnyOwner(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != from {
		return nil, ErrStateConflict
	}
	rec.Status = to
	if mutate != nil {
		mutate(rec)
	}
	rec.UpdatedAt = time.Now()

	// The WHERE clause re-checks the old status so a concurrent writer
	// who slipped between read and write loses cleanly.
	res, err := updateSessionWhereStatus(ctx, tx, rec, from)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrStateConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// --- Segments ---

func (s *SqliteStore) SaveSegments(ctx context.Context, sessionID string, segments []model.TranscriptSegment) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (segment_id, session_id, speaker_id, start_seconds, end_seconds, content, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, seg := range segments {
		if _, err := stmt.ExecContext(ctx, seg.ID, sessionID, seg.SpeakerID,
			seg.StartSeconds, seg.EndSeconds, seg.Content, seg.Confidence); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) Segments(ctx context.Context, sessionID string) ([]model.TranscriptSegment, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT segment_id, session_id, speaker_id, start_seconds, end_seconds, content, confidence
		 FROM segments WHERE session_id = ? ORDER BY start_seconds, segment_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.TranscriptSegment
	for rows.Next() {
		var seg model.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.SpeakerID,
			&seg.StartSeconds, &seg.EndSeconds, &seg.Content, &seg.Confidence); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *SqliteStore) ClearSegments(ctx context.Context, sessionID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM segment_roles WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Role overlays ---

func (s *SqliteStore) PutSessionRoles(ctx context.Context, sessionID string, roles map[int]model.SpeakerRole) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for speakerID, role := range roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_roles (session_id, speaker_id, role) VALUES (?, ?, ?)
			 ON CONFLICT(session_id, speaker_id) DO UPDATE SET role = excluded.role`,
			sessionID, speakerID, role); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) PutSegmentRoles(ctx context.Context, sessionID string, roles map[string]model.SpeakerRole) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for segmentID, role := range roles {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM segments WHERE segment_id = ? AND session_id = ?`, segmentID, sessionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segment_roles (session_id, segment_id, role) VALUES (?, ?, ?)
			 ON CONFLICT(session_id, segment_id) DO UPDATE SET role = excluded.role`,
			sessionID, segmentID, role); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) SessionRoles(ctx context.Context, sessionID string) (map[int]model.SpeakerRole, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT speaker_id, role FROM session_roles WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[int]model.SpeakerRole)
	for rows.Next() {
		var id int
		var role model.SpeakerRole
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		out[id] = role
	}
	return out, rows.Err()
}

func (s *SqliteStore) SegmentRoles(ctx context.Context, sessionID string) (map[string]model.SpeakerRole, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT segment_id, role FROM segment_roles WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]model.SpeakerRole)
	for rows.Next() {
		var id string
		var role model.SpeakerRole
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		out[id] = role
	}
	return out, rows.Err()
}

// --- Aggregates ---

func (s *SqliteStore) CountSessionsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE owner_id = ? AND created_at_ms >= ?`,
		ownerID, since.UnixMilli()).Scan(&n)
	return n, err
}

func (s *SqliteStore) SumDurationSince(ctx context.Context, ownerID string, since time.Time) (float64, error) {
	var sum sql.NullFloat64
	err := s.DB.QueryRowContext(ctx,
		`SELECT SUM(duration_seconds) FROM sessions WHERE owner_id = ? AND completed_at_ms >= ?`,
		ownerID, since.UnixMilli()).Scan(&sum)
	return sum.Float64, err
}

func (s *SqliteStore) StaleProcessing(ctx context.Context, cutoff time.Time) ([]*model.Session, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = ? AND updated_at_ms < ?`,
		model.StatusProcessing, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- helpers ---

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var rec model.Session
	var resolved, filename, blobPath, jobID, batchID, errMsg sql.NullString
	var cancel, manual int
	var createdMs, updatedMs int64
	var startedMs, completedMs sql.NullInt64

	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Title, &rec.Language, &rec.Provider, &resolved,
		&filename, &blobPath, &rec.AudioSizeMB, &rec.DurationSeconds, &rec.Status, &jobID,
		&batchID, &rec.ProgressPct, &errMsg, &cancel, &manual, &rec.RetryCount, &createdMs, &updatedMs, &startedMs, &completedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.ResolvedProvider = model.Provider(resolved.String)
	rec.AudioFilename = filename.String
	rec.BlobPath = blobPath.String
	rec.TranscriptionJobID = jobID.String
	rec.ProviderBatchID = batchID.String
	rec.ErrorMessage = errMsg.String
	rec.CancelRequested = cancel != 0
	rec.ManualTranscript = manual != 0
	rec.CreatedAt = time.UnixMilli(createdMs)
	rec.UpdatedAt = time.UnixMilli(updatedMs)
	rec.StartedAt = msPtrTime(startedMs)
	rec.CompletedAt = msPtrTime(completedMs)
	return &rec, nil
}

func writeSession(ctx context.Context, tx *sql.Tx, rec *model.Session) error {
	_, err := execUpdateSession(ctx, tx, rec, "")
	return err
}

func updateSessionWhereStatus(ctx context.Context, tx *sql.Tx, rec *model.Session, prev model.SessionStatus) (sql.Result, error) {
	return execUpdateSession(ctx, tx, rec, prev)
}

func execUpdateSession(ctx context.Context, tx *sql.Tx, rec *model.Session, prev model.SessionStatus) (sql.Result, error) {
	query := `UPDATE sessions SET
		title = ?, language = ?, provider = ?, resolved_provider = ?,
		audio_filename = ?, blob_path = ?, audio_size_mb = ?, duration_seconds = ?,
		status = ?, job_id = ?, provider_batch_id = ?, progress_pct = ?,
		error_message = ?, cancel_requested = ?, manual_transcript = ?, retry_count = ?,
		updated_at_ms = ?, started_at_ms = ?, completed_at_ms = ?
		WHERE session_id = ?`
	args := []any{
		rec.Title, rec.Language, rec.Provider, nullStr(string(rec.ResolvedProvider)),
		nullStr(rec.AudioFilename), nullStr(rec.BlobPath), rec.AudioSizeMB, rec.DurationSeconds,
		rec.Status, nullStr(rec.TranscriptionJobID), nullStr(rec.ProviderBatchID), rec.ProgressPct,
		nullStr(rec.ErrorMessage), boolInt(rec.CancelRequested), boolInt(rec.ManualTranscript),
		rec.RetryCount, rec.UpdatedAt.UnixMilli(),
		timePtrMs(rec.StartedAt), timePtrMs(rec.CompletedAt),
		rec.ID,
	}
	if prev != "" {
		query += ` AND status = ?`
		args = append(args, prev)
	}
	return tx.ExecContext(ctx, query, args...)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func msPtrTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
