// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

func (s *SqliteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT user_id, email, plan, role, usage_minutes, session_count,
			transcription_count, export_count, current_month_start_ms,
			total_minutes, total_cost_cents
		 FROM users WHERE user_id = ?`, id)
	return scanUser(row)
}

func (s *SqliteStore) PutUser(ctx context.Context, u *model.User) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (user_id, email, plan, role, usage_minutes, session_count,
			transcription_count, export_count, current_month_start_ms, total_minutes, total_cost_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			plan = excluded.plan,
			role = excluded.role,
			usage_minutes = excluded.usage_minutes,
			session_count = excluded.session_count,
			transcription_count = excluded.transcription_count,
			export_count = excluded.export_count,
			current_month_start_ms = excluded.current_month_start_ms,
			total_minutes = excluded.total_minutes,
			total_cost_cents = excluded.total_cost_cents`,
		u.ID, u.Email, u.Plan, u.Role, u.UsageMinutes, u.SessionCount,
		u.TranscriptionCount, u.ExportCount, u.CurrentMonthStart.UnixMilli(),
		u.TotalMinutes, u.TotalCostCents)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrDuplicate
	}
	return err
}

func (s *SqliteStore) ResetMonthlyCounters(ctx context.Context, userID string, monthStart time.Time) error {
	// The month guard in the WHERE clause makes concurrent rollovers a
	// single reset: the second writer matches zero rows.
	_, err := s.DB.ExecContext(ctx,
		`UPDATE users SET usage_minutes = 0, session_count = 0,
			transcription_count = 0, export_count = 0, current_month_start_ms = ?
		 WHERE user_id = ? AND current_month_start_ms < ?`,
		monthStart.UnixMilli(), userID, monthStart.UnixMilli())
	return err
}

func (s *SqliteStore) IncrementExportCount(ctx context.Context, userID string, limit int) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET export_count = export_count + 1
		 WHERE user_id = ? AND (? < 0 OR export_count < ?)`, userID, limit, limit)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetUser(ctx, userID); err != nil {
			return err
		}
		return ErrLimitReached
	}
	return nil
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var monthMs int64
	err := row.Scan(&u.ID, &u.Email, &u.Plan, &u.Role, &u.UsageMinutes, &u.SessionCount,
		&u.TranscriptionCount, &u.ExportCount, &monthMs, &u.TotalMinutes, &u.TotalCostCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CurrentMonthStart = time.UnixMilli(monthMs).UTC()
	return &u, nil
}
