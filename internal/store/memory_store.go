// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

// MemoryStore is an in-memory SessionStore + UserStore used by unit
// tests and local prototyping. Not durable.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[string]*model.Session
	segments     map[string][]model.TranscriptSegment
	sessionRoles map[string]map[int]model.SpeakerRole
	segmentRoles map[string]map[string]model.SpeakerRole
	users        map[string]*model.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*model.Session),
		segments:     make(map[string][]model.TranscriptSegment),
		sessionRoles: make(map[string]map[int]model.SpeakerRole),
		segmentRoles: make(map[string]map[string]model.SpeakerRole),
		users:        make(map[string]*model.User),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return ErrDuplicate
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id, ownerID string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, ownerID string, status *model.SessionStatus, limit, offset int) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var all []*model.Session
	for _, rec := range m.sessions {
		if rec.OwnerID != ownerID {
			continue
		}
		if status != nil && rec.Status != *status {
			continue
		}
		cp := *rec
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id, ownerID string, fn func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *rec
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	m.sessions[id] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, from, to model.SessionStatus, mutate func(*model.Session)) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != from {
		return nil, ErrStateConflict
	}
	cp := *rec
	cp.Status = to
	if mutate != nil {
		mutate(&cp)
	}
	cp.UpdatedAt = time.Now()
	m.sessions[id] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) SaveSegments(_ context.Context, sessionID string, segments []model.TranscriptSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.TranscriptSegment, len(segments))
	copy(cp, segments)
	sort.Slice(cp, func(i, j int) bool { return cp[i].StartSeconds < cp[j].StartSeconds })
	m.segments[sessionID] = cp
	return nil
}

func (m *MemoryStore) Segments(_ context.Context, sessionID string) ([]model.TranscriptSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	segs := m.segments[sessionID]
	out := make([]model.TranscriptSegment, len(segs))
	copy(out, segs)
	return out, nil
}

func (m *MemoryStore) ClearSegments(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.segments, sessionID)
	delete(m.segmentRoles, sessionID)
	return nil
}

func (m *MemoryStore) PutSessionRoles(_ context.Context, sessionID string, roles map[int]model.SpeakerRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.sessionRoles[sessionID]
	if existing == nil {
		existing = make(map[int]model.SpeakerRole)
		m.sessionRoles[sessionID] = existing
	}
	for id, role := range roles {
		existing[id] = role
	}
	return nil
}

func (m *MemoryStore) PutSegmentRoles(_ context.Context, sessionID string, roles map[string]model.SpeakerRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[string]bool, len(m.segments[sessionID]))
	for _, seg := range m.segments[sessionID] {
		known[seg.ID] = true
	}
	existing := m.segmentRoles[sessionID]
	if existing == nil {
		existing = make(map[string]model.SpeakerRole)
		m.segmentRoles[sessionID] = existing
	}
	for id, role := range roles {
		if !known[id] {
			return ErrNotFound
		}
		existing[id] = role
	}
	return nil
}

func (m *MemoryStore) SessionRoles(_ context.Context, sessionID string) (map[int]model.SpeakerRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]model.SpeakerRole, len(m.sessionRoles[sessionID]))
	for id, role := range m.sessionRoles[sessionID] {
		out[id] = role
	}
	return out, nil
}

func (m *MemoryStore) SegmentRoles(_ context.Context, sessionID string) (map[string]model.SpeakerRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.SpeakerRole, len(m.segmentRoles[sessionID]))
	for id, role := range m.segmentRoles[sessionID] {
		out[id] = role
	}
	return out, nil
}

func (m *MemoryStore) CountSessionsSince(_ context.Context, ownerID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, rec := range m.sessions {
		if rec.OwnerID == ownerID && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SumDurationSince(_ context.Context, ownerID string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, rec := range m.sessions {
		if rec.OwnerID == ownerID && rec.CompletedAt != nil && !rec.CompletedAt.Before(since) {
			sum += rec.DurationSeconds
		}
	}
	return sum, nil
}

func (m *MemoryStore) StaleProcessing(_ context.Context, cutoff time.Time) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, rec := range m.sessions {
		if rec.Status == model.StatusProcessing && rec.UpdatedAt.Before(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- UserStore ---

func (m *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) PutUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) ResetMonthlyCounters(_ context.Context, userID string, monthStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if !u.CurrentMonthStart.Before(monthStart) {
		return nil
	}
	u.UsageMinutes = 0
	u.SessionCount = 0
	u.TranscriptionCount = 0
	u.ExportCount = 0
	u.CurrentMonthStart = monthStart
	return nil
}

func (m *MemoryStore) IncrementExportCount(_ context.Context, userID string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if limit >= 0 && u.ExportCount >= limit {
		return ErrLimitReached
	}
	u.ExportCount++
	return nil
}
