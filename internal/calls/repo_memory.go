package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository with the same guard semantics
// as the SQL implementation. Intended for tests and local development.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: map[string]*Record{}}
}

func (m *MemoryRepository) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := rec
	cp.Events = append([]Event(nil), rec.Events...)
	m.records[rec.CallID] = &cp
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, callID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	cp := *rec
	cp.Events = append([]Event(nil), rec.Events...)
	return cp, nil
}

func (m *MemoryRepository) SetConnected(_ context.Context, callID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok || rec.Status != StatusInitialized {
		return false, nil
	}
	rec.Status = StatusConnected
	if rec.StartedAt == nil {
		t := at
		rec.StartedAt = &t
	}
	rec.UpdatedAt = at
	return true, nil
}

func (m *MemoryRepository) MarkTerminal(_ context.Context, callID string, status Status, forceZeroDuration bool, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok || rec.Status.Terminal() {
		return false, nil
	}
	rec.Status = status
	if rec.EndedAt == nil {
		t := at
		rec.EndedAt = &t
	}
	if forceZeroDuration && rec.DurationSeconds == nil {
		zero := 0.0
		rec.DurationSeconds = &zero
	}
	rec.UpdatedAt = at
	return true, nil
}

func (m *MemoryRepository) AppendEvent(_ context.Context, callID string, event Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return false, nil
	}
	for _, ev := range rec.Events {
		if ev.Type == event.Type {
			return false, nil
		}
	}
	rec.Events = append(rec.Events, event)
	rec.UpdatedAt = event.Timestamp
	return true, nil
}

func (m *MemoryRepository) SetDurationOnce(_ context.Context, callID string, seconds float64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok || rec.DurationSeconds != nil {
		return false, nil
	}
	rec.DurationSeconds = &seconds
	rec.UpdatedAt = at
	return true, nil
}

func (m *MemoryRepository) MergeFinalFields(_ context.Context, callID, transcript, recording string, joinedAt, leftAt *time.Time, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return ErrNotFound
	}
	if rec.Transcript == "" {
		rec.Transcript = transcript
	}
	if rec.Recording == "" {
		rec.Recording = recording
	}
	if rec.StartedAt == nil && joinedAt != nil {
		t := *joinedAt
		rec.StartedAt = &t
	}
	if rec.EndedAt == nil && leftAt != nil {
		t := *leftAt
		rec.EndedAt = &t
	}
	rec.UpdatedAt = at
	return nil
}

func (m *MemoryRepository) List(_ context.Context, filter ListFilter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if filter.AgentID != "" && rec.AgentID != filter.AgentID {
			continue
		}
		if !filter.From.IsZero() && rec.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !rec.CreatedAt.Before(filter.To) {
			continue
		}
		cp := *rec
		cp.Events = append([]Event(nil), rec.Events...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
