package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/posture/internal/domain/model"
)

// MemoryStore keeps records in process memory. Used for tests and for runs
// that do not need history to survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.TransitionRecord
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert implements Store.
func (m *MemoryStore) Insert(_ context.Context, rec model.TransitionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = append(m.records, rec)
	return nil
}

// Aggregates implements Store.
func (m *MemoryStore) Aggregates(_ context.Context, f AggregateFilter) ([]model.UserAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	byUser := map[string]*model.UserAggregate{}
	for _, r := range m.records {
		if f.ExcludeSession != "" && r.SessionID == f.ExcludeSession {
			continue
		}
		if f.User != "" && r.User != f.User {
			continue
		}
		agg, ok := byUser[r.User]
		if !ok {
			agg = &model.UserAggregate{User: r.User}
			byUser[r.User] = agg
		}
		agg.TotalTime += r.Duration
		agg.TotalRecords++
		if r.Status == model.StatusGood {
			agg.GoodTime += r.Duration
			agg.GoodRecords++
		}
	}

	out := make([]model.UserAggregate, 0, len(byUser))
	for _, agg := range byUser {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

// HasUser implements Store.
func (m *MemoryStore) HasUser(_ context.Context, user string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	for _, r := range m.records {
		if r.User == user {
			return true, nil
		}
	}
	return false, nil
}

// Records returns a copy of every stored record in insertion order.
func (m *MemoryStore) Records() []model.TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.TransitionRecord(nil), m.records...)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
