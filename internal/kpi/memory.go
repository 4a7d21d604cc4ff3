package kpi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"affiliatepay/internal/common/database"
)

type recordKey struct {
	affiliateID string
	period      Period
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu      sync.Mutex
	states  map[string]*State
	records map[recordKey]*Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[string]*State),
		records: make(map[recordKey]*Record),
	}
}

// CreateState stores a copy of st
func (m *MemoryStore) CreateState(_ context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[st.AffiliateID]; ok {
		return fmt.Errorf("tier state %s: %w", st.AffiliateID, database.ErrAlreadyExists)
	}
	cp := *st
	m.states[st.AffiliateID] = &cp
	return nil
}

// GetState returns a copy of the stored state
func (m *MemoryStore) GetState(_ context.Context, affiliateID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[affiliateID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// ListStates returns copies of every state ordered by affiliate
func (m *MemoryStore) ListStates(_ context.Context) ([]*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*State, 0, len(m.states))
	for _, st := range m.states {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AffiliateID < out[j].AffiliateID })
	return out, nil
}

// UpdateMonth runs fn on working copies under the store lock and commits them
// when fn succeeds
func (m *MemoryStore) UpdateMonth(_ context.Context, affiliateID string, p Period, at time.Time, fn func(st *State, rec *Record) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[affiliateID]
	if !ok {
		return database.ErrNotFound
	}

	key := recordKey{affiliateID, p}
	rec, ok := m.records[key]
	if !ok {
		rec = NewRecord(affiliateID, p, at)
	}

	stWork, recWork := *st, *rec
	if err := fn(&stWork, &recWork); err != nil {
		return err
	}

	*st = stWork
	m.records[key] = &recWork
	return nil
}

// ListRecords returns an affiliate's months in chronological order
func (m *MemoryStore) ListRecords(_ context.Context, affiliateID string) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record
	for k, rec := range m.records {
		if k.affiliateID == affiliateID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}
