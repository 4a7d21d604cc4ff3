package withdrawal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"affiliatepay/internal/common/database"
)

// keyedMutex hands out one mutex per key. An entry lives only while someone
// holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// MemoryStore is an in-process Store. Creation is serialized per affiliate
// and updates per request.
type MemoryStore struct {
	mu         sync.RWMutex
	requests   map[string]*Request
	affiliates keyedMutex
	rows       keyedMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

// Create runs admit under the affiliate's lock and stores its result
func (m *MemoryStore) Create(ctx context.Context, affiliateID string, since, until time.Time, admit func(ctx context.Context, window []*Request) (*Request, error)) (*Request, error) {
	unlock := m.affiliates.lock(affiliateID)
	defer unlock()

	r, err := admit(ctx, m.window(affiliateID, since, until))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; ok {
		return nil, fmt.Errorf("withdrawal %s: %w", r.ID, database.ErrAlreadyExists)
	}
	cp := *r
	m.requests[r.ID] = &cp
	return r, nil
}

// Get returns a copy of the stored request
func (m *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Update runs fn on a copy under the request's lock and stores it when fn
// returns nil
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(ctx context.Context, r *Request) error) (*Request, error) {
	unlock := m.rows.lock(id)
	defer unlock()

	r, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, r); err != nil {
		return nil, err
	}

	m.mu.Lock()
	cp := *r
	m.requests[id] = &cp
	m.mu.Unlock()
	return r, nil
}

// ListWindow returns the requests created in [since, until) that may count
// toward the daily limit
func (m *MemoryStore) ListWindow(_ context.Context, affiliateID string, since, until time.Time) ([]*Request, error) {
	return m.window(affiliateID, since, until), nil
}

func (m *MemoryStore) window(affiliateID string, since, until time.Time) []*Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Request
	for _, r := range m.requests {
		if r.AffiliateID != affiliateID || r.CreatedAt.Before(since) || !r.CreatedAt.Before(until) {
			continue
		}
		switch r.Status {
		case StatusPendingOtp, StatusVerified, StatusCompleted:
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// List returns an affiliate's requests, newest first
func (m *MemoryStore) List(_ context.Context, affiliateID string, limit, offset int) ([]*Request, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*Request
	for _, r := range m.requests {
		if r.AffiliateID == affiliateID {
			cp := *r
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// ListExpired returns IDs of pending requests whose challenge lapsed before now
func (m *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*Request
	for _, r := range m.requests {
		if r.Status == StatusPendingOtp && r.Challenge.Expired(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Challenge.ExpiresAt.Before(due[j].Challenge.ExpiresAt) })

	ids := make([]string, 0, len(due))
	for _, r := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}
