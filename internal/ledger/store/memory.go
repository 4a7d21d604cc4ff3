package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"affiliatepay/internal/common/database"
	"affiliatepay/internal/ledger/domain"
)

type refKey struct {
	ref string
	typ domain.TransactionType
}

// Memory is an in-process ledger store. A single mutex makes every Apply
// atomic with respect to every other.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	history  map[string][]*domain.Transaction
	refs     map[refKey]*domain.Transaction
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*domain.Account),
		history:  make(map[string][]*domain.Transaction),
		refs:     make(map[refKey]*domain.Transaction),
	}
}

// CreateAccount stores a new balance row
func (m *Memory) CreateAccount(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[account.AffiliateID]; ok {
		return fmt.Errorf("balance for %s: %w", account.AffiliateID, database.ErrAlreadyExists)
	}
	cp := *account
	m.accounts[account.AffiliateID] = &cp
	return nil
}

// GetAccount returns a copy of the balance row
func (m *Memory) GetAccount(_ context.Context, affiliateID string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[affiliateID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAccountIDs returns every affiliate with a balance row
func (m *Memory) ListAccountIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Apply applies postings atomically
func (m *Memory) Apply(_ context.Context, affiliateID string, postings []domain.Posting, newID func() string, at time.Time) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[affiliateID]
	if !ok {
		return nil, database.ErrNotFound
	}

	seen := make(map[refKey]bool)
	for _, p := range postings {
		if p.ReferenceID == "" {
			continue
		}
		k := refKey{p.ReferenceID, p.Type}
		if _, dup := m.refs[k]; dup || seen[k] {
			return nil, fmt.Errorf("%s %s: %w", p.Type, p.ReferenceID, domain.ErrDuplicateReference)
		}
		seen[k] = true
	}

	work := *a
	txs, err := work.ApplyAll(postings, newID, at)
	if err != nil {
		return nil, err
	}

	*a = work
	for _, t := range txs {
		m.history[affiliateID] = append(m.history[affiliateID], t)
		if t.ReferenceID != "" {
			m.refs[refKey{t.ReferenceID, t.Type}] = t
		}
	}

	out := make([]*domain.Transaction, len(txs))
	for i, t := range txs {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}

// FindByReference returns the entry of typ carrying referenceID
func (m *Memory) FindByReference(_ context.Context, referenceID string, typ domain.TransactionType) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.refs[refKey{referenceID, typ}]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTransactions returns a page of entries, newest first
func (m *Memory) ListTransactions(_ context.Context, affiliateID string, limit, offset int) ([]*domain.Transaction, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[affiliateID]
	total := int64(len(h))

	var page []*domain.Transaction
	for i := len(h) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		cp := *h[i]
		page = append(page, &cp)
	}
	return page, total, nil
}

// AllTransactions returns the full history in application order
func (m *Memory) AllTransactions(_ context.Context, affiliateID string) ([]*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[affiliateID]
	out := make([]*domain.Transaction, len(h))
	for i, t := range h {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}
