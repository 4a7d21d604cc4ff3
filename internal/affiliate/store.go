package affiliate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"affiliatepay/internal/common/database"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new affiliate
func (s *PostgresStore) Create(ctx context.Context, a *Affiliate) error {
	query := `
		INSERT INTO affiliates (
			id, class, name, email, bank_account_number, bank_name, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		a.ID, a.Class, a.Name, a.Email, a.BankAccountNumber, a.BankName, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("affiliate %s: %w", a.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating affiliate: %w", err)
	}
	return nil
}

// Get retrieves an affiliate by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*Affiliate, error) {
	query := `
		SELECT id, class, name, email, bank_account_number, bank_name, created_at, updated_at
		FROM affiliates
		WHERE id = $1
	`

	var a Affiliate
	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Class, &a.Name, &a.Email, &a.BankAccountNumber, &a.BankName, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("getting affiliate: %w", err)
	}
	return &a, nil
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Affiliate
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Affiliate)}
}

// Create stores a copy of a
func (m *MemoryStore) Create(_ context.Context, a *Affiliate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[a.ID]; ok {
		return fmt.Errorf("affiliate %s: %w", a.ID, database.ErrAlreadyExists)
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

// Get returns a copy of the stored affiliate
func (m *MemoryStore) Get(_ context.Context, id string) (*Affiliate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.items[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}
