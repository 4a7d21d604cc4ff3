package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"affiliatepay/internal/common/database"
	"affiliatepay/internal/ledger/domain"
)

// Postgres provides ledger data access backed by PostgreSQL
type Postgres struct {
	db *database.DB
}

// NewPostgres creates a new ledger store
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

const accountColumns = `affiliate_id, received_balance, paid_balance, remaining_balance, sequence, version, created_at, updated_at`

const transactionColumns = `id, affiliate_id, type, amount, description, reference_id, balance_after, sequence, created_at`

// CreateAccount inserts an empty balance row
func (s *Postgres) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO affiliate_balances (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		account.AffiliateID,
		account.Received,
		account.Paid,
		account.Remaining,
		account.Sequence,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("balance for %s: %w", account.AffiliateID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating balance: %w", err)
	}
	return nil
}

// GetAccount retrieves an affiliate's balance triple
func (s *Postgres) GetAccount(ctx context.Context, affiliateID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM affiliate_balances WHERE affiliate_id = $1`
	return scanAccount(s.db.QueryRow(ctx, query, affiliateID))
}

// ListAccountIDs returns every affiliate with a balance row
func (s *Postgres) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT affiliate_id FROM affiliate_balances ORDER BY affiliate_id`)
	if err != nil {
		return nil, fmt.Errorf("listing balances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning affiliate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Apply locks the balance row, applies postings in order and appends the
// resulting entries, all in one transaction.
func (s *Postgres) Apply(ctx context.Context, affiliateID string, postings []domain.Posting, newID func() string, at time.Time) ([]*domain.Transaction, error) {
	var applied []*domain.Transaction

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + accountColumns + ` FROM affiliate_balances WHERE affiliate_id = $1 FOR UPDATE`
		account, err := scanAccount(tx.QueryRow(ctx, query, affiliateID))
		if err != nil {
			return err
		}

		txs, err := account.ApplyAll(postings, newID, at)
		if err != nil {
			return err
		}

		insert := `
			INSERT INTO ledger_transactions (` + transactionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		for _, t := range txs {
			_, err := tx.Exec(ctx, insert,
				t.ID,
				t.AffiliateID,
				t.Type,
				t.Amount,
				t.Description,
				nullStr(t.ReferenceID),
				t.BalanceAfter,
				t.Sequence,
				t.CreatedAt,
			)
			if err != nil {
				if database.IsUniqueViolation(err) {
					return fmt.Errorf("%s %s: %w", t.Type, t.ReferenceID, domain.ErrDuplicateReference)
				}
				return fmt.Errorf("inserting transaction: %w", err)
			}
		}

		update := `
			UPDATE affiliate_balances SET
				received_balance = $2, paid_balance = $3, remaining_balance = $4,
				sequence = $5, version = $6, updated_at = $7
			WHERE affiliate_id = $1
		`
		_, err = tx.Exec(ctx, update,
			account.AffiliateID,
			account.Received,
			account.Paid,
			account.Remaining,
			account.Sequence,
			account.Version,
			account.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}

		applied = txs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// FindByReference returns the entry of typ carrying referenceID
func (s *Postgres) FindByReference(ctx context.Context, referenceID string, typ domain.TransactionType) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE reference_id = $1 AND type = $2`
	return scanTransaction(s.db.QueryRow(ctx, query, referenceID, typ))
}

// ListTransactions returns a page of an affiliate's entries, newest first
func (s *Postgres) ListTransactions(ctx context.Context, affiliateID string, limit, offset int) ([]*domain.Transaction, int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions WHERE affiliate_id = $1`, affiliateID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE affiliate_id = $1
		ORDER BY sequence DESC
		LIMIT $2 OFFSET $3
	`
	txs, err := s.queryTransactions(ctx, query, affiliateID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// AllTransactions returns an affiliate's full history in application order
func (s *Postgres) AllTransactions(ctx context.Context, affiliateID string) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE affiliate_id = $1 ORDER BY sequence ASC`
	return s.queryTransactions(ctx, query, affiliateID)
}

func (s *Postgres) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*domain.Transaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.AffiliateID,
		&a.Received,
		&a.Paid,
		&a.Remaining,
		&a.Sequence,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning balance: %w", err)
	}
	return &a, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var ref *string
	err := row.Scan(
		&t.ID,
		&t.AffiliateID,
		&t.Type,
		&t.Amount,
		&t.Description,
		&ref,
		&t.BalanceAfter,
		&t.Sequence,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}
	if ref != nil {
		t.ReferenceID = *ref
	}
	return &t, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
