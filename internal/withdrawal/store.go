package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const requestColumns = `id, affiliate_id, amount_requested, tax, amount_after_tax, note, tax_id,
	status, rejection_reason, otp_code_hash, otp_expires_at, otp_attempts_remaining, otp_resends,
	otp_issued_at, created_at, updated_at, completed_at`

const windowQuery = `SELECT ` + requestColumns + ` FROM withdrawal_requests
	WHERE affiliate_id = $1 AND created_at >= $2 AND created_at < $3
	AND status IN ('pending_otp', 'verified', 'completed')
	ORDER BY created_at`

// Create holds the affiliate's advisory lock while admit inspects the
// window's requests, then inserts the request admit returns. admit's context
// carries the transaction, so database work it does joins the lock's
// transaction.
func (s *PostgresStore) Create(ctx context.Context, affiliateID string, since, until time.Time, admit func(ctx context.Context, window []*Request) (*Request, error)) (*Request, error) {
	var created *Request
	err := s.db.WithAdvisoryLock(ctx, "withdrawal:"+affiliateID, func(tx pgx.Tx) error {
		window, err := queryRequests(ctx, tx, windowQuery, affiliateID, since, until)
		if err != nil {
			return err
		}

		r, err := admit(database.ContextWithTx(ctx, tx), window)
		if err != nil {
			return err
		}

		query := `INSERT INTO withdrawal_requests (` + requestColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
		_, err = tx.Exec(ctx, query,
			r.ID, r.AffiliateID, r.AmountRequested, r.Tax, r.AmountAfterTax, r.Note, r.TaxID,
			r.Status, r.RejectionReason, r.Challenge.CodeHash, r.Challenge.ExpiresAt,
			r.Challenge.AttemptsRemaining, r.Challenge.Resends, r.Challenge.IssuedAt,
			r.CreatedAt, r.UpdatedAt, r.CompletedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("withdrawal %s: %w", r.ID, database.ErrAlreadyExists)
			}
			return fmt.Errorf("inserting withdrawal request: %w", err)
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get retrieves a request by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM withdrawal_requests WHERE id = $1`
	return scanRequest(s.db.QueryRow(ctx, query, id))
}

// Update locks the request row, runs fn and writes the request back when fn
// returns nil. fn runs inside the row lock's transaction.
func (s *PostgresStore) Update(ctx context.Context, id string, fn func(ctx context.Context, r *Request) error) (*Request, error) {
	var updated *Request
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		r, err := scanRequest(tx.QueryRow(ctx,
			`SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if err := fn(database.ContextWithTx(ctx, tx), r); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE withdrawal_requests SET
				tax = $2, amount_after_tax = $3, status = $4, rejection_reason = $5,
				otp_code_hash = $6, otp_expires_at = $7, otp_attempts_remaining = $8,
				otp_resends = $9, otp_issued_at = $10, updated_at = $11, completed_at = $12
			WHERE id = $1
		`, r.ID, r.Tax, r.AmountAfterTax, r.Status, r.RejectionReason,
			r.Challenge.CodeHash, r.Challenge.ExpiresAt, r.Challenge.AttemptsRemaining,
			r.Challenge.Resends, r.Challenge.IssuedAt, r.UpdatedAt, r.CompletedAt)
		if err != nil {
			return fmt.Errorf("updating withdrawal request: %w", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListWindow returns the requests created in [since, until) that may count
// toward the daily limit
func (s *PostgresStore) ListWindow(ctx context.Context, affiliateID string, since, until time.Time) ([]*Request, error) {
	return queryRequests(ctx, s.db, windowQuery, affiliateID, since, until)
}

// List returns an affiliate's requests, newest first
func (s *PostgresStore) List(ctx context.Context, affiliateID string, limit, offset int) ([]*Request, int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawal_requests WHERE affiliate_id = $1`, affiliateID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting withdrawal requests: %w", err)
	}

	out, err := queryRequests(ctx, s.db, `SELECT `+requestColumns+` FROM withdrawal_requests
		WHERE affiliate_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, affiliateID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListExpired returns IDs of pending requests whose challenge lapsed before now
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM withdrawal_requests
		WHERE status = 'pending_otp' AND otp_expires_at < $1
		ORDER BY otp_expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired withdrawals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning withdrawal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryRequests(ctx context.Context, q database.Querier, query string, args ...interface{}) ([]*Request, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying withdrawal requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.AffiliateID, &r.AmountRequested, &r.Tax, &r.AmountAfterTax, &r.Note, &r.TaxID,
		&r.Status, &r.RejectionReason, &r.Challenge.CodeHash, &r.Challenge.ExpiresAt,
		&r.Challenge.AttemptsRemaining, &r.Challenge.Resends, &r.Challenge.IssuedAt,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning withdrawal request: %w", err)
	}
	return &r, nil
}
