package kpi

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

const stateColumns = `affiliate_id, level, current_base_salary, consecutive_failures,
	last_evaluated_year, last_evaluated_month, updated_at`

const recordColumns = `affiliate_id, year, month, total_contacts, potential_contacts, signed_contracts,
	total_revenue, total_commission, performance, note, evaluated_at, created_at, updated_at`

// CreateState inserts a new leveling state
func (s *PostgresStore) CreateState(ctx context.Context, st *State) error {
	query := `INSERT INTO tiered_affiliates (` + stateColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	year, month := lastEvaluated(st)
	_, err := s.db.Exec(ctx, query, st.AffiliateID, st.Level, st.CurrentBaseSalary, st.ConsecutiveFailures, year, month, st.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("tier state %s: %w", st.AffiliateID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating tier state: %w", err)
	}
	return nil
}

// GetState retrieves a leveling state
func (s *PostgresStore) GetState(ctx context.Context, affiliateID string) (*State, error) {
	query := `SELECT ` + stateColumns + ` FROM tiered_affiliates WHERE affiliate_id = $1`
	return scanState(s.db.QueryRow(ctx, query, affiliateID))
}

// ListStates returns every enrolled affiliate's state
func (s *PostgresStore) ListStates(ctx context.Context) ([]*State, error) {
	rows, err := s.db.Query(ctx, `SELECT `+stateColumns+` FROM tiered_affiliates ORDER BY affiliate_id`)
	if err != nil {
		return nil, fmt.Errorf("listing tier states: %w", err)
	}
	defer rows.Close()

	var out []*State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateMonth locks the state row, loads or opens the month's record, runs fn
// and writes both back.
func (s *PostgresStore) UpdateMonth(ctx context.Context, affiliateID string, p Period, at time.Time, fn func(st *State, rec *Record) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		st, err := scanState(tx.QueryRow(ctx,
			`SELECT `+stateColumns+` FROM tiered_affiliates WHERE affiliate_id = $1 FOR UPDATE`, affiliateID))
		if err != nil {
			return err
		}

		fresh := NewRecord(affiliateID, p, at)
		_, err = tx.Exec(ctx, `
			INSERT INTO monthly_kpi_records (affiliate_id, year, month, performance, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (affiliate_id, year, month) DO NOTHING
		`, fresh.AffiliateID, fresh.Year, fresh.Month, fresh.Performance, fresh.CreatedAt, fresh.UpdatedAt)
		if err != nil {
			return fmt.Errorf("opening kpi record: %w", err)
		}

		rec, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM monthly_kpi_records WHERE affiliate_id = $1 AND year = $2 AND month = $3`,
			affiliateID, p.Year, p.Month))
		if err != nil {
			return err
		}

		if err := fn(st, rec); err != nil {
			return err
		}

		year, month := lastEvaluated(st)
		_, err = tx.Exec(ctx, `
			UPDATE tiered_affiliates SET
				level = $2, current_base_salary = $3, consecutive_failures = $4,
				last_evaluated_year = $5, last_evaluated_month = $6, updated_at = $7
			WHERE affiliate_id = $1
		`, st.AffiliateID, st.Level, st.CurrentBaseSalary, st.ConsecutiveFailures, year, month, st.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating tier state: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE monthly_kpi_records SET
				total_contacts = $4, potential_contacts = $5, signed_contracts = $6,
				total_revenue = $7, total_commission = $8, performance = $9, note = $10,
				evaluated_at = $11, updated_at = $12
			WHERE affiliate_id = $1 AND year = $2 AND month = $3
		`, rec.AffiliateID, rec.Year, rec.Month,
			rec.TotalContacts, rec.PotentialContacts, rec.SignedContracts,
			rec.TotalRevenue, rec.TotalCommission, rec.Performance, rec.Note,
			rec.EvaluatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating kpi record: %w", err)
		}
		return nil
	})
}

// ListRecords returns an affiliate's months in chronological order
func (s *PostgresStore) ListRecords(ctx context.Context, affiliateID string) ([]*Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM monthly_kpi_records WHERE affiliate_id = $1 ORDER BY year, month`, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("listing kpi records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func lastEvaluated(st *State) (year, month *int) {
	if st.LastEvaluated == nil {
		return nil, nil
	}
	return &st.LastEvaluated.Year, &st.LastEvaluated.Month
}

func scanState(row pgx.Row) (*State, error) {
	var (
		st          State
		year, month *int
	)
	err := row.Scan(&st.AffiliateID, &st.Level, &st.CurrentBaseSalary, &st.ConsecutiveFailures, &year, &month, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning tier state: %w", err)
	}
	if year != nil && month != nil {
		st.LastEvaluated = &Period{Year: *year, Month: *month}
	}
	return &st, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.AffiliateID, &r.Year, &r.Month,
		&r.TotalContacts, &r.PotentialContacts, &r.SignedContracts,
		&r.TotalRevenue, &r.TotalCommission, &r.Performance, &r.Note,
		&r.EvaluatedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning kpi record: %w", err)
	}
	return &r, nil
}
