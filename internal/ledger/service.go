// Package ledger owns affiliate balances and their append-only transaction
// history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/events"
	"affiliatepay/internal/ledger/domain"
)

// Store is the persistence contract for balances and entries. Apply must
// lock the affiliate's balance for the duration of the check and the write.
type Store interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, affiliateID string) (*domain.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	Apply(ctx context.Context, affiliateID string, postings []domain.Posting, newID func() string, at time.Time) ([]*domain.Transaction, error)
	FindByReference(ctx context.Context, referenceID string, typ domain.TransactionType) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, affiliateID string, limit, offset int) ([]*domain.Transaction, int64, error)
	AllTransactions(ctx context.Context, affiliateID string) ([]*domain.Transaction, error)
}

// Service provides ledger operations
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new ledger service
func NewService(store Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// OpenAccount creates an empty balance for affiliateID. Opening an existing
// account returns it unchanged.
func (s *Service) OpenAccount(ctx context.Context, affiliateID string) (*domain.Account, error) {
	account := domain.NewAccount(affiliateID, s.now())
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return s.store.GetAccount(ctx, affiliateID)
		}
		return nil, err
	}

	s.logger.Info("balance opened", "affiliate_id", affiliateID)
	return account, nil
}

// GetBalance returns the balance triple
func (s *Service) GetBalance(ctx context.Context, affiliateID string) (*domain.Account, error) {
	return s.store.GetAccount(ctx, affiliateID)
}

// ApplyRequest is a single ledger mutation
type ApplyRequest struct {
	AffiliateID string                 `json:"affiliate_id" validate:"required"`
	Type        domain.TransactionType `json:"type" validate:"required,oneof=SALARY COMMISSION WITHDRAWAL TAX BONUS OTHER"`
	Amount      int64                  `json:"amount" validate:"gt=0"`
	Description string                 `json:"description" validate:"max=500"`
	ReferenceID string                 `json:"reference_id" validate:"max=200"`
}

// ApplyTransaction applies one credit or debit
func (s *Service) ApplyTransaction(ctx context.Context, req ApplyRequest) (*domain.Transaction, error) {
	txs, err := s.ApplyBatch(ctx, req.AffiliateID, []domain.Posting{{
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	}})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

// ApplyBatch applies postings as one atomic step. Either every posting is
// recorded or none is.
func (s *Service) ApplyBatch(ctx context.Context, affiliateID string, postings []domain.Posting) ([]*domain.Transaction, error) {
	if len(postings) == 0 {
		return nil, errors.New("no postings")
	}
	for _, p := range postings {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	var txs []*domain.Transaction
	err := database.Retry(ctx, 3, func() error {
		var err error
		txs, err = s.store.Apply(ctx, affiliateID, postings, newID, s.now())
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrDuplicateReference) {
			return nil, err
		}
		return nil, fmt.Errorf("applying to %s: %w", affiliateID, err)
	}

	for _, t := range txs {
		s.logger.Info("transaction applied",
			"affiliate_id", affiliateID,
			"transaction_id", t.ID,
			"type", t.Type,
			"amount", t.Amount,
			"balance_after", t.BalanceAfter,
			"reference_id", t.ReferenceID,
		)
		events.Emit(ctx, s.publisher, s.logger, events.EventTransactionApplied, affiliateID, "transaction", t.ID,
			events.TransactionAppliedData{
				TransactionID: t.ID,
				Type:          string(t.Type),
				Amount:        t.Amount,
				ReferenceID:   t.ReferenceID,
				BalanceAfter:  t.BalanceAfter,
			})
	}

	return txs, nil
}

// AddBonus credits a BONUS entry and returns the new remaining balance
func (s *Service) AddBonus(ctx context.Context, affiliateID string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	tx, err := s.ApplyTransaction(ctx, ApplyRequest{
		AffiliateID: affiliateID,
		Type:        domain.TypeBonus,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return 0, err
	}
	return tx.BalanceAfter, nil
}

// History returns a page of entries, newest first
func (s *Service) History(ctx context.Context, affiliateID string, limit, offset int) ([]*domain.Transaction, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.store.ListTransactions(ctx, affiliateID, limit, offset)
}

// FindByReference returns the entry of typ recorded for referenceID
func (s *Service) FindByReference(ctx context.Context, referenceID string, typ domain.TransactionType) (*domain.Transaction, error) {
	return s.store.FindByReference(ctx, referenceID, typ)
}

// Reconcile replays an affiliate's history against the stored balance
func (s *Service) Reconcile(ctx context.Context, affiliateID string) (*domain.Reconciliation, error) {
	account, err := s.store.GetAccount(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.AllTransactions(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	r := domain.Reconcile(account, txs)
	if !r.OK {
		s.logger.Error("ledger out of balance",
			"affiliate_id", affiliateID,
			"remaining", r.Remaining,
			"signed_sum", r.SignedSum,
			"mismatches", len(r.Mismatches),
		)
	}
	return r, nil
}

// ReconcileAll reconciles every affiliate and returns the failing reports
func (s *Service) ReconcileAll(ctx context.Context) ([]*domain.Reconciliation, int, error) {
	ids, err := s.store.ListAccountIDs(ctx)
	if err != nil {
		return nil, 0, err
	}

	var failed []*domain.Reconciliation
	for _, id := range ids {
		r, err := s.Reconcile(ctx, id)
		if err != nil {
			return nil, 0, fmt.Errorf("reconciling %s: %w", id, err)
		}
		if !r.OK {
			failed = append(failed, r)
		}
	}
	return failed, len(ids), nil
}

func newID() string {
	return ulid.Make().String()
}
