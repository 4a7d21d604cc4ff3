package affiliate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"affiliatepay/internal/kpi"
	ledgerdomain "affiliatepay/internal/ledger/domain"
)

// Store persists affiliate profiles
type Store interface {
	Create(ctx context.Context, a *Affiliate) error
	Get(ctx context.Context, id string) (*Affiliate, error)
}

// AccountOpener opens the balance account of a new affiliate
type AccountOpener interface {
	OpenAccount(ctx context.Context, affiliateID string) (*ledgerdomain.Account, error)
}

// TierEnroller starts KPI leveling for a tiered affiliate
type TierEnroller interface {
	Enroll(ctx context.Context, affiliateID string) (*kpi.State, error)
}

// Service manages the affiliate registry
type Service struct {
	store    Store
	accounts AccountOpener
	tiers    TierEnroller
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new affiliate service
func NewService(store Store, accounts AccountOpener, tiers TierEnroller, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		tiers:    tiers,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRequest is the request to register an affiliate
type RegisterRequest struct {
	ID                string `json:"id" validate:"omitempty,max=64"`
	Class             Class  `json:"class" validate:"required,oneof=partner sme tiered"`
	Name              string `json:"name" validate:"required,max=255"`
	Email             string `json:"email" validate:"required,email"`
	BankAccountNumber string `json:"bank_account_number" validate:"omitempty,max=34"`
	BankName          string `json:"bank_name" validate:"omitempty,max=255"`
}

// Register stores the profile, opens its balance and, for tiered affiliates,
// enrolls it at the first level.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Affiliate, error) {
	if !req.Class.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClass, req.Class)
	}

	id := req.ID
	if id == "" {
		id = ulid.Make().String()
	}

	now := s.now()
	a := &Affiliate{
		ID:                id,
		Class:             req.Class,
		Name:              strings.TrimSpace(req.Name),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		BankAccountNumber: req.BankAccountNumber,
		BankName:          req.BankName,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	if _, err := s.accounts.OpenAccount(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("opening balance: %w", err)
	}

	if a.IsTiered() {
		if _, err := s.tiers.Enroll(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("enrolling tier: %w", err)
		}
	}

	s.logger.Info("affiliate registered",
		"affiliate_id", a.ID,
		"class", a.Class,
	)

	return a, nil
}

// Get retrieves an affiliate by ID
func (s *Service) Get(ctx context.Context, id string) (*Affiliate, error) {
	return s.store.Get(ctx, id)
}
