package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"affiliatepay/internal/affiliate"
	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/events"
	"affiliatepay/internal/common/money"
	"affiliatepay/internal/ledger"
	ledgerdomain "affiliatepay/internal/ledger/domain"
)

// Directory resolves affiliate profiles
type Directory interface {
	Get(ctx context.Context, id string) (*affiliate.Affiliate, error)
}

// Ledger credits commission entries
type Ledger interface {
	ApplyTransaction(ctx context.Context, req ledger.ApplyRequest) (*ledgerdomain.Transaction, error)
	FindByReference(ctx context.Context, referenceID string, typ ledgerdomain.TransactionType) (*ledgerdomain.Transaction, error)
}

// RevenueRecorder accumulates revenue on a tiered affiliate's KPI month
type RevenueRecorder interface {
	RecordRevenue(ctx context.Context, affiliateID string, at time.Time, revenue, commission int64) error
}

// Service credits commission for closed contracts
type Service struct {
	directory Directory
	ledger    Ledger
	revenue   RevenueRecorder
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a new commission service
func NewService(directory Directory, ledger Ledger, revenue RevenueRecorder, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		directory: directory,
		ledger:    ledger,
		revenue:   revenue,
		publisher: publisher,
		logger:    logger,
	}
}

// ContractClosure reports a contract signed through an affiliate
type ContractClosure struct {
	ContractID    string    `json:"contract_id" validate:"required,max=100"`
	AffiliateID   string    `json:"affiliate_id" validate:"required"`
	ContractValue int64     `json:"contract_value" validate:"gte=0"`
	ClosedAt      time.Time `json:"closed_at"`
}

// Credit is the outcome of crediting a contract
type Credit struct {
	ContractID    string                    `json:"contract_id"`
	AffiliateID   string                    `json:"affiliate_id"`
	Class         affiliate.Class           `json:"class"`
	ContractValue int64                     `json:"contract_value"`
	Commission    int64                     `json:"commission"`
	Transaction   *ledgerdomain.Transaction `json:"transaction,omitempty"`
	Duplicate     bool                      `json:"duplicate"`
}

// ContractReference is the ledger reference of a contract's commission
func ContractReference(contractID string) string {
	return "contract:" + contractID
}

// CreditContract computes the commission for a closed contract and credits
// it as a COMMISSION entry. A contract is credited at most once. Zero
// commission writes nothing.
func (s *Service) CreditContract(ctx context.Context, c ContractClosure) (*Credit, error) {
	a, err := s.directory.Get(ctx, c.AffiliateID)
	if err != nil {
		return nil, fmt.Errorf("resolving affiliate %s: %w", c.AffiliateID, err)
	}

	amount, err := Compute(a.Class, c.ContractValue)
	if err != nil {
		return nil, err
	}

	credit := &Credit{
		ContractID:    c.ContractID,
		AffiliateID:   a.ID,
		Class:         a.Class,
		ContractValue: c.ContractValue,
		Commission:    amount,
	}

	ref := ContractReference(c.ContractID)
	existing, err := s.ledger.FindByReference(ctx, ref, ledgerdomain.TypeCommission)
	switch {
	case err == nil:
		credit.Transaction = existing
		credit.Commission = existing.Amount
		credit.Duplicate = true
		return credit, nil
	case !database.IsNotFound(err):
		return nil, err
	}

	if amount == 0 {
		s.logger.Info("contract earns no commission",
			"affiliate_id", a.ID,
			"contract_id", c.ContractID,
			"class", a.Class,
			"contract_value", c.ContractValue,
		)
		return credit, nil
	}

	tx, err := s.ledger.ApplyTransaction(ctx, ledger.ApplyRequest{
		AffiliateID: a.ID,
		Type:        ledgerdomain.TypeCommission,
		Amount:      amount,
		Description: fmt.Sprintf("Commission on contract %s (%s)", c.ContractID, money.Format(c.ContractValue)),
		ReferenceID: ref,
	})
	if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
		existing, ferr := s.ledger.FindByReference(ctx, ref, ledgerdomain.TypeCommission)
		if ferr != nil {
			return nil, ferr
		}
		credit.Transaction = existing
		credit.Duplicate = true
		return credit, nil
	}
	if err != nil {
		return nil, err
	}
	credit.Transaction = tx

	if a.IsTiered() && s.revenue != nil {
		closedAt := c.ClosedAt
		if closedAt.IsZero() {
			closedAt = tx.CreatedAt
		}
		if err := s.revenue.RecordRevenue(ctx, a.ID, closedAt, c.ContractValue, amount); err != nil {
			s.logger.Warn("recording kpi revenue",
				"affiliate_id", a.ID,
				"contract_id", c.ContractID,
				"error", err,
			)
		}
	}

	s.logger.Info("commission credited",
		"affiliate_id", a.ID,
		"contract_id", c.ContractID,
		"class", a.Class,
		"amount", amount,
	)

	events.Emit(ctx, s.publisher, s.logger, events.EventCommissionCredited, a.ID, "contract", c.ContractID,
		events.CommissionCreditedData{
			ContractID:    c.ContractID,
			Class:         string(a.Class),
			ContractValue: c.ContractValue,
			Commission:    amount,
			TransactionID: tx.ID,
		})

	return credit, nil
}

// HandleContractClosed consumes contract.closed events
func (s *Service) HandleContractClosed(ctx context.Context, evt *events.Event) error {
	var data events.ContractClosedData
	if err := evt.DecodeData(&data); err != nil {
		return fmt.Errorf("decoding %s: %w", evt.ID, err)
	}

	_, err := s.CreditContract(ctx, ContractClosure{
		ContractID:    data.ContractID,
		AffiliateID:   data.AffiliateID,
		ContractValue: data.ContractValue,
		ClosedAt:      data.ClosedAt,
	})
	if database.IsNotFound(err) || errors.Is(err, ErrNegativeValue) {
		s.logger.Warn("dropping contract event", "event_id", evt.ID, "contract_id", data.ContractID, "error", err)
		return nil
	}
	return err
}
