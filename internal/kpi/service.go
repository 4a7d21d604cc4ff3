package kpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/events"
	"affiliatepay/internal/ledger"
	ledgerdomain "affiliatepay/internal/ledger/domain"
)

// Store persists leveling state and monthly records. UpdateMonth must hold
// the affiliate's state exclusively while fn runs, create the month's record
// if absent, and persist both only when fn returns nil.
type Store interface {
	CreateState(ctx context.Context, st *State) error
	GetState(ctx context.Context, affiliateID string) (*State, error)
	ListStates(ctx context.Context) ([]*State, error)
	UpdateMonth(ctx context.Context, affiliateID string, p Period, at time.Time, fn func(st *State, rec *Record) error) error
	ListRecords(ctx context.Context, affiliateID string) ([]*Record, error)
}

// SalaryLedger credits salary entries
type SalaryLedger interface {
	ApplyTransaction(ctx context.Context, req ledger.ApplyRequest) (*ledgerdomain.Transaction, error)
	FindByReference(ctx context.Context, referenceID string, typ ledgerdomain.TransactionType) (*ledgerdomain.Transaction, error)
}

// Service evaluates KPI months and owns level transitions
type Service struct {
	store     Store
	ledger    SalaryLedger
	publisher events.Publisher
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewService creates a new KPI service. Months are delimited in loc.
func NewService(store Store, ledger SalaryLedger, publisher events.Publisher, loc *time.Location, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		loc:       loc,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Enroll starts leveling for affiliateID at LEVEL_1. Enrolling twice returns
// the existing state.
func (s *Service) Enroll(ctx context.Context, affiliateID string) (*State, error) {
	st := NewState(affiliateID, s.now())
	if err := s.store.CreateState(ctx, st); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return s.store.GetState(ctx, affiliateID)
		}
		return nil, err
	}
	s.logger.Info("tier enrolled", "affiliate_id", affiliateID, "level", st.Level)
	return st, nil
}

// GetState returns the current leveling state
func (s *Service) GetState(ctx context.Context, affiliateID string) (*State, error) {
	st, err := s.store.GetState(ctx, affiliateID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotEnrolled
		}
		return nil, err
	}
	return st, nil
}

// EvaluateRequest asks for one month's verdict
type EvaluateRequest struct {
	AffiliateID string `json:"affiliate_id" validate:"required"`
	Year        int    `json:"year" validate:"gte=2000,lte=9999"`
	Month       int    `json:"month" validate:"gte=1,lte=12"`
	Note        string `json:"note" validate:"max=1000"`
}

// Evaluation is the outcome of a month's evaluation
type Evaluation struct {
	AffiliateID         string      `json:"affiliate_id"`
	Year                int         `json:"year"`
	Month               int         `json:"month"`
	Performance         Performance `json:"performance"`
	Thresholds          Thresholds  `json:"thresholds"`
	PreviousLevel       Level       `json:"previous_level"`
	NewLevel            Level       `json:"new_level"`
	LevelChanged        bool        `json:"level_changed"`
	CurrentBaseSalary   int64       `json:"current_base_salary"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	Record              *Record     `json:"record"`
}

// EvaluateMonthly sets the month's performance against the thresholds of the
// level currently held and applies the resulting transition. A month is
// evaluated at most once, and after the first only the month following the
// last evaluated one is accepted.
func (s *Service) EvaluateMonthly(ctx context.Context, req EvaluateRequest) (*Evaluation, error) {
	p := Period{Year: req.Year, Month: req.Month}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if now.Before(p.End(s.loc)) {
		return nil, fmt.Errorf("%w: %s", ErrMonthOpen, p)
	}

	var result *Evaluation
	err := s.store.UpdateMonth(ctx, req.AffiliateID, p, now, func(st *State, rec *Record) error {
		if rec.Evaluated() {
			return ErrAlreadyEvaluated
		}
		if err := st.CheckNext(p); err != nil {
			return err
		}

		thresholds := st.Level.Thresholds()
		perf := thresholds.Evaluate(rec)

		prev, err := st.Apply(perf, now)
		if err != nil {
			return err
		}
		evaluated := p
		st.LastEvaluated = &evaluated

		evaluatedAt := now
		rec.Performance = perf
		rec.Note = req.Note
		rec.EvaluatedAt = &evaluatedAt
		rec.UpdatedAt = now

		cp := *rec
		result = &Evaluation{
			AffiliateID:         req.AffiliateID,
			Year:                p.Year,
			Month:               p.Month,
			Performance:         perf,
			Thresholds:          thresholds,
			PreviousLevel:       prev,
			NewLevel:            st.Level,
			LevelChanged:        prev != st.Level,
			CurrentBaseSalary:   st.CurrentBaseSalary,
			ConsecutiveFailures: st.ConsecutiveFailures,
			Record:              &cp,
		}
		return nil
	})
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.logger.Info("kpi evaluated",
		"affiliate_id", req.AffiliateID,
		"period", p.String(),
		"performance", result.Performance,
		"previous_level", result.PreviousLevel,
		"new_level", result.NewLevel,
		"consecutive_failures", result.ConsecutiveFailures,
	)

	events.Emit(ctx, s.publisher, s.logger, events.EventKpiEvaluated, req.AffiliateID, "kpi_record", req.AffiliateID+":"+p.String(),
		events.KpiEvaluatedData{
			Year:          p.Year,
			Month:         p.Month,
			Performance:   string(result.Performance),
			PreviousLevel: string(result.PreviousLevel),
			NewLevel:      string(result.NewLevel),
			BaseSalary:    result.CurrentBaseSalary,
		})

	return result, nil
}

// EvaluateAll evaluates period for every enrolled affiliate. Months already
// evaluated are skipped, as are affiliates with an earlier month still
// pending. It returns the evaluations performed.
func (s *Service) EvaluateAll(ctx context.Context, p Period) ([]*Evaluation, error) {
	states, err := s.store.ListStates(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Evaluation
	for _, st := range states {
		ev, err := s.EvaluateMonthly(ctx, EvaluateRequest{AffiliateID: st.AffiliateID, Year: p.Year, Month: p.Month})
		if errors.Is(err, ErrAlreadyEvaluated) {
			continue
		}
		if errors.Is(err, ErrOutOfOrder) {
			s.logger.Warn("skipping kpi evaluation", "affiliate_id", st.AffiliateID, "period", p.String(), "error", err)
			continue
		}
		if err != nil {
			return out, fmt.Errorf("evaluating %s: %w", st.AffiliateID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// ContactTransition is a contact entering a new pipeline stage
type ContactTransition struct {
	AffiliateID string
	ContactID   string
	To          ContactStatus
	At          time.Time
}

// RecordContactTransition increments the counters of the month containing
// t.At. It refuses months that have already been evaluated.
func (s *Service) RecordContactTransition(ctx context.Context, t ContactTransition) error {
	if _, err := ParseContactStatus(string(t.To)); err != nil {
		return err
	}
	p := PeriodOf(t.At, s.loc)

	err := s.store.UpdateMonth(ctx, t.AffiliateID, p, s.now(), func(_ *State, rec *Record) error {
		return rec.CountContact(t.To, s.now())
	})
	if err != nil {
		return s.mapStoreErr(err)
	}

	s.logger.Debug("contact counted",
		"affiliate_id", t.AffiliateID,
		"contact_id", t.ContactID,
		"status", t.To,
		"period", p.String(),
	)
	return nil
}

// RecordRevenue adds a closed contract to the month containing at
func (s *Service) RecordRevenue(ctx context.Context, affiliateID string, at time.Time, revenue, commission int64) error {
	p := PeriodOf(at, s.loc)
	err := s.store.UpdateMonth(ctx, affiliateID, p, s.now(), func(_ *State, rec *Record) error {
		return rec.AddRevenue(revenue, commission, s.now())
	})
	return s.mapStoreErr(err)
}

// Records returns the monthly history and current state
func (s *Service) Records(ctx context.Context, affiliateID string) ([]*Record, *State, error) {
	st, err := s.GetState(ctx, affiliateID)
	if err != nil {
		return nil, nil, err
	}
	recs, err := s.store.ListRecords(ctx, affiliateID)
	if err != nil {
		return nil, nil, err
	}
	return recs, st, nil
}

// SalaryReference is the ledger reference of a month's salary
func SalaryReference(affiliateID string, p Period) string {
	return fmt.Sprintf("salary:%s:%s", affiliateID, p)
}

// PayMonthlySalary credits the current base salary for period. Paying the
// same month twice returns the original entry.
func (s *Service) PayMonthlySalary(ctx context.Context, affiliateID string, p Period) (*ledgerdomain.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	st, err := s.GetState(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	ref := SalaryReference(affiliateID, p)
	if existing, err := s.ledger.FindByReference(ctx, ref, ledgerdomain.TypeSalary); err == nil {
		return existing, nil
	} else if !database.IsNotFound(err) {
		return nil, err
	}

	tx, err := s.ledger.ApplyTransaction(ctx, ledger.ApplyRequest{
		AffiliateID: affiliateID,
		Type:        ledgerdomain.TypeSalary,
		Amount:      st.CurrentBaseSalary,
		Description: fmt.Sprintf("Base salary %s (%s)", p, st.Level),
		ReferenceID: ref,
	})
	if errors.Is(err, ledgerdomain.ErrDuplicateReference) {
		return s.ledger.FindByReference(ctx, ref, ledgerdomain.TypeSalary)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("salary paid",
		"affiliate_id", affiliateID,
		"period", p.String(),
		"level", st.Level,
		"amount", tx.Amount,
	)
	return tx, nil
}

// PayAllSalaries pays period's salary to every enrolled affiliate
func (s *Service) PayAllSalaries(ctx context.Context, p Period) ([]*ledgerdomain.Transaction, error) {
	states, err := s.store.ListStates(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*ledgerdomain.Transaction, 0, len(states))
	for _, st := range states {
		tx, err := s.PayMonthlySalary(ctx, st.AffiliateID, p)
		if err != nil {
			return out, fmt.Errorf("paying %s: %w", st.AffiliateID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Service) mapStoreErr(err error) error {
	if err != nil && database.IsNotFound(err) {
		return ErrNotEnrolled
	}
	return err
}
