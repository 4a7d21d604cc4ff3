package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"affiliatepay/internal/affiliate"
	"affiliatepay/internal/common/events"
	ledgerdomain "affiliatepay/internal/ledger/domain"
	"affiliatepay/internal/notify"
)

// Store persists withdrawal requests
type Store interface {
	Create(ctx context.Context, affiliateID string, since, until time.Time, admit func(ctx context.Context, window []*Request) (*Request, error)) (*Request, error)
	Get(ctx context.Context, id string) (*Request, error)
	Update(ctx context.Context, id string, fn func(ctx context.Context, r *Request) error) (*Request, error)
	ListWindow(ctx context.Context, affiliateID string, since, until time.Time) ([]*Request, error)
	List(ctx context.Context, affiliateID string, limit, offset int) ([]*Request, int64, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Ledger reads balances and posts the payout
type Ledger interface {
	GetBalance(ctx context.Context, affiliateID string) (*ledgerdomain.Account, error)
	ApplyBatch(ctx context.Context, affiliateID string, postings []ledgerdomain.Posting) ([]*ledgerdomain.Transaction, error)
}

// Directory resolves the affiliate's contact email
type Directory interface {
	Get(ctx context.Context, id string) (*affiliate.Affiliate, error)
}

// Throttle grants at most one slot per key per ttl
type Throttle interface {
	Acquire(ctx context.Context, namespace, key string, ttl time.Duration) (bool, time.Duration, error)
}

const resendNamespace = "otp-resend"

// Service runs the withdrawal protocol
type Service struct {
	cfg       Config
	window    DailyWindow
	tax       TaxPolicy
	store     Store
	ledger    Ledger
	directory Directory
	sender    notify.Sender
	publisher events.Publisher
	throttle  Throttle
	logger    *slog.Logger
	now       func() time.Time
	newCode   func() (string, error)
}

// NewService creates a withdrawal service from a validated configuration
func NewService(cfg Config, store Store, ledger Ledger, directory Directory, sender notify.Sender, publisher events.Publisher, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:       cfg,
		window:    window,
		tax:       cfg.Tax(),
		store:     store,
		ledger:    ledger,
		directory: directory,
		sender:    sender,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   NewCode,
	}, nil
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetThrottle enables the resend cooldown
func (s *Service) SetThrottle(t Throttle) {
	s.throttle = t
}

// CreateRequest is the request to withdraw part of the balance
type CreateRequest struct {
	AffiliateID string `json:"affiliate_id"`
	Amount      int64  `json:"amount"`
	Note        string `json:"note" validate:"max=500"`
	TaxID       string `json:"tax_id" validate:"omitempty,max=20"`
}

// Issued is a request with a freshly dispatched code
type Issued struct {
	Request     *Request  `json:"request"`
	MaskedEmail string    `json:"masked_email"`
	ExpiresAt   time.Time `json:"expires_at"`

	// DeliveryErr is set when the code could not be sent. The challenge is
	// still live and can be resent.
	DeliveryErr error `json:"-"`
}

// LimitCheck reports the affiliate's use of the current daily window
type LimitCheck struct {
	Exceeds             bool      `json:"exceeds"`
	TotalWithdrawnToday int64     `json:"total_withdrawn_today"`
	RemainingLimit      int64     `json:"remaining_limit"`
	DailyLimit          int64     `json:"daily_limit"`
	WindowStart         time.Time `json:"window_start"`
	WindowEnd           time.Time `json:"window_end"`
}

func (s *Service) limitCheck(window []*Request, amount int64, now, start, end time.Time) *LimitCheck {
	var total int64
	for _, r := range window {
		if r.CountsTowardLimit(now) {
			total += r.AmountRequested
		}
	}
	remaining := s.cfg.DailyLimit - total
	if remaining < 0 {
		remaining = 0
	}
	return &LimitCheck{
		Exceeds:             total+amount > s.cfg.DailyLimit,
		TotalWithdrawnToday: total,
		RemainingLimit:      remaining,
		DailyLimit:          s.cfg.DailyLimit,
		WindowStart:         start,
		WindowEnd:           end,
	}
}

// CheckDailyLimit reports whether amount would exceed the daily limit
func (s *Service) CheckDailyLimit(ctx context.Context, affiliateID string, amount int64) (*LimitCheck, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	now := s.now()
	start, end := s.window.Bounds(now)
	window, err := s.store.ListWindow(ctx, affiliateID, start, end)
	if err != nil {
		return nil, err
	}
	return s.limitCheck(window, amount, now, start, end), nil
}

// Create opens a withdrawal request and sends its code. Balance and daily
// limit are checked under the affiliate's lock; nothing is debited yet.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Issued, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	a, err := s.directory.Get(ctx, req.AffiliateID)
	if err != nil {
		return nil, fmt.Errorf("resolving affiliate %s: %w", req.AffiliateID, err)
	}

	code, err := s.newCode()
	if err != nil {
		return nil, err
	}

	now := s.now()
	start, end := s.window.Bounds(now)

	r, err := s.store.Create(ctx, a.ID, start, end, func(ctx context.Context, window []*Request) (*Request, error) {
		acct, err := s.ledger.GetBalance(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("reading balance: %w", err)
		}
		if req.Amount > acct.Remaining {
			return nil, ErrExceedsBalance
		}

		check := s.limitCheck(window, req.Amount, now, start, end)
		if check.Exceeds {
			return nil, &DailyLimitError{
				Limit:          check.DailyLimit,
				TotalWithdrawn: check.TotalWithdrawnToday,
				RemainingLimit: check.RemainingLimit,
			}
		}

		r := &Request{
			ID:              ulid.Make().String(),
			AffiliateID:     a.ID,
			AmountRequested: req.Amount,
			Note:            req.Note,
			TaxID:           req.TaxID,
			Status:          StatusPendingOtp,
			CreatedAt:       now,
		}
		r.Issue(code, now, s.cfg.OtpTTL, s.cfg.OtpMaxAttempts)
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested",
		"affiliate_id", r.AffiliateID,
		"request_id", r.ID,
		"amount", r.AmountRequested,
		"expires_at", r.Challenge.ExpiresAt,
	)

	if s.throttle != nil {
		if _, _, err := s.throttle.Acquire(ctx, resendNamespace, r.ID, s.cfg.ResendCooldown); err != nil {
			s.logger.Warn("starting resend cooldown", "request_id", r.ID, "error", err)
		}
	}

	events.Emit(ctx, s.publisher, s.logger, events.EventWithdrawalRequested, r.AffiliateID, "withdrawal", r.ID,
		events.WithdrawalRequestedData{
			RequestID: r.ID,
			Amount:    r.AmountRequested,
			ExpiresAt: r.Challenge.ExpiresAt,
		})

	return s.dispatch(ctx, r, a.Email, code), nil
}

func (s *Service) dispatch(ctx context.Context, r *Request, email, code string) *Issued {
	issued := &Issued{
		Request:     r,
		MaskedEmail: notify.MaskEmail(email),
		ExpiresAt:   r.Challenge.ExpiresAt,
	}
	msg := notify.OtpMessage(email, r.ID, code, r.AmountRequested, r.Challenge.ExpiresAt.In(s.window.Location))
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Warn("sending withdrawal otp",
			"affiliate_id", r.AffiliateID,
			"request_id", r.ID,
			"error", err,
		)
		issued.DeliveryErr = err
	}
	return issued
}

// Verify answers the request's challenge. A correct code debits the ledger
// with a WITHDRAWAL entry for the net amount and a TAX entry for the tax, and
// completes the request. Wrong codes, expiry and a failed debit are
// persisted before their error is returned.
func (s *Service) Verify(ctx context.Context, requestID, code string) (*Request, error) {
	var (
		outcome error
		before  Status
	)
	r, err := s.store.Update(ctx, requestID, func(ctx context.Context, r *Request) error {
		outcome = nil
		before = r.Status
		now := s.now()

		if err := r.Answer(code, now); err != nil {
			outcome = err
			return nil
		}

		r.Settle(s.tax.Compute(r.AmountRequested))
		_, err := s.ledger.ApplyBatch(ctx, r.AffiliateID, payout(r))
		switch {
		case err == nil, errors.Is(err, ledgerdomain.ErrDuplicateReference):
			r.Complete(now)
		case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
			r.Reject(ReasonInsufficientBalance, now)
			outcome = ErrInsufficientBalance
		default:
			return fmt.Errorf("debiting ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.Status != before {
		s.announce(ctx, r)
	}
	if outcome != nil {
		s.logger.Info("withdrawal verification failed",
			"affiliate_id", r.AffiliateID,
			"request_id", r.ID,
			"status", r.Status,
			"error", outcome,
		)
		return nil, outcome
	}
	return r, nil
}

// payout builds the debit for a settled request. The WITHDRAWAL row carries
// the net amount_after_tax and the TAX row the tax, so together they debit
// amount_requested.
func payout(r *Request) []ledgerdomain.Posting {
	postings := []ledgerdomain.Posting{{
		Type:        ledgerdomain.TypeWithdrawal,
		Amount:      r.AmountAfterTax,
		Description: fmt.Sprintf("Withdrawal %s", r.ID),
		ReferenceID: r.ID,
	}}
	if r.Tax > 0 {
		postings = append(postings, ledgerdomain.Posting{
			Type:        ledgerdomain.TypeTax,
			Amount:      r.Tax,
			Description: fmt.Sprintf("Personal income tax on withdrawal %s", r.ID),
			ReferenceID: r.ID,
		})
	}
	return postings
}

// announce publishes the transition r just made and, on completion, notifies
// the affiliate
func (s *Service) announce(ctx context.Context, r *Request) {
	switch r.Status {
	case StatusCompleted:
		s.logger.Info("withdrawal completed",
			"affiliate_id", r.AffiliateID,
			"request_id", r.ID,
			"amount", r.AmountRequested,
			"tax", r.Tax,
			"amount_after_tax", r.AmountAfterTax,
		)
		events.Emit(ctx, s.publisher, s.logger, events.EventWithdrawalCompleted, r.AffiliateID, "withdrawal", r.ID,
			events.WithdrawalCompletedData{
				RequestID:      r.ID,
				Amount:         r.AmountRequested,
				Tax:            r.Tax,
				AmountAfterTax: r.AmountAfterTax,
			})
		s.notifyCompleted(ctx, r)
	case StatusRejected:
		s.logger.Info("withdrawal rejected", "affiliate_id", r.AffiliateID, "request_id", r.ID, "reason", r.RejectionReason)
		events.Emit(ctx, s.publisher, s.logger, events.EventWithdrawalRejected, r.AffiliateID, "withdrawal", r.ID,
			events.WithdrawalClosedData{RequestID: r.ID, Amount: r.AmountRequested, Reason: r.RejectionReason})
	case StatusExpired:
		s.logger.Info("withdrawal expired", "affiliate_id", r.AffiliateID, "request_id", r.ID)
		events.Emit(ctx, s.publisher, s.logger, events.EventWithdrawalExpired, r.AffiliateID, "withdrawal", r.ID,
			events.WithdrawalClosedData{RequestID: r.ID, Amount: r.AmountRequested})
	}
}

func (s *Service) notifyCompleted(ctx context.Context, r *Request) {
	a, err := s.directory.Get(ctx, r.AffiliateID)
	if err == nil {
		err = s.sender.Send(ctx, notify.CompletedMessage(a.Email, r.ID, r.AmountRequested, r.Tax, r.AmountAfterTax))
	}
	if err != nil {
		s.logger.Warn("sending withdrawal confirmation", "request_id", r.ID, "error", err)
	}
}

// Resend replaces the live code and restarts its expiry. Attempts already
// spent stay spent.
func (s *Service) Resend(ctx context.Context, requestID string) (*Issued, error) {
	var (
		outcome error
		before  Status
		code    string
	)
	r, err := s.store.Update(ctx, requestID, func(ctx context.Context, r *Request) error {
		outcome = nil
		before = r.Status
		now := s.now()

		if err := r.Active(now); err != nil {
			outcome = err
			return nil
		}

		if s.throttle != nil {
			ok, wait, err := s.throttle.Acquire(ctx, resendNamespace, r.ID, s.cfg.ResendCooldown)
			switch {
			case err != nil:
				s.logger.Warn("checking resend cooldown", "request_id", r.ID, "error", err)
			case !ok:
				outcome = &ResendTooSoonError{RetryAfter: wait}
				return nil
			}
		}

		c, err := s.newCode()
		if err != nil {
			return err
		}
		code = c
		r.Issue(code, now, s.cfg.OtpTTL, s.cfg.OtpMaxAttempts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.Status != before {
		s.announce(ctx, r)
	}
	if outcome != nil {
		return nil, outcome
	}

	a, err := s.directory.Get(ctx, r.AffiliateID)
	if err != nil {
		return nil, fmt.Errorf("resolving affiliate %s: %w", r.AffiliateID, err)
	}

	s.logger.Info("withdrawal otp resent",
		"affiliate_id", r.AffiliateID,
		"request_id", r.ID,
		"resends", r.Challenge.Resends,
		"expires_at", r.Challenge.ExpiresAt,
	)
	return s.dispatch(ctx, r, a.Email, code), nil
}

// SweepExpired moves up to limit lapsed pending requests to Expired
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		var expired bool
		r, err := s.store.Update(ctx, id, func(_ context.Context, r *Request) error {
			expired = r.Expire(s.now())
			return nil
		})
		if err != nil {
			return swept, fmt.Errorf("expiring %s: %w", id, err)
		}
		if expired {
			swept++
			s.announce(ctx, r)
		}
	}
	return swept, nil
}

// Get retrieves a request by ID
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.store.Get(ctx, id)
}

// List returns an affiliate's requests, newest first
func (s *Service) List(ctx context.Context, affiliateID string, limit, offset int) ([]*Request, int64, error) {
	return s.store.List(ctx, affiliateID, limit, offset)
}
