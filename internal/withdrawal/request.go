// Package withdrawal implements OTP-gated withdrawal of an affiliate's balance.
//
// A request is created in PendingOtp and carries one live challenge. A correct
// code debits the ledger and completes the request; too many wrong codes
// reject it, and an unused challenge expires. The balance is only touched at
// verification.
package withdrawal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Status represents the state of a withdrawal request
type Status string

const (
	StatusPendingOtp Status = "pending_otp"
	StatusVerified   Status = "verified"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
	StatusCompleted  Status = "completed"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusCompleted
}

// Rejection reasons
const (
	ReasonTooManyAttempts     = "too_many_attempts"
	ReasonInsufficientBalance = "insufficient_balance"
)

// Errors
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrExceedsBalance      = errors.New("amount exceeds remaining balance")
	ErrExceedsDailyLimit   = errors.New("amount exceeds daily withdrawal limit")
	ErrInvalidOtp          = errors.New("invalid otp code")
	ErrOtpExpired          = errors.New("otp expired")
	ErrNoActiveChallenge   = errors.New("no active otp challenge")
	ErrRequestRejected     = errors.New("withdrawal request rejected")
	ErrInsufficientBalance = errors.New("insufficient balance at settlement")
	ErrResendTooSoon       = errors.New("otp resend requested too soon")
)

// InvalidOtpError reports a wrong code and the attempts still allowed
type InvalidOtpError struct {
	AttemptsLeft int
}

func (e *InvalidOtpError) Error() string {
	return fmt.Sprintf("invalid otp code, %d attempts left", e.AttemptsLeft)
}

// Is matches ErrInvalidOtp
func (e *InvalidOtpError) Is(target error) bool { return target == ErrInvalidOtp }

// DailyLimitError reports how much of the daily limit is already used
type DailyLimitError struct {
	Limit          int64
	TotalWithdrawn int64
	RemainingLimit int64
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("amount exceeds daily withdrawal limit: %d of %d used, %d remaining",
		e.TotalWithdrawn, e.Limit, e.RemainingLimit)
}

// Is matches ErrExceedsDailyLimit
func (e *DailyLimitError) Is(target error) bool { return target == ErrExceedsDailyLimit }

// ResendTooSoonError carries the wait before another resend is accepted
type ResendTooSoonError struct {
	RetryAfter time.Duration
}

func (e *ResendTooSoonError) Error() string {
	return fmt.Sprintf("otp resend requested too soon, retry in %s", e.RetryAfter.Round(time.Second))
}

// Is matches ErrResendTooSoon
func (e *ResendTooSoonError) Is(target error) bool { return target == ErrResendTooSoon }

// Challenge is the live OTP bound to a request. Only a hash of the code is kept.
type Challenge struct {
	CodeHash          string    `json:"-"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	Resends           int       `json:"resends"`
	IssuedAt          time.Time `json:"issued_at"`
}

// Expired reports whether the challenge can no longer be answered at now
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Request is a withdrawal request
type Request struct {
	ID              string     `json:"id"`
	AffiliateID     string     `json:"affiliate_id"`
	AmountRequested int64      `json:"amount_requested"`
	Tax             int64      `json:"tax"`
	AmountAfterTax  int64      `json:"amount_after_tax"`
	Note            string     `json:"note,omitempty"`
	TaxID           string     `json:"tax_id,omitempty"`
	Status          Status     `json:"status"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Challenge       Challenge  `json:"otp"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// CountsTowardLimit reports whether the amount is, or may still be, leaving
// the balance. Pending requests stop counting once their challenge expires.
func (r *Request) CountsTowardLimit(now time.Time) bool {
	switch r.Status {
	case StatusVerified, StatusCompleted:
		return true
	case StatusPendingOtp:
		return !r.Challenge.Expired(now)
	}
	return false
}

// Issue replaces the live challenge with a new code valid for ttl. The
// attempt counter is only set on the first issue.
func (r *Request) Issue(code string, now time.Time, ttl time.Duration, attempts int) {
	first := r.Challenge.IssuedAt.IsZero()
	r.Challenge.CodeHash = hashCode(r.ID, code)
	r.Challenge.IssuedAt = now
	r.Challenge.ExpiresAt = now.Add(ttl)
	if first {
		r.Challenge.AttemptsRemaining = attempts
	} else {
		r.Challenge.Resends++
	}
	r.UpdatedAt = now
}

// Active returns nil if the request still has a challenge that may be
// answered or replaced. An expired challenge moves the request to Expired.
func (r *Request) Active(now time.Time) error {
	switch r.Status {
	case StatusPendingOtp:
	case StatusExpired:
		return ErrOtpExpired
	case StatusRejected:
		return ErrRequestRejected
	default:
		return ErrNoActiveChallenge
	}
	if r.Challenge.Expired(now) {
		r.Status = StatusExpired
		r.UpdatedAt = now
		return ErrOtpExpired
	}
	return nil
}

// Answer checks a submitted code. A wrong code costs one attempt and the
// last one rejects the request. A match moves the request to Verified.
func (r *Request) Answer(code string, now time.Time) error {
	if err := r.Active(now); err != nil {
		return err
	}

	want, _ := hex.DecodeString(r.Challenge.CodeHash)
	got, _ := hex.DecodeString(hashCode(r.ID, code))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		if r.Challenge.AttemptsRemaining > 0 {
			r.Challenge.AttemptsRemaining--
		}
		r.UpdatedAt = now
		if r.Challenge.AttemptsRemaining == 0 {
			r.Reject(ReasonTooManyAttempts, now)
		}
		return &InvalidOtpError{AttemptsLeft: r.Challenge.AttemptsRemaining}
	}

	r.Status = StatusVerified
	r.UpdatedAt = now
	return nil
}

// Settle records the tax split on a verified request
func (r *Request) Settle(tax, net int64) {
	r.Tax = tax
	r.AmountAfterTax = net
}

// Complete marks a verified request as paid out
func (r *Request) Complete(now time.Time) {
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Reject closes the request without touching the balance
func (r *Request) Reject(reason string, now time.Time) {
	r.Status = StatusRejected
	r.RejectionReason = reason
	r.Challenge.CodeHash = ""
	r.UpdatedAt = now
}

// Expire closes a pending request whose challenge lapsed
func (r *Request) Expire(now time.Time) bool {
	if r.Status != StatusPendingOtp || !r.Challenge.Expired(now) {
		return false
	}
	r.Status = StatusExpired
	r.UpdatedAt = now
	return true
}

func hashCode(requestID, code string) string {
	sum := sha256.Sum256([]byte(requestID + ":" + code))
	return hex.EncodeToString(sum[:])
}

var codeSpace = big.NewInt(1_000_000)

// NewCode returns a uniformly random six digit code
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
