package withdrawal

import (
	"errors"
	"testing"
	"time"
)

func pending(now time.Time) *Request {
	r := &Request{ID: "wd-1", AffiliateID: "aff-1", AmountRequested: 1_000, Status: StatusPendingOtp, CreatedAt: now}
	r.Issue("123456", now, 5*time.Minute, 5)
	return r
}

func TestNewCodeIsSixDigits(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		code, err := NewCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not six digits", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q has non-digit", code)
			}
		}
	}
}

func TestChallengeStoresOnlyHash(t *testing.T) {
	t.Parallel()

	r := pending(time.Now())
	if r.Challenge.CodeHash == "" || r.Challenge.CodeHash == "123456" {
		t.Fatalf("code hash = %q", r.Challenge.CodeHash)
	}

	other := &Request{ID: "wd-2"}
	other.Issue("123456", time.Now(), time.Minute, 5)
	if other.Challenge.CodeHash == r.Challenge.CodeHash {
		t.Fatal("same code hashes identically across requests")
	}
}

func TestAnswerExpiresAtDeadline(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	r := pending(now)
	if err := r.Answer("123456", now.Add(5*time.Minute)); err != nil {
		t.Fatalf("answer exactly at expiry: %v", err)
	}

	r = pending(now)
	if err := r.Answer("123456", now.Add(5*time.Minute+time.Nanosecond)); !errors.Is(err, ErrOtpExpired) {
		t.Fatalf("error = %v, want ErrOtpExpired", err)
	}
	if r.Status != StatusExpired {
		t.Fatalf("status = %s", r.Status)
	}
}

func TestCountsTowardLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	later := now.Add(10 * time.Minute)

	tests := []struct {
		status Status
		at     time.Time
		want   bool
	}{
		{StatusPendingOtp, now, true},
		{StatusPendingOtp, later, false},
		{StatusVerified, later, true},
		{StatusCompleted, later, true},
		{StatusRejected, now, false},
		{StatusExpired, now, false},
	}
	for _, tt := range tests {
		r := pending(now)
		r.Status = tt.status
		if got := r.CountsTowardLimit(tt.at); got != tt.want {
			t.Errorf("%s at %s: got %v, want %v", tt.status, tt.at, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	for s, want := range map[Status]bool{
		StatusPendingOtp: false,
		StatusVerified:   false,
		StatusRejected:   true,
		StatusExpired:    true,
		StatusCompleted:  true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v", s, !want)
		}
	}
}
