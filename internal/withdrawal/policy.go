package withdrawal

import (
	"errors"
	"fmt"
	"time"

	"affiliatepay/internal/common/money"
)

// Config holds withdrawal policy configuration
type Config struct {
	DailyLimit     int64         `envconfig:"WITHDRAWAL_DAILY_LIMIT" default:"20000000"`
	ResetHour      int           `envconfig:"WITHDRAWAL_RESET_HOUR" default:"9"`
	Timezone       string        `envconfig:"WITHDRAWAL_TIMEZONE" default:"Asia/Ho_Chi_Minh"`
	OtpTTL         time.Duration `envconfig:"OTP_TTL" default:"5m"`
	OtpMaxAttempts int           `envconfig:"OTP_MAX_ATTEMPTS" default:"5"`
	ResendCooldown time.Duration `envconfig:"OTP_RESEND_COOLDOWN" default:"30s"`
	TaxThreshold   int64         `envconfig:"WITHDRAWAL_TAX_THRESHOLD" default:"2000000"`
	TaxRate        money.Rate    `envconfig:"WITHDRAWAL_TAX_RATE" default:"0.10"`
	SweepInterval  time.Duration `envconfig:"WITHDRAWAL_SWEEP_INTERVAL" default:"1m"`
}

// DefaultConfig returns the program's standard policy
func DefaultConfig() Config {
	return Config{
		DailyLimit:     20_000_000,
		ResetHour:      9,
		Timezone:       "Asia/Ho_Chi_Minh",
		OtpTTL:         5 * time.Minute,
		OtpMaxAttempts: 5,
		ResendCooldown: 30 * time.Second,
		TaxThreshold:   2_000_000,
		TaxRate:        money.MustRate("0.10"),
		SweepInterval:  time.Minute,
	}
}

// Validate checks the configuration for impossible values
func (c Config) Validate() error {
	switch {
	case c.DailyLimit <= 0:
		return errors.New("WITHDRAWAL_DAILY_LIMIT must be positive")
	case c.ResetHour < 0 || c.ResetHour > 23:
		return errors.New("WITHDRAWAL_RESET_HOUR must be between 0 and 23")
	case c.OtpTTL <= 0:
		return errors.New("OTP_TTL must be positive")
	case c.OtpMaxAttempts <= 0:
		return errors.New("OTP_MAX_ATTEMPTS must be positive")
	case c.TaxThreshold < 0:
		return errors.New("WITHDRAWAL_TAX_THRESHOLD must not be negative")
	}
	return nil
}

// Window loads the configured zone and returns the daily window
func (c Config) Window() (DailyWindow, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return DailyWindow{}, fmt.Errorf("loading WITHDRAWAL_TIMEZONE %q: %w", c.Timezone, err)
	}
	return DailyWindow{ResetHour: c.ResetHour, Location: loc}, nil
}

// Tax returns the configured tax policy
func (c Config) Tax() TaxPolicy {
	return TaxPolicy{Threshold: c.TaxThreshold, Rate: c.TaxRate}
}

// TaxPolicy withholds Rate of amounts strictly above Threshold
type TaxPolicy struct {
	Threshold int64
	Rate      money.Rate
}

// Compute returns the tax and the net paid out for amount
func (p TaxPolicy) Compute(amount int64) (tax, net int64) {
	if amount > p.Threshold {
		tax = p.Rate.Apply(amount)
	}
	return tax, amount - tax
}

// DailyWindow is a day that starts at ResetHour in Location rather than at midnight
type DailyWindow struct {
	ResetHour int
	Location  *time.Location
}

// Bounds returns the window containing now as [start, end)
func (w DailyWindow) Bounds(now time.Time) (start, end time.Time) {
	local := now.In(w.Location)
	start = time.Date(local.Year(), local.Month(), local.Day(), w.ResetHour, 0, 0, 0, w.Location)
	if local.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start, start.AddDate(0, 0, 1)
}
