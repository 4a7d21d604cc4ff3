// Package money holds the amount arithmetic shared by commission, tax and ledger code.
//
// All amounts are whole Vietnamese đồng stored as int64. Fractional results of
// rate applications are rounded half up to the nearest đồng.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency represents an ISO 4217 currency code
type Currency string

// VND is the only currency the program pays out in.
const VND Currency = "VND"

// ErrInvalidRate is returned when a rate is negative or cannot be parsed.
var ErrInvalidRate = errors.New("invalid rate")

// Rate is a fractional multiplier, e.g. 0.03 for three percent.
type Rate struct {
	d decimal.Decimal
}

// ParseRate parses a decimal string such as "0.03".
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	if d.IsNegative() {
		return Rate{}, fmt.Errorf("%w: %q is negative", ErrInvalidRate, s)
	}
	return Rate{d: d}, nil
}

// MustRate parses a rate and panics on error. Intended for package-level constants.
func MustRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the decimal representation of the rate
func (r Rate) String() string {
	return r.d.String()
}

// Decode implements envconfig.Decoder
func (r *Rate) Decode(value string) error {
	parsed, err := ParseRate(value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// IsZero returns true if the rate is zero
func (r Rate) IsZero() bool {
	return r.d.IsZero()
}

// Apply multiplies amount by the rate and rounds half up to a whole đồng.
func (r Rate) Apply(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(r.d).Round(0).IntPart()
}

// Exact returns amount*rate without rounding, for display and audit.
func (r Rate) Exact(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(r.d)
}

var printer = message.NewPrinter(language.Vietnamese)

// Format renders an amount with Vietnamese digit grouping, e.g. "1.800.001 ₫".
func Format(amount int64) string {
	return printer.Sprintf("%d ₫", amount)
}

// Money represents an amount tagged with its currency, used on the wire
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// NewVND creates a VND money value
func NewVND(amount int64) Money {
	return Money{Amount: amount, Currency: VND}
}

// String returns a human-readable representation
func (m Money) String() string {
	if m.Currency == VND {
		return Format(m.Amount)
	}
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}
