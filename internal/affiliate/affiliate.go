// Package affiliate keeps the affiliate registry: class, contact email and
// payout bank details.
package affiliate

import (
	"errors"
	"fmt"
	"time"
)

// Class decides how commission is computed and whether KPI leveling applies
type Class string

const (
	ClassPartner Class = "partner"
	ClassSME     Class = "sme"
	ClassTiered  Class = "tiered"
)

// ErrInvalidClass is returned for an unknown affiliate class
var ErrInvalidClass = errors.New("invalid affiliate class")

// Valid reports whether c is a known class
func (c Class) Valid() bool {
	switch c {
	case ClassPartner, ClassSME, ClassTiered:
		return true
	}
	return false
}

// ParseClass parses a wire value
func ParseClass(s string) (Class, error) {
	c := Class(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidClass, s)
	}
	return c, nil
}

// Affiliate is a registered referrer
type Affiliate struct {
	ID                string    `json:"id"`
	Class             Class     `json:"class"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	BankAccountNumber string    `json:"bank_account_number,omitempty"`
	BankName          string    `json:"bank_name,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsTiered reports whether the affiliate takes part in KPI leveling
func (a *Affiliate) IsTiered() bool {
	return a.Class == ClassTiered
}
