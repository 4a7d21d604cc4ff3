// Package commission computes affiliate commission and credits it to the
// ledger when contracts close.
package commission

import (
	"errors"
	"fmt"

	"affiliatepay/internal/affiliate"
	"affiliatepay/internal/common/money"
)

// Commission rules
const (
	// Partner earns only above this value, exclusive.
	PartnerThreshold int64 = 30_000_000

	SMEMinValue  int64 = 1_000_000
	SMEMaxValue  int64 = 29_999_000
	SMEFixedRate int64 = 500_000
)

var (
	partnerRate = money.MustRate("0.03")
	tieredRate  = money.MustRate("0.03")
)

// ErrNegativeValue is returned for a contract value below zero
var ErrNegativeValue = errors.New("contract value must not be negative")

// Compute returns the commission owed on a contract of value closed by an
// affiliate of class. Fractions are rounded half up to a whole đồng.
func Compute(class affiliate.Class, value int64) (int64, error) {
	if value < 0 {
		return 0, ErrNegativeValue
	}

	switch class {
	case affiliate.ClassPartner:
		if value > PartnerThreshold {
			return partnerRate.Apply(value), nil
		}
		return 0, nil
	case affiliate.ClassSME:
		if value >= SMEMinValue && value <= SMEMaxValue {
			return SMEFixedRate, nil
		}
		return 0, nil
	case affiliate.ClassTiered:
		return tieredRate.Apply(value), nil
	}
	return 0, fmt.Errorf("%w: %q", affiliate.ErrInvalidClass, class)
}

// Quote is a commission computation with its unrounded value
type Quote struct {
	Class         affiliate.Class `json:"class"`
	ContractValue int64           `json:"contract_value"`
	Commission    int64           `json:"commission"`
	Exact         string          `json:"exact"`
}

// NewQuote computes a quote for display
func NewQuote(class affiliate.Class, value int64) (*Quote, error) {
	c, err := Compute(class, value)
	if err != nil {
		return nil, err
	}

	exact := fmt.Sprint(c)
	switch {
	case class == affiliate.ClassTiered:
		exact = tieredRate.Exact(value).String()
	case class == affiliate.ClassPartner && value > PartnerThreshold:
		exact = partnerRate.Exact(value).String()
	}

	return &Quote{Class: class, ContractValue: value, Commission: c, Exact: exact}, nil
}
