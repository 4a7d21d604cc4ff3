package domain

import (
	"errors"
	"fmt"
	"time"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TypeSalary     TransactionType = "SALARY"
	TypeCommission TransactionType = "COMMISSION"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeTax        TransactionType = "TAX"
	TypeBonus      TransactionType = "BONUS"
	TypeOther      TransactionType = "OTHER"
)

// Ledger errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrDuplicateReference  = errors.New("reference already applied")
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TypeSalary, TypeCommission, TypeWithdrawal, TypeTax, TypeBonus, TypeOther:
		return true
	}
	return false
}

// IsDebit reports whether the type moves money out of the balance
func (t TransactionType) IsDebit() bool {
	return t == TypeWithdrawal || t == TypeTax
}

// ParseTransactionType parses a wire value
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// Posting is a requested balance mutation, not yet applied
type Posting struct {
	Type        TransactionType
	Amount      int64
	Description string
	ReferenceID string
}

// Validate checks the posting in isolation
func (p Posting) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Transaction is an applied, immutable ledger entry
type Transaction struct {
	ID           string          `json:"id"`
	AffiliateID  string          `json:"affiliate_id"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	Description  string          `json:"description"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	BalanceAfter int64           `json:"balance_after"`
	Sequence     int64           `json:"sequence"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SignedAmount is negative for debits
func (t *Transaction) SignedAmount() int64 {
	if t.Type.IsDebit() {
		return -t.Amount
	}
	return t.Amount
}
