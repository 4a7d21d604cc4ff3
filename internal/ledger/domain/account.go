package domain

import (
	"time"
)

// Account is an affiliate's balance triple. Remaining is always Received - Paid.
type Account struct {
	AffiliateID string    `json:"affiliate_id"`
	Received    int64     `json:"received_balance"`
	Paid        int64     `json:"paid_balance"`
	Remaining   int64     `json:"remaining_balance"`
	Sequence    int64     `json:"-"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewAccount opens an empty account
func NewAccount(affiliateID string, at time.Time) *Account {
	return &Account{
		AffiliateID: affiliateID,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// Apply mutates the balance for one posting and returns the resulting entry.
// It is the only code path that writes Received or Paid.
func (a *Account) Apply(p Posting, id string, at time.Time) (*Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if p.Type.IsDebit() {
		if p.Amount > a.Remaining {
			return nil, ErrInsufficientBalance
		}
		a.Paid += p.Amount
	} else {
		a.Received += p.Amount
	}
	a.Remaining = a.Received - a.Paid
	a.Sequence++
	a.Version++
	a.UpdatedAt = at

	return &Transaction{
		ID:           id,
		AffiliateID:  a.AffiliateID,
		Type:         p.Type,
		Amount:       p.Amount,
		Description:  p.Description,
		ReferenceID:  p.ReferenceID,
		BalanceAfter: a.Remaining,
		Sequence:     a.Sequence,
		CreatedAt:    at,
	}, nil
}

// ApplyAll applies postings in order as one unit. On error the account is
// left untouched.
func (a *Account) ApplyAll(postings []Posting, newID func() string, at time.Time) ([]*Transaction, error) {
	work := *a
	txs := make([]*Transaction, 0, len(postings))
	for _, p := range postings {
		tx, err := work.Apply(p, newID(), at)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	*a = work
	return txs, nil
}

// Mismatch is a ledger entry whose recorded balance_after disagrees with the
// running sum at its position
type Mismatch struct {
	TransactionID string `json:"transaction_id"`
	Sequence      int64  `json:"sequence"`
	Recorded      int64  `json:"recorded_balance_after"`
	Expected      int64  `json:"expected_balance_after"`
}

// Reconciliation reports whether an account agrees with its history
type Reconciliation struct {
	AffiliateID      string     `json:"affiliate_id"`
	Remaining        int64      `json:"remaining_balance"`
	SignedSum        int64      `json:"signed_sum"`
	LastBalanceAfter int64      `json:"last_balance_after"`
	TripleConsistent bool       `json:"triple_consistent"`
	Mismatches       []Mismatch `json:"mismatches,omitempty"`
	OK               bool       `json:"ok"`
}

// Reconcile replays txs (ordered by sequence) against acct
func Reconcile(acct *Account, txs []*Transaction) *Reconciliation {
	r := &Reconciliation{
		AffiliateID:      acct.AffiliateID,
		Remaining:        acct.Remaining,
		TripleConsistent: acct.Remaining == acct.Received-acct.Paid,
	}

	var running int64
	for _, tx := range txs {
		running += tx.SignedAmount()
		if tx.BalanceAfter != running {
			r.Mismatches = append(r.Mismatches, Mismatch{
				TransactionID: tx.ID,
				Sequence:      tx.Sequence,
				Recorded:      tx.BalanceAfter,
				Expected:      running,
			})
		}
	}
	r.SignedSum = running
	if n := len(txs); n > 0 {
		r.LastBalanceAfter = txs[n-1].BalanceAfter
	}

	r.OK = r.TripleConsistent &&
		len(r.Mismatches) == 0 &&
		r.SignedSum == acct.Remaining &&
		r.LastBalanceAfter == acct.Remaining
	return r
}
