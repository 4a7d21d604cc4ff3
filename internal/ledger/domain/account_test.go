package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var at = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seqID() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tx-%d", n)
	}
}

func TestApplyCreditsAndDebits(t *testing.T) {
	t.Parallel()

	a := NewAccount("aff-1", at)
	id := seqID()

	steps := []struct {
		p             Posting
		wantRemaining int64
		wantErr       error
	}{
		{Posting{Type: TypeCommission, Amount: 900_000}, 900_000, nil},
		{Posting{Type: TypeSalary, Amount: 5_000_000}, 5_900_000, nil},
		{Posting{Type: TypeWithdrawal, Amount: 1_000_000}, 4_900_000, nil},
		{Posting{Type: TypeTax, Amount: 4_900_001}, 4_900_000, ErrInsufficientBalance},
		{Posting{Type: TypeTax, Amount: 4_900_000}, 0, nil},
		{Posting{Type: TypeBonus, Amount: 0}, 0, ErrInvalidAmount},
		{Posting{Type: "REFUND", Amount: 1}, 0, ErrInvalidType},
	}

	for i, s := range steps {
		tx, err := a.Apply(s.p, id(), at)
		if !errors.Is(err, s.wantErr) {
			t.Fatalf("step %d: err = %v, want %v", i, err, s.wantErr)
		}
		if err == nil && tx.BalanceAfter != s.wantRemaining {
			t.Fatalf("step %d: balance_after = %d, want %d", i, tx.BalanceAfter, s.wantRemaining)
		}
		if a.Remaining != s.wantRemaining {
			t.Fatalf("step %d: remaining = %d, want %d", i, a.Remaining, s.wantRemaining)
		}
		if a.Remaining != a.Received-a.Paid {
			t.Fatalf("step %d: triple broken %+v", i, a)
		}
	}
}

func TestApplyAllIsAtomic(t *testing.T) {
	t.Parallel()

	a := NewAccount("aff-1", at)
	if _, err := a.Apply(Posting{Type: TypeCommission, Amount: 1_000}, "c", at); err != nil {
		t.Fatal(err)
	}

	_, err := a.ApplyAll([]Posting{
		{Type: TypeWithdrawal, Amount: 900},
		{Type: TypeTax, Amount: 200},
	}, seqID(), at)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if a.Remaining != 1_000 || a.Paid != 0 || a.Sequence != 1 {
		t.Fatalf("account mutated by failed batch: %+v", a)
	}

	txs, err := a.ApplyAll([]Posting{
		{Type: TypeWithdrawal, Amount: 900},
		{Type: TypeTax, Amount: 100},
	}, seqID(), at)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || txs[1].BalanceAfter != 0 || txs[1].Sequence != 3 {
		t.Fatalf("unexpected entries %+v %+v", txs[0], txs[1])
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	a := NewAccount("aff-1", at)
	var txs []*Transaction
	for _, p := range []Posting{
		{Type: TypeCommission, Amount: 3_000_000},
		{Type: TypeBonus, Amount: 500_000},
		{Type: TypeWithdrawal, Amount: 1_800_001},
		{Type: TypeTax, Amount: 200_000},
	} {
		tx, err := a.Apply(p, fmt.Sprint(p.Type), at)
		if err != nil {
			t.Fatal(err)
		}
		txs = append(txs, tx)
	}

	r := Reconcile(a, txs)
	if !r.OK || r.SignedSum != 1_499_999 {
		t.Fatalf("reconciliation = %+v", r)
	}

	txs[1].BalanceAfter++
	r = Reconcile(a, txs)
	if r.OK || len(r.Mismatches) != 1 || r.Mismatches[0].Sequence != 2 {
		t.Fatalf("tampered entry not detected: %+v", r)
	}
}

func TestParseTransactionType(t *testing.T) {
	t.Parallel()

	if tt, err := ParseTransactionType("TAX"); err != nil || !tt.IsDebit() {
		t.Fatalf("TAX: %v %v", tt, err)
	}
	if _, err := ParseTransactionType("tax"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("lowercase must be rejected, got %v", err)
	}
}
