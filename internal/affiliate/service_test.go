package affiliate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/events"
	"affiliatepay/internal/kpi"
	"affiliatepay/internal/ledger"
	ledgerstore "affiliatepay/internal/ledger/store"
)

type fixture struct {
	svc    *Service
	ledger *ledger.Service
	tiers  *kpi.Service
	ctx    context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := events.LogPublisher{Logger: logger}

	ledgers := ledger.NewService(ledgerstore.NewMemory(), pub, logger)
	tiers := kpi.NewService(kpi.NewMemoryStore(), ledgers, pub, time.UTC, logger)
	return &fixture{
		svc:    NewService(NewMemoryStore(), ledgers, tiers, logger),
		ledger: ledgers,
		tiers:  tiers,
		ctx:    context.Background(),
	}
}

func TestRegisterOpensBalance(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.Register(f.ctx, RegisterRequest{
		ID:    "sme-1",
		Class: ClassSME,
		Name:  "  Shop One ",
		Email: " Owner@Example.COM ",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.Name != "Shop One" || a.Email != "owner@example.com" {
		t.Fatalf("profile not normalized: %+v", a)
	}

	acct, err := f.ledger.GetBalance(f.ctx, "sme-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if acct.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", acct.Remaining)
	}

	if _, err := f.tiers.GetState(f.ctx, "sme-1"); !errors.Is(err, kpi.ErrNotEnrolled) {
		t.Fatalf("sme enrolled in leveling: %v", err)
	}
}

func TestRegisterTieredEnrolls(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Register(f.ctx, RegisterRequest{ID: "t-1", Class: ClassTiered, Name: "Tier", Email: "t@example.com"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	st, err := f.tiers.GetState(f.ctx, "t-1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.AffiliateID != "t-1" {
		t.Fatalf("state = %+v", st)
	}
}

func TestRegisterGeneratesID(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.Register(f.ctx, RegisterRequest{Class: ClassPartner, Name: "P", Email: "p@example.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(a.ID) != 26 {
		t.Fatalf("id = %q, want a ulid", a.ID)
	}
	got, err := f.svc.Get(f.ctx, a.ID)
	if err != nil || got.Email != "p@example.com" {
		t.Fatalf("get = %+v, %v", got, err)
	}
}

func TestRegisterErrors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Register(f.ctx, RegisterRequest{ID: "x", Class: "gold", Name: "X", Email: "x@example.com"}); !errors.Is(err, ErrInvalidClass) {
		t.Fatalf("err = %v, want ErrInvalidClass", err)
	}

	req := RegisterRequest{ID: "dup", Class: ClassSME, Name: "D", Email: "d@example.com"}
	if _, err := f.svc.Register(f.ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Register(f.ctx, req); !errors.Is(err, database.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}

	if _, err := f.svc.Get(f.ctx, "missing"); !database.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestParseClass(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"partner", "sme", "tiered"} {
		if _, err := ParseClass(in); err != nil {
			t.Fatalf("ParseClass(%q): %v", in, err)
		}
	}
	if _, err := ParseClass("Partner"); !errors.Is(err, ErrInvalidClass) {
		t.Fatalf("err = %v", err)
	}
}
