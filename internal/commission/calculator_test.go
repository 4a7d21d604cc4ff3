package commission

import (
	"errors"
	"testing"

	"affiliatepay/internal/affiliate"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		class affiliate.Class
		value int64
		want  int64
	}{
		{"partner at threshold", affiliate.ClassPartner, 30_000_000, 0},
		{"partner above threshold", affiliate.ClassPartner, 30_000_001, 900_000},
		{"partner large", affiliate.ClassPartner, 100_000_000, 3_000_000},
		{"partner small", affiliate.ClassPartner, 5_000_000, 0},
		{"sme below band", affiliate.ClassSME, 999_999, 0},
		{"sme band low edge", affiliate.ClassSME, 1_000_000, 500_000},
		{"sme band high edge", affiliate.ClassSME, 29_999_000, 500_000},
		{"sme above band", affiliate.ClassSME, 29_999_001, 0},
		{"sme large", affiliate.ClassSME, 50_000_000, 0},
		{"tiered one dong", affiliate.ClassTiered, 1, 0},
		{"tiered rounds half up", affiliate.ClassTiered, 50, 2},
		{"tiered no threshold", affiliate.ClassTiered, 1_000_000, 30_000},
		{"zero", affiliate.ClassTiered, 0, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compute(tt.class, tt.value)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Compute(%s, %d) = %d, want %d", tt.class, tt.value, got, tt.want)
			}
		})
	}
}

func TestComputeErrors(t *testing.T) {
	t.Parallel()

	if _, err := Compute(affiliate.ClassPartner, -1); !errors.Is(err, ErrNegativeValue) {
		t.Fatalf("negative: %v", err)
	}
	if _, err := Compute("vip", 1); !errors.Is(err, affiliate.ErrInvalidClass) {
		t.Fatalf("unknown class: %v", err)
	}
}

func TestQuoteExact(t *testing.T) {
	t.Parallel()

	q, err := NewQuote(affiliate.ClassPartner, 30_000_001)
	if err != nil {
		t.Fatal(err)
	}
	if q.Commission != 900_000 || q.Exact != "900000.03" {
		t.Fatalf("quote = %+v", q)
	}

	q, _ = NewQuote(affiliate.ClassTiered, 1)
	if q.Commission != 0 || q.Exact != "0.03" {
		t.Fatalf("quote = %+v", q)
	}
}
