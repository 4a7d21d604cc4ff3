package money

import (
	"errors"
	"testing"
)

func TestRateApplyRoundsHalfUp(t *testing.T) {
	t.Parallel()

	threePercent := MustRate("0.03")
	tenPercent := MustRate("0.10")

	tests := []struct {
		name   string
		rate   Rate
		amount int64
		want   int64
	}{
		{"fraction below half", threePercent, 30_000_001, 900_000},
		{"tiny amount", threePercent, 1, 0},
		{"exactly half", threePercent, 50, 2},
		{"above half", threePercent, 17, 1},
		{"tax fraction", tenPercent, 2_000_001, 200_000},
		{"tax half", tenPercent, 2_000_005, 200_001},
		{"zero", tenPercent, 0, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.rate.Apply(tt.amount); got != tt.want {
				t.Fatalf("Apply(%d) = %d, want %d", tt.amount, got, tt.want)
			}
		})
	}
}

func TestParseRateRejectsBadInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "-0.1"} {
		if _, err := ParseRate(in); !errors.Is(err, ErrInvalidRate) {
			t.Fatalf("ParseRate(%q) error = %v, want ErrInvalidRate", in, err)
		}
	}
}

func TestRateDecode(t *testing.T) {
	t.Parallel()

	var r Rate
	if err := r.Decode("0.10"); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := r.Apply(1_000_000); got != 100_000 {
		t.Fatalf("Apply = %d, want 100000", got)
	}
}

func TestExactKeepsFraction(t *testing.T) {
	t.Parallel()

	got := MustRate("0.03").Exact(30_000_001).String()
	if got != "900000.03" {
		t.Fatalf("Exact = %s, want 900000.03", got)
	}
}
