package withdrawal

import (
	"testing"
	"time"

	"affiliatepay/internal/common/money"
)

func TestTaxBoundary(t *testing.T) {
	t.Parallel()

	p := TaxPolicy{Threshold: 2_000_000, Rate: money.MustRate("0.10")}

	tests := []struct {
		amount, tax, net int64
	}{
		{2_000_000, 0, 2_000_000},
		{2_000_001, 200_000, 1_800_001},
		{2_000_005, 200_001, 1_800_004},
		{12_000_000, 1_200_000, 10_800_000},
		{1, 0, 1},
	}
	for _, tt := range tests {
		tax, net := p.Compute(tt.amount)
		if tax != tt.tax || net != tt.net {
			t.Errorf("Compute(%d) = (%d, %d), want (%d, %d)", tt.amount, tax, net, tt.tax, tt.net)
		}
	}
}

func TestDailyWindowResetsAtNine(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ICT", 7*3600)
	w := DailyWindow{ResetHour: 9, Location: loc}

	tests := []struct {
		name  string
		now   time.Time
		start time.Time
	}{
		{"before reset belongs to previous day", time.Date(2024, 5, 2, 8, 0, 0, 0, loc), time.Date(2024, 5, 1, 9, 0, 0, 0, loc)},
		{"exactly at reset opens new window", time.Date(2024, 5, 2, 9, 0, 0, 0, loc), time.Date(2024, 5, 2, 9, 0, 0, 0, loc)},
		{"after reset", time.Date(2024, 5, 2, 9, 1, 0, 0, loc), time.Date(2024, 5, 2, 9, 0, 0, 0, loc)},
		{"late evening", time.Date(2024, 5, 2, 23, 59, 0, 0, loc), time.Date(2024, 5, 2, 9, 0, 0, 0, loc)},
		{"utc input is converted", time.Date(2024, 5, 2, 1, 30, 0, 0, time.UTC), time.Date(2024, 5, 1, 9, 0, 0, 0, loc)},
		{"month boundary", time.Date(2024, 6, 1, 3, 0, 0, 0, loc), time.Date(2024, 5, 31, 9, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			start, end := w.Bounds(tt.now)
			if !start.Equal(tt.start) {
				t.Fatalf("start = %s, want %s", start, tt.start)
			}
			if !end.Equal(tt.start.Add(24 * time.Hour)) {
				t.Fatalf("end = %s", end)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.ResetHour = 24
	if err := bad.Validate(); err == nil {
		t.Fatal("reset hour 24 accepted")
	}

	bad = DefaultConfig()
	bad.Timezone = "Mars/Olympus"
	if _, err := bad.Window(); err == nil {
		t.Fatal("unknown timezone accepted")
	}
}
