package kpi

import (
	"errors"
	"testing"
	"time"
)

func TestStateApply(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		level        Level
		failures     int
		perf         Performance
		wantLevel    Level
		wantFailures int
		wantSalary   int64
	}{
		{"met promotes", Level1, 0, PerformanceMet, Level2, 0, 10_000_000},
		{"met resets failures", Level2, 1, PerformanceMet, Level3, 0, 15_000_000},
		{"met at top stays", Level3, 1, PerformanceMet, Level3, 0, 15_000_000},
		{"first miss keeps level", Level2, 0, PerformanceNotMet, Level2, 1, 10_000_000},
		{"second miss demotes", Level2, 1, PerformanceNotMet, Level1, 0, 5_000_000},
		{"second miss from top", Level3, 1, PerformanceNotMet, Level2, 0, 10_000_000},
		{"second miss at floor resets", Level1, 1, PerformanceNotMet, Level1, 0, 5_000_000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := &State{Level: tt.level, CurrentBaseSalary: tt.level.BaseSalary(), ConsecutiveFailures: tt.failures}
			prev, err := st.Apply(tt.perf, at)
			if err != nil {
				t.Fatal(err)
			}
			if prev != tt.level {
				t.Fatalf("previous = %s, want %s", prev, tt.level)
			}
			if st.Level != tt.wantLevel || st.ConsecutiveFailures != tt.wantFailures || st.CurrentBaseSalary != tt.wantSalary {
				t.Fatalf("state = %+v, want %s/%d/%d", st, tt.wantLevel, tt.wantFailures, tt.wantSalary)
			}
		})
	}
}

func TestApplyRejectsPending(t *testing.T) {
	t.Parallel()

	st := NewState("aff", time.Now())
	if _, err := st.Apply(PerformancePending, time.Now()); err == nil {
		t.Fatal("pending must not be applied")
	}
}

func TestThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level                         Level
		contacts, potential, contract int
		want                          Performance
	}{
		{Level1, 10, 5, 0, PerformanceMet},
		{Level1, 9, 5, 0, PerformanceNotMet},
		{Level1, 10, 4, 3, PerformanceNotMet},
		{Level2, 20, 10, 1, PerformanceMet},
		{Level2, 20, 10, 0, PerformanceNotMet},
		{Level3, 30, 15, 2, PerformanceMet},
		{Level3, 30, 15, 1, PerformanceNotMet},
	}

	for _, tt := range tests {
		rec := &Record{TotalContacts: tt.contacts, PotentialContacts: tt.potential, SignedContracts: tt.contract}
		if got := tt.level.Thresholds().Evaluate(rec); got != tt.want {
			t.Fatalf("%s %d/%d/%d = %s, want %s", tt.level, tt.contacts, tt.potential, tt.contract, got, tt.want)
		}
	}
}

func TestCountContact(t *testing.T) {
	t.Parallel()

	at := time.Now()
	rec := NewRecord("aff", Period{2024, 3}, at)
	for _, s := range []ContactStatus{ContactNew, ContactNew, ContactPotential, ContactSigned, ContactLost} {
		if err := rec.CountContact(s, at); err != nil {
			t.Fatal(err)
		}
	}
	if rec.TotalContacts != 2 || rec.PotentialContacts != 1 || rec.SignedContracts != 1 {
		t.Fatalf("counters = %+v", rec)
	}

	rec.Performance = PerformanceMet
	if err := rec.CountContact(ContactNew, at); err != ErrAlreadyEvaluated {
		t.Fatalf("err = %v, want ErrAlreadyEvaluated", err)
	}
}

func TestPeriodOfUsesZone(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ICT", 7*3600)
	// 2024-03-31 18:00 UTC is 2024-04-01 01:00 in UTC+7
	got := PeriodOf(time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC), loc)
	if got != (Period{2024, 4}) {
		t.Fatalf("PeriodOf = %v", got)
	}
	if end := (Period{2024, 12}).End(loc); !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, loc)) {
		t.Fatalf("End = %v", end)
	}
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	p, err := ParsePeriod("2024-07")
	if err != nil || p != (Period{2024, 7}) {
		t.Fatalf("ParsePeriod = %v, %v", p, err)
	}
	for _, in := range []string{"2024-13", "24-07", "july"} {
		if _, err := ParsePeriod(in); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("ParsePeriod(%q) err = %v", in, err)
		}
	}
}

func TestCheckNext(t *testing.T) {
	t.Parallel()

	st := NewState("kol-1", time.Now())
	if err := st.CheckNext(Period{2024, 5}); err != nil {
		t.Fatalf("first month: %v", err)
	}

	st.LastEvaluated = &Period{2024, 12}
	if got := st.LastEvaluated.Next(); got != (Period{2025, 1}) {
		t.Fatalf("Next = %v", got)
	}
	if err := st.CheckNext(Period{2025, 1}); err != nil {
		t.Fatalf("following month: %v", err)
	}
	for _, p := range []Period{{2024, 11}, {2025, 2}, {2024, 12}} {
		if err := st.CheckNext(p); !errors.Is(err, ErrOutOfOrder) {
			t.Fatalf("CheckNext(%v) err = %v", p, err)
		}
	}
}
