package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"affiliatepay/internal/kpi"
)

func TestPeriodFlagDefaultsToPreviousMonth(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)

	cmd := &cobra.Command{}
	cmd.Flags().String("month", "", "")

	// 2024-01-01 00:30 in UTC+7 is still December 2023 in UTC
	now := time.Date(2023, 12, 31, 17, 30, 0, 0, time.UTC)
	p, err := periodFlag(cmd, now, loc)
	if err != nil {
		t.Fatal(err)
	}
	if p != (kpi.Period{Year: 2023, Month: 12}) {
		t.Fatalf("period = %v, want 2023-12", p)
	}

	if err := cmd.Flags().Set("month", "2024-05"); err != nil {
		t.Fatal(err)
	}
	p, err = periodFlag(cmd, now, loc)
	if err != nil || p != (kpi.Period{Year: 2024, Month: 5}) {
		t.Fatalf("period = %v, %v", p, err)
	}

	if err := cmd.Flags().Set("month", "2024-13"); err != nil {
		t.Fatal(err)
	}
	if _, err := periodFlag(cmd, now, loc); err == nil {
		t.Fatal("expected error for invalid month")
	}
}

func TestCommandTree(t *testing.T) {
	for _, c := range []*cobra.Command{migrateCmd(), kpiCmd(), salaryCmd(), withdrawalsCmd(), ledgerCmd()} {
		if !c.HasSubCommands() {
			t.Fatalf("%s has no subcommands", c.Name())
		}
	}
}
