package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"affiliatepay/internal/app"
	"affiliatepay/internal/kpi"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "affiliatectl",
		Short:         "Administrative tasks for the affiliate payout service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(kpiCmd())
	rootCmd.AddCommand(salaryCmd())
	rootCmd.AddCommand(withdrawalsCmd())
	rootCmd.AddCommand(ledgerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (app.Config, error) {
	var cfg app.Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("processing config: %w", err)
	}
	return cfg, nil
}

// withApp builds the services for the duration of fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, app.SetupLogger(cfg.LogLevel, "text"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// periodFlag resolves --month, defaulting to the month before now in loc
func periodFlag(cmd *cobra.Command, now time.Time, loc *time.Location) (kpi.Period, error) {
	month, _ := cmd.Flags().GetString("month")
	if month == "" {
		lt := now.In(loc)
		return kpi.PeriodOf(time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0), loc), nil
	}
	return kpi.ParsePeriod(month)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
