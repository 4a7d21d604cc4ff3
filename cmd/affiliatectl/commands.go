package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"affiliatepay/internal/app"
	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/money"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *database.Migrator) error { return mg.Up() })
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrator(func(mg *database.Migrator) error { return mg.Down(steps) })
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func withMigrator(fn func(mg *database.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	mg, err := database.NewMigrator(cfg.Database.URL, app.SetupLogger(cfg.LogLevel, "text"))
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}

func kpiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Tiered affiliate KPI tasks",
	}

	evaluate := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a closed month for every tiered affiliate",
		Long: `Evaluate a closed month for every enrolled tiered affiliate.

Months already evaluated are skipped, so the command is safe to re-run.
Affiliates with an earlier month still unevaluated are skipped with a warning.

Examples:
  affiliatectl kpi evaluate
  affiliatectl kpi evaluate --month 2024-05`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := periodFlag(cmd, time.Now(), a.Location)
				if err != nil {
					return err
				}
				evals, err := a.KPI.EvaluateAll(ctx, p)
				if err != nil {
					return err
				}
				for _, ev := range evals {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s -> %s\n", ev.AffiliateID, p, ev.PreviousLevel, ev.NewLevel)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evaluated %d affiliates for %s\n", len(evals), p)
				return nil
			})
		},
	}
	evaluate.Flags().String("month", "", "Month to evaluate as yyyy-mm (default: previous month)")

	cmd.AddCommand(evaluate)
	return cmd
}

func salaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salary",
		Short: "Tiered affiliate base salary",
	}

	pay := &cobra.Command{
		Use:   "pay",
		Short: "Credit a month's base salary to every tiered affiliate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := periodFlag(cmd, time.Now(), a.Location)
				if err != nil {
					return err
				}
				txs, err := a.KPI.PayAllSalaries(ctx, p)
				if err != nil {
					return err
				}
				var total int64
				for _, tx := range txs {
					total += tx.Amount
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tx.AffiliateID, money.Format(tx.Amount))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "paid %d salaries for %s, total %s\n", len(txs), p, money.Format(total))
				return nil
			})
		},
	}
	pay.Flags().String("month", "", "Month to pay as yyyy-mm (default: previous month)")

	cmd.AddCommand(pay)
	return cmd
}

func withdrawalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "Withdrawal maintenance",
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending requests whose code has lapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _ := cmd.Flags().GetInt("batch")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				total := 0
				for {
					n, err := a.Withdrawals.SweepExpired(ctx, batch)
					if err != nil {
						return err
					}
					total += n
					if n < batch {
						break
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d requests\n", total)
				return nil
			})
		},
	}
	sweep.Flags().Int("batch", 100, "Requests expired per pass")

	cmd.AddCommand(sweep)
	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Balance ledger tasks",
	}

	reconcile := &cobra.Command{
		Use:   "reconcile [affiliate-id]",
		Short: "Replay ledger history against stored balances",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					r, err := a.Ledger.Reconcile(ctx, args[0])
					if err != nil {
						return err
					}
					if err := printJSON(cmd.OutOrStdout(), r); err != nil {
						return err
					}
					if !r.OK {
						return fmt.Errorf("ledger for %s is out of balance", args[0])
					}
					return nil
				}

				failed, checked, err := a.Ledger.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				if len(failed) > 0 {
					if err := printJSON(cmd.OutOrStdout(), failed); err != nil {
						return err
					}
					return fmt.Errorf("%d of %d ledgers out of balance", len(failed), checked)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d ledgers balanced\n", checked)
				return nil
			})
		},
	}

	cmd.AddCommand(reconcile)
	return cmd
}
