// Package app wires configuration, infrastructure and domain services into
// the process shared by the HTTP service and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"affiliatepay/internal/affiliate"
	"affiliatepay/internal/commission"
	"affiliatepay/internal/common/cache"
	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/events"
	"affiliatepay/internal/common/nats"
	"affiliatepay/internal/kpi"
	"affiliatepay/internal/ledger"
	ledgerstore "affiliatepay/internal/ledger/store"
	"affiliatepay/internal/notify"
	"affiliatepay/internal/withdrawal"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds process configuration
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	Database   database.Config
	NATS       nats.Config
	Cache      cache.Config
	Withdrawal withdrawal.Config
	Notify     notify.Config
}

// App holds the wired services
type App struct {
	Config Config
	Logger *slog.Logger

	DB        *database.DB
	NATS      *nats.Client
	Cache     *cache.Client
	Publisher events.Publisher
	Location  *time.Location

	Ledger      *ledger.Service
	KPI         *kpi.Service
	Affiliates  *affiliate.Service
	Commissions *commission.Service
	Withdrawals *withdrawal.Service

	closers []func()
}

// Build connects the configured infrastructure and creates every service.
// Optional infrastructure (NATS, Redis) is skipped when unconfigured.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	window, err := cfg.Withdrawal.Window()
	if err != nil {
		return err
	}
	a.Location = window.Location

	var (
		ledgerStore     ledger.Store
		kpiStore        kpi.Store
		affiliateStore  affiliate.Store
		withdrawalStore withdrawal.Store
	)
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(cfg.Database.URL, a.Logger); err != nil {
				return err
			}
		}
		db, err := database.New(ctx, cfg.Database, a.Logger)
		if err != nil {
			return err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)

		ledgerStore = ledgerstore.NewPostgres(db)
		kpiStore = kpi.NewPostgresStore(db)
		affiliateStore = affiliate.NewPostgresStore(db)
		withdrawalStore = withdrawal.NewPostgresStore(db)
	case DriverMemory:
		a.Logger.Warn("using in-memory stores, state is lost on restart")
		ledgerStore = ledgerstore.NewMemory()
		kpiStore = kpi.NewMemoryStore()
		affiliateStore = affiliate.NewMemoryStore()
		withdrawalStore = withdrawal.NewMemoryStore()
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	a.Publisher = events.LogPublisher{Logger: a.Logger}
	var raw notify.RawPublisher
	if cfg.NATS.URL != "" {
		nc, err := nats.New(ctx, cfg.NATS, a.Logger)
		if err != nil {
			return err
		}
		a.NATS = nc
		a.closers = append(a.closers, nc.Close)
		if err := nc.EnsureDefaultStreams(ctx); err != nil {
			return err
		}
		pub := nats.NewPublisher(nc, a.Logger)
		a.Publisher = pub
		raw = pub
	}

	if cfg.Cache.Enabled() {
		cc, err := cache.New(ctx, cfg.Cache, a.Logger)
		if err != nil {
			return err
		}
		a.Cache = cc
		a.closers = append(a.closers, func() { _ = cc.Close() })
	}

	sender, err := notify.New(cfg.Notify, raw, a.Logger)
	if err != nil {
		return err
	}

	a.Ledger = ledger.NewService(ledgerStore, a.Publisher, a.Logger)
	a.KPI = kpi.NewService(kpiStore, a.Ledger, a.Publisher, a.Location, a.Logger)
	a.Affiliates = affiliate.NewService(affiliateStore, a.Ledger, a.KPI, a.Logger)
	a.Commissions = commission.NewService(a.Affiliates, a.Ledger, a.KPI, a.Publisher, a.Logger)

	a.Withdrawals, err = withdrawal.NewService(cfg.Withdrawal, withdrawalStore, a.Ledger, a.Affiliates, sender, a.Publisher, a.Logger)
	if err != nil {
		return err
	}
	if a.Cache != nil {
		a.Withdrawals.SetThrottle(a.Cache)
	}

	return nil
}

// Close releases infrastructure in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Consumers routes inbound domain events to their services
func (a *App) Consumers() *nats.Router {
	rt := nats.NewRouter(a.Logger)
	rt.Handle(events.EventContractClosed, a.Commissions.HandleContractClosed)
	rt.Handle(events.EventContactStatusChanged, a.KPI.HandleContactStatusChanged)
	return rt
}

// HealthCheck checks every connected dependency
func (a *App) HealthCheck(ctx context.Context) error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.HealthCheck(ctx))
	}
	if a.NATS != nil {
		errs = append(errs, a.NATS.HealthCheck())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.HealthCheck(ctx))
	}
	return errors.Join(errs...)
}

// SetupLogger builds the process logger
func SetupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
