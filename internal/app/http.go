package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	affiliateapi "affiliatepay/internal/affiliate/api"
	commissionapi "affiliatepay/internal/commission/api"
	"affiliatepay/internal/common/middleware"
	kpiapi "affiliatepay/internal/kpi/api"
	ledgerapi "affiliatepay/internal/ledger/api"
	withdrawalapi "affiliatepay/internal/withdrawal/api"
)

// Handler builds the HTTP router for every service
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(a.Logger))
	r.Use(middleware.Logger(a.Logger))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := a.HealthCheck(r.Context()); err != nil {
			a.Logger.Warn("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CallerIdentity)

		r.Mount("/affiliates", affiliateapi.NewHandler(a.Affiliates).Routes())
		r.Mount("/commissions", commissionapi.NewHandler(a.Commissions).Routes())
		r.Mount("/ledger", ledgerapi.NewHandler(a.Ledger).Routes())
		r.Mount("/kpi", kpiapi.NewHandler(a.KPI).Routes())
		r.Mount("/withdrawals", withdrawalapi.NewHandler(a.Withdrawals).Routes())
	})

	return r
}
