package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"affiliatepay/internal/common/api"
	"affiliatepay/internal/common/middleware"
	"affiliatepay/internal/kpi"
)

// Handler handles KPI HTTP requests
type Handler struct {
	service *kpi.Service
}

// NewHandler creates a new KPI handler
func NewHandler(service *kpi.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the KPI routes, mounted under /kpi
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(middleware.RequireAdmin).Post("/{affiliateID}/evaluations", h.Evaluate)
	r.Get("/{affiliateID}/records", h.Records)

	return r
}

// EvaluateRequest is the API request for a monthly evaluation
type EvaluateRequest struct {
	Year  int    `json:"year" validate:"gte=2000,lte=9999"`
	Month int    `json:"month" validate:"gte=1,lte=12"`
	Note  string `json:"note" validate:"max=1000"`
}

// Evaluate handles POST /{affiliateID}/evaluations
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	ev, err := h.service.EvaluateMonthly(r.Context(), kpi.EvaluateRequest{
		AffiliateID: chi.URLParam(r, "affiliateID"),
		Year:        req.Year,
		Month:       req.Month,
		Note:        req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, ev)
}

// RecordsResponse is the KPI history of one affiliate
type RecordsResponse struct {
	State   *kpi.State    `json:"state"`
	Records []*kpi.Record `json:"records"`
}

// Records handles GET /{affiliateID}/records
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "affiliateID")

	caller, ok := middleware.GetCaller(r.Context())
	if !ok || !caller.CanActFor(id) {
		api.Forbidden(w, "not allowed to access this affiliate")
		return
	}

	recs, st, err := h.service.Records(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*kpi.Record{}
	}

	api.WriteData(w, http.StatusOK, RecordsResponse{State: st, Records: recs})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kpi.ErrAlreadyEvaluated):
		api.WriteError(w, http.StatusConflict, api.ErrCodeAlreadyEvaluated, "month already evaluated")
	case errors.Is(err, kpi.ErrNotEnrolled):
		api.NotFound(w, "affiliate is not enrolled in leveling")
	case errors.Is(err, kpi.ErrMonthOpen), errors.Is(err, kpi.ErrOutOfOrder):
		api.Conflict(w, err.Error())
	case errors.Is(err, kpi.ErrInvalidPeriod):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, err.Error())
	default:
		api.InternalError(w, "kpi operation failed")
	}
}
