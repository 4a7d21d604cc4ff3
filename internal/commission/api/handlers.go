package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"affiliatepay/internal/affiliate"
	"affiliatepay/internal/commission"
	"affiliatepay/internal/common/api"
	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/middleware"
)

// Handler handles commission HTTP requests
type Handler struct {
	service *commission.Service
}

// NewHandler creates a new commission handler
func NewHandler(service *commission.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the commission routes, mounted under /commissions
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/quote", h.Quote)
	r.With(middleware.RequireAdmin).Post("/contracts", h.CreditContract)

	return r
}

// QuoteRequest is the API request for a commission quote
type QuoteRequest struct {
	Class         string `json:"class" validate:"required,oneof=partner sme tiered"`
	ContractValue int64  `json:"contract_value" validate:"gte=0"`
}

// Quote handles POST /quote
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	q, err := commission.NewQuote(affiliate.Class(req.Class), req.ContractValue)
	if err != nil {
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, err.Error())
		return
	}

	api.WriteData(w, http.StatusOK, q)
}

// CreditContract handles POST /contracts
func (h *Handler) CreditContract(w http.ResponseWriter, r *http.Request) {
	var req commission.ContractClosure
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	credit, err := h.service.CreditContract(r.Context(), req)
	if err != nil {
		switch {
		case database.IsNotFound(err):
			api.NotFound(w, "affiliate not found")
		case errors.Is(err, commission.ErrNegativeValue), errors.Is(err, affiliate.ErrInvalidClass):
			api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, err.Error())
		default:
			api.InternalError(w, "failed to credit contract")
		}
		return
	}

	status := http.StatusCreated
	if credit.Duplicate || credit.Transaction == nil {
		status = http.StatusOK
	}
	api.WriteData(w, status, credit)
}
