package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"affiliatepay/internal/common/api"
	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/middleware"
	"affiliatepay/internal/ledger"
	"affiliatepay/internal/ledger/domain"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the ledger routes, mounted under /ledger
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{affiliateID}", func(r chi.Router) {
		r.Use(requireAccess)

		r.Get("/balance", h.GetBalance)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/reconcile", h.Reconcile)

		r.With(middleware.RequireAdmin).Post("/transactions", h.ApplyTransaction)
		r.With(middleware.RequireAdmin).Post("/bonus", h.AddBonus)
	})

	return r
}

func requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := middleware.GetCaller(r.Context())
		if !ok || !caller.CanActFor(chi.URLParam(r, "affiliateID")) {
			api.Forbidden(w, "not allowed to access this affiliate")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ApplyTransactionRequest is the API request for applying a transaction
type ApplyTransactionRequest struct {
	Type        string `json:"type" validate:"required,oneof=SALARY COMMISSION WITHDRAWAL TAX BONUS OTHER"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Description string `json:"description" validate:"max=500"`
	ReferenceID string `json:"reference_id" validate:"max=200"`
}

// ApplyTransaction handles POST /{affiliateID}/transactions
func (h *Handler) ApplyTransaction(w http.ResponseWriter, r *http.Request) {
	var req ApplyTransactionRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	tx, err := h.service.ApplyTransaction(r.Context(), ledger.ApplyRequest{
		AffiliateID: chi.URLParam(r, "affiliateID"),
		Type:        domain.TransactionType(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, tx)
}

// AddBonusRequest is the API request for an administrative bonus
type AddBonusRequest struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	Description string `json:"description" validate:"required,max=500"`
}

// AddBonus handles POST /{affiliateID}/bonus
func (h *Handler) AddBonus(w http.ResponseWriter, r *http.Request) {
	var req AddBonusRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	remaining, err := h.service.AddBonus(r.Context(), chi.URLParam(r, "affiliateID"), req.Amount, req.Description)
	if err != nil {
		WriteError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, map[string]int64{"remaining_balance": remaining})
}

// GetBalance handles GET /{affiliateID}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.GetBalance(r.Context(), chi.URLParam(r, "affiliateID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, acct)
}

// ListTransactions handles GET /{affiliateID}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p := api.GetPaginationParams(r, 50, 200)

	txs, total, err := h.service.History(r.Context(), chi.URLParam(r, "affiliateID"), p.Limit, p.Offset)
	if err != nil {
		WriteError(w, err)
		return
	}

	api.WritePaginated(w, txs, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: int64(p.Offset+len(txs)) < total,
	})
}

// Reconcile handles GET /{affiliateID}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Reconcile(r.Context(), chi.URLParam(r, "affiliateID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, report)
}

// WriteError maps ledger errors onto the response envelope
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		api.WriteError(w, http.StatusConflict, api.ErrCodeInsufficientBalance, "insufficient balance")
	case errors.Is(err, domain.ErrInvalidAmount):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeInvalidAmount, err.Error())
	case errors.Is(err, domain.ErrInvalidType):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, err.Error())
	case errors.Is(err, domain.ErrDuplicateReference):
		api.Conflict(w, "reference already applied")
	case database.IsNotFound(err):
		api.NotFound(w, "balance not found")
	default:
		api.InternalError(w, "ledger operation failed")
	}
}
