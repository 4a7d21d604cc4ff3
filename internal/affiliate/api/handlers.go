package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"affiliatepay/internal/affiliate"
	"affiliatepay/internal/common/api"
	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/middleware"
)

// Handler handles affiliate HTTP requests
type Handler struct {
	service *affiliate.Service
}

// NewHandler creates a new affiliate handler
func NewHandler(service *affiliate.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the affiliate routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(middleware.RequireAdmin).Post("/", h.Register)
	r.Get("/{id}", h.Get)

	return r
}

// Register handles POST /
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req affiliate.RegisterRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	a, err := h.service.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadyExists):
			api.Conflict(w, "affiliate already registered")
		case errors.Is(err, affiliate.ErrInvalidClass):
			api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, err.Error())
		default:
			api.InternalError(w, "failed to register affiliate")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, a)
}

// Get handles GET /{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	caller, ok := middleware.GetCaller(r.Context())
	if !ok || !caller.CanActFor(id) {
		api.Forbidden(w, "not allowed to access this affiliate")
		return
	}

	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "affiliate not found")
			return
		}
		api.InternalError(w, "failed to get affiliate")
		return
	}

	api.WriteData(w, http.StatusOK, a)
}
