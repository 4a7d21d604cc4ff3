package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"affiliatepay/internal/common/api"
	"affiliatepay/internal/common/database"
	"affiliatepay/internal/common/middleware"
	"affiliatepay/internal/withdrawal"
)

// Warning codes
const WarnCodeOtpNotDelivered = "OTP_NOT_DELIVERED"

// Handler handles withdrawal HTTP requests
type Handler struct {
	service *withdrawal.Service
}

// NewHandler creates a new withdrawal handler
func NewHandler(service *withdrawal.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the withdrawal routes, mounted under /withdrawals
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireCaller)

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/daily-limit", h.CheckDailyLimit)

	r.Route("/{requestID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/verify", h.Verify)
		r.Post("/resend", h.Resend)
	})

	return r
}

// target resolves the affiliate a request acts for. Affiliates act for
// themselves; admins must name one.
func target(r *http.Request, requested string) (string, bool) {
	caller, _ := middleware.GetCaller(r.Context())
	id := requested
	if id == "" {
		id = caller.AffiliateID
	}
	if id == "" || !caller.CanActFor(id) {
		return "", false
	}
	return id, true
}

// CreateRequest is the API request for a withdrawal
type CreateRequest struct {
	AffiliateID string `json:"affiliate_id" validate:"omitempty,max=64"`
	Amount      int64  `json:"amount"`
	Note        string `json:"note" validate:"max=500"`
	TaxID       string `json:"tax_id" validate:"omitempty,max=20"`
}

// CreateResponse is the API response for a new withdrawal
type CreateResponse struct {
	RequestID   string              `json:"request_id"`
	Status      withdrawal.Status   `json:"status"`
	MaskedEmail string              `json:"masked_email"`
	ExpiresAt   time.Time           `json:"expires_at"`
	Request     *withdrawal.Request `json:"request"`
}

// Create handles POST /
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	affiliateID, ok := target(r, req.AffiliateID)
	if !ok {
		api.Forbidden(w, "not allowed to withdraw for this affiliate")
		return
	}

	issued, err := h.service.Create(r.Context(), withdrawal.CreateRequest{
		AffiliateID: affiliateID,
		Amount:      req.Amount,
		Note:        req.Note,
		TaxID:       req.TaxID,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	writeIssued(w, http.StatusCreated, issued)
}

func writeIssued(w http.ResponseWriter, status int, issued *withdrawal.Issued) {
	resp := CreateResponse{
		RequestID:   issued.Request.ID,
		Status:      issued.Request.Status,
		MaskedEmail: issued.MaskedEmail,
		ExpiresAt:   issued.ExpiresAt,
		Request:     issued.Request,
	}
	if issued.DeliveryErr != nil {
		api.WriteDataWithWarning(w, status, resp, &api.Warning{
			Code:    WarnCodeOtpNotDelivered,
			Message: "The verification code could not be delivered. Request a resend.",
		})
		return
	}
	api.WriteData(w, status, resp)
}

// List handles GET /
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	affiliateID, ok := target(r, r.URL.Query().Get("affiliate_id"))
	if !ok {
		api.Forbidden(w, "not allowed to access this affiliate")
		return
	}

	params := api.GetPaginationParams(r, 20, 100)
	requests, total, err := h.service.List(r.Context(), affiliateID, params.Limit, params.Offset)
	if err != nil {
		api.InternalError(w, "failed to list withdrawals")
		return
	}

	api.WritePaginated(w, requests, &api.Pagination{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: int64(params.Offset+len(requests)) < total,
	})
}

// CheckDailyLimit handles GET /daily-limit?amount=
func (h *Handler) CheckDailyLimit(w http.ResponseWriter, r *http.Request) {
	affiliateID, ok := target(r, r.URL.Query().Get("affiliate_id"))
	if !ok {
		api.Forbidden(w, "not allowed to access this affiliate")
		return
	}

	var amount int64
	if raw := r.URL.Query().Get("amount"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			api.BadRequest(w, "amount must be an integer")
			return
		}
		amount = n
	}

	check, err := h.service.CheckDailyLimit(r.Context(), affiliateID, amount)
	if err != nil {
		WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, check)
}

// load fetches the path's request and checks the caller may act on it
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*withdrawal.Request, bool) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		WriteError(w, err)
		return nil, false
	}
	caller, _ := middleware.GetCaller(r.Context())
	if !caller.CanActFor(req.AffiliateID) {
		api.NotFound(w, "withdrawal request not found")
		return nil, false
	}
	return req, true
}

// Get handles GET /{requestID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}
	api.WriteData(w, http.StatusOK, req)
}

// VerifyRequest is the API request carrying the OTP code
type VerifyRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyResponse is the API response for a completed withdrawal
type VerifyResponse struct {
	RequestID      string            `json:"request_id"`
	Status         withdrawal.Status `json:"status"`
	Amount         int64             `json:"amount"`
	Tax            int64             `json:"tax"`
	AmountAfterTax int64             `json:"amount_after_tax"`
}

// Verify handles POST /{requestID}/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}

	var body VerifyRequest
	if err := api.DecodeAndValidate(r, &body); err != nil {
		api.ValidationError(w, err)
		return
	}

	done, err := h.service.Verify(r.Context(), req.ID, body.Code)
	if err != nil {
		WriteError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, VerifyResponse{
		RequestID:      done.ID,
		Status:         done.Status,
		Amount:         done.AmountRequested,
		Tax:            done.Tax,
		AmountAfterTax: done.AmountAfterTax,
	})
}

// Resend handles POST /{requestID}/resend
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}

	issued, err := h.service.Resend(r.Context(), req.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeIssued(w, http.StatusOK, issued)
}

// WriteError maps withdrawal errors to API responses
func WriteError(w http.ResponseWriter, err error) {
	var (
		otpErr    *withdrawal.InvalidOtpError
		limitErr  *withdrawal.DailyLimitError
		resendErr *withdrawal.ResendTooSoonError
	)
	switch {
	case errors.As(err, &otpErr):
		api.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, api.ErrCodeInvalidOtp, "Invalid verification code",
			map[string]string{"attempts_left": strconv.Itoa(otpErr.AttemptsLeft)})
	case errors.As(err, &limitErr):
		api.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, api.ErrCodeExceedsDailyLimit, "Amount exceeds the daily withdrawal limit",
			map[string]string{
				"total_withdrawn_today": api.Itoa(limitErr.TotalWithdrawn),
				"remaining_limit":       api.Itoa(limitErr.RemainingLimit),
			})
	case errors.As(err, &resendErr):
		api.WriteErrorWithDetails(w, http.StatusTooManyRequests, api.ErrCodeTooManyResend, "Please wait before requesting a new code",
			map[string]string{"retry_after_seconds": api.Itoa(int64(resendErr.RetryAfter.Seconds()))})
	case errors.Is(err, withdrawal.ErrInvalidAmount):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeInvalidAmount, "Amount must be positive")
	case errors.Is(err, withdrawal.ErrExceedsBalance):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeExceedsBalance, "Amount exceeds the remaining balance")
	case errors.Is(err, withdrawal.ErrOtpExpired):
		api.WriteError(w, http.StatusGone, api.ErrCodeOtpExpired, "Verification code expired, create a new request")
	case errors.Is(err, withdrawal.ErrRequestRejected):
		api.WriteError(w, http.StatusConflict, api.ErrCodeRequestRejected, "Withdrawal request was rejected, create a new request")
	case errors.Is(err, withdrawal.ErrNoActiveChallenge):
		api.WriteError(w, http.StatusConflict, api.ErrCodeNoActiveChallenge, "Withdrawal request has no active verification code")
	case errors.Is(err, withdrawal.ErrInsufficientBalance):
		api.WriteError(w, http.StatusConflict, api.ErrCodeInsufficientBalance, "Balance is no longer sufficient, request rejected")
	case database.IsNotFound(err):
		api.NotFound(w, "affiliate or withdrawal request not found")
	default:
		api.InternalError(w, "withdrawal operation failed")
	}
}
