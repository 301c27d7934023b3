package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskrun/taskrun-api/internal/domain/user"
	"github.com/taskrun/taskrun-api/internal/middleware"
	"github.com/taskrun/taskrun-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type topUpRequest struct {
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id"`
}

type adjustRequest struct {
	Amount      int64  `json:"amount"`
	Type        string `json:"type"` // credit or debit
	ReferenceID string `json:"reference_id"`
}

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	tx, err := h.svc.TopUp(r.Context(), userID, req.Amount, req.ReferenceID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	response.Created(w, tx)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	wallet, err := h.svc.GetWallet(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, wallet)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := parsePage(r)
	txs, total, err := h.svc.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.WithMeta(w, txs, response.Meta{Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	tx, err := h.svc.Adjust(r.Context(), targetID, req.Amount, TransactionType(req.Type), req.ReferenceID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	response.Created(w, tx)
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	report, err := h.svc.Audit(r.Context(), targetID)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	response.OK(w, report)
}

func (h *Handler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	if err := h.svc.Unfreeze(r.Context(), targetID); err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]string{"status": "unfrozen"})
}

func writeWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		response.BadRequest(w, "amount must be greater than zero")
	case errors.Is(err, ErrInsufficientFunds):
		response.Conflict(w, "insufficient wallet balance")
	case errors.Is(err, ErrReferenceConflict):
		response.Conflict(w, "reference_id already used with a different amount")
	case errors.Is(err, user.ErrUserNotFound), errors.Is(err, ErrWalletNotFound):
		response.NotFound(w, "user not found")
	case errors.Is(err, user.ErrUserInactive):
		response.Forbidden(w, "account is not active")
	case errors.Is(err, ErrWalletFrozen), errors.Is(err, ErrLedgerInconsistency):
		// Internals stay internal; operators are alerted through logs.
		response.InternalError(w)
	default:
		response.InternalError(w)
	}
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// Routes returns user-facing wallet routes.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/topup", h.TopUp)
	r.Get("/", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}

// AdminRoutes returns operator routes for adjustments and reconciliation.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())
	r.Post("/{userID}/adjust", h.Adjust)
	r.Get("/{userID}/audit", h.Audit)
	r.Post("/{userID}/unfreeze", h.Unfreeze)
	return r
}
