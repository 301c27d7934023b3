package task

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskrun/taskrun-api/internal/domain/user"
	"github.com/taskrun/taskrun-api/internal/domain/wallet"
	"github.com/taskrun/taskrun-api/internal/middleware"
	"github.com/taskrun/taskrun-api/internal/pkg/response"
	"github.com/taskrun/taskrun-api/internal/pkg/validator"
)

// Actor identifies who requested a lifecycle operation.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// Engine drives task lifecycle transitions together with their fund
// movements. Implemented by the escrow service; handlers never touch the
// ledger directly.
type Engine interface {
	PostTask(ctx context.Context, clientID uuid.UUID, req CreateTaskRequest) (*Task, error)
	AcceptTask(ctx context.Context, taskID, runnerID uuid.UUID) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID, actor Actor) (*Task, error)
	CancelTask(ctx context.Context, taskID uuid.UUID, actor Actor) (*Task, error)
}

type Handler struct {
	engine Engine
	repo   *Repository
}

func NewHandler(engine Engine, repo *Repository) *Handler {
	return &Handler{engine: engine, repo: repo}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	t, err := h.engine.PostTask(r.Context(), userID, req)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	response.Created(w, ToResponse(t))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid task id")
		return
	}

	t, err := h.repo.GetByID(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	response.OK(w, ToResponse(t))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := parsePage(r)

	var (
		tasks []Task
		err   error
	)
	switch r.URL.Query().Get("view") {
	case "mine":
		tasks, err = h.repo.ListByClient(r.Context(), userID, limit, offset)
	case "running":
		tasks, err = h.repo.ListByRunner(r.Context(), userID, limit, offset)
	default:
		tasks, err = h.repo.ListOpen(r.Context(), limit, offset)
	}
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, ToResponseList(tasks))
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, taskID uuid.UUID, actor Actor) (*Task, error) {
		return h.engine.AcceptTask(ctx, taskID, actor.ID)
	})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.CompleteTask)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.CancelTask)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, taskID uuid.UUID, actor Actor) (*Task, error)) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid task id")
		return
	}

	actor := Actor{ID: userID, Admin: middleware.GetRole(r.Context()) == "admin"}
	t, err := fn(r.Context(), taskID, actor)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	response.OK(w, ToResponse(t))
}

func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		response.NotFound(w, "task not found")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(w, "task is not in a state that allows this operation")
	case errors.Is(err, ErrAlreadyAccepted):
		response.Conflict(w, "task was already accepted by another runner")
	case errors.Is(err, ErrCancelAcceptedDisabled):
		response.Conflict(w, "accepted tasks cannot be cancelled")
	case errors.Is(err, ErrSelfAccept):
		response.Conflict(w, "you cannot accept your own task")
	case errors.Is(err, ErrNotTaskOwner):
		response.Forbidden(w, "you do not have permission to modify this task")
	case errors.Is(err, wallet.ErrInsufficientFunds):
		response.Conflict(w, "insufficient wallet balance to fund this task")
	case errors.Is(err, wallet.ErrInvalidAmount):
		response.BadRequest(w, "budget must be greater than zero")
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, "user not found")
	case errors.Is(err, user.ErrUserInactive):
		response.Forbidden(w, "account is not active")
	case errors.Is(err, wallet.ErrLedgerInconsistency), errors.Is(err, wallet.ErrWalletFrozen):
		// Generic message to the user; the inconsistency is escalated
		// internally through logs and wallet freezing.
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

// Routes returns task routes.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/accept", h.Accept)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}
