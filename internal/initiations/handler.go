package initiations

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-club/meridian/internal/platform/httpx"
	"github.com/meridian-club/meridian/internal/policy"
	"github.com/meridian-club/meridian/internal/shared"
)

// ActorResolver builds the acting user for policy checks.
type ActorResolver interface {
	ActorFromContext(ctx context.Context) (policy.Actor, error)
}

// Handler wires HTTP endpoints for initiation ceremonies.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	actors    ActorResolver
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, actors ActorResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, actors: actors, validator: validator.New()}
}

// MountRoutes registers initiation routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/finish", h.handleFinish)
}

type initiationResponse struct {
	ID                  int64      `json:"id"`
	CandidateID         int64      `json:"candidate_id"`
	ConductedBy         int64      `json:"conducted_by"`
	Status              string     `json:"status"`
	AutoGrantSubRoleIDs []int64    `json:"auto_grant_sub_role_ids,omitempty"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}

func toResponse(in Initiation) initiationResponse {
	return initiationResponse{
		ID:                  in.ID,
		CandidateID:         in.CandidateID,
		ConductedBy:         in.ConductedBy,
		Status:              string(in.Status),
		AutoGrantSubRoleIDs: in.AutoGrantSubRoleIDs,
		FinishedAt:          in.FinishedAt,
	}
}

type createInitiationRequest struct {
	CandidateID         int64   `json:"candidate_id" validate:"required,gt=0"`
	AutoGrantSubRoleIDs []int64 `json:"auto_grant_sub_role_ids" validate:"dive,gt=0"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanFinishInitiation(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	var req createInitiationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in, err := h.service.Create(r.Context(), req.CandidateID, actor.ID, req.AutoGrantSubRoleIDs)
	if err != nil {
		h.logger.Error("create initiation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(*in))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	in, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanViewUser(actor, in.CandidateID) && !policy.CanFinishInitiation(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*in))
}

type finishInitiationRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=completed passed failed"`
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanFinishInitiation(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}

	var req finishInitiationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in, err := h.service.Finish(r.Context(), id, Status(req.Outcome), actor.ID)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, toResponse(*in))
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("finish initiation", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
