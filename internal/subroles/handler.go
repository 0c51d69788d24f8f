package subroles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

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

// Handler wires HTTP endpoints for the registry.
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

// MountRoutes registers registry routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Delete("/{id}", h.handleDelete)
}

type subRoleResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
	SystemRole  bool   `json:"system_role"`
}

func toResponse(sr SubRole) subRoleResponse {
	return subRoleResponse{
		ID:          sr.ID,
		Name:        sr.Name,
		DisplayName: sr.DisplayName,
		Level:       sr.Level,
		SystemRole:  sr.SystemRole,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list sub-roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]subRoleResponse, len(roles))
	for i, sr := range roles {
		out[i] = toResponse(sr)
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createSubRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level" validate:"gte=0"`
	SystemRole  bool   `json:"system_role"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanManageSubRoles(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	var req createSubRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	role, err := h.service.FindOrCreate(r.Context(), req.Name, req.DisplayName, req.Level, req.SystemRole)
	if err != nil {
		h.logger.Error("create sub-role", slog.String("name", req.Name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(*role))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanManageSubRoles(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}

	switch err := h.service.Delete(r.Context(), id); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrProtectedRole), errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("delete sub-role", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
