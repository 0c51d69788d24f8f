package grants

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

// Handler wires HTTP endpoints for the grant ledger.
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

// MountRoutes registers ledger routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleGrant)
	r.Delete("/{id}", h.handleRevoke)
	r.Get("/users/{id}/roles", h.handleUserRoles)
}

type grantResponse struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	SubRoleID  int64     `json:"sub_role_id"`
	SourceKind string    `json:"source_kind,omitempty"`
	SourceID   int64     `json:"source_id,omitempty"`
	Via        string    `json:"granted_via"`
	GrantedBy  *int64    `json:"granted_by,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}

func toResponse(g Grant) grantResponse {
	return grantResponse{
		ID:         g.ID,
		UserID:     g.UserID,
		SubRoleID:  g.SubRoleID,
		SourceKind: string(g.Source.Kind),
		SourceID:   g.Source.ID,
		Via:        string(g.Via),
		GrantedBy:  g.GrantedBy,
		GrantedAt:  g.GrantedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	scope := policy.ListGrantsScope(actor)
	clause, args := scope.WhereClause(1)
	rows, pg, err := h.service.List(r.Context(), clause, args, page, perPage)
	if err != nil {
		h.logger.Error("list grants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]grantResponse, len(rows))
	for i, g := range rows {
		out[i] = toResponse(g)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":        out,
		"page":        pg.Page,
		"per_page":    pg.PerPage,
		"total":       pg.Total,
		"total_pages": pg.TotalPages,
	})
}

type manualGrantRequest struct {
	UserID    int64 `json:"user_id" validate:"required,gt=0"`
	SubRoleID int64 `json:"sub_role_id" validate:"required,gt=0"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanGrantRole(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	var req manualGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	grantedBy := actor.ID
	grant, created, err := h.service.Grant(r.Context(), req.UserID, req.SubRoleID, NoSource(), ViaManual, &grantedBy)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("manual grant", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, toResponse(*grant))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanRevokeGrant(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.Revoke(r.Context(), id, actor.ID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("revoke grant", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if !policy.CanViewLedger(actor, userID) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	names, err := h.service.RoleNames(r.Context(), userID)
	if err != nil {
		h.logger.Error("list user roles", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "roles": names})
}
