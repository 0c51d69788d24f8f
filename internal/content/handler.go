package content

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

// Handler wires HTTP endpoints for posts and their restrictions.
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

// MountRoutes registers content routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/posts", h.handleListPosts)
	r.Post("/posts", h.handleCreatePost)
	r.Get("/posts/{id}", h.handleGetPost)
	r.Post("/posts/{id}/publish", h.handlePublishPost)
	// Role ids and role names are distinct endpoints; the caller's intent is
	// in the route, never inferred from the payload shape.
	r.Post("/posts/{id}/role-ids", h.handleAddRoleIDs)
	r.Post("/posts/{id}/role-names", h.handleAddRoleNames)
}

type postResponse struct {
	ID              int64      `json:"id"`
	AuthorID        int64      `json:"author_id"`
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	Status          string     `json:"status"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	RequiredRoleIDs []int64    `json:"required_role_ids,omitempty"`
}

func toPostResponse(p Post) postResponse {
	return postResponse{
		ID:              p.ID,
		AuthorID:        p.AuthorID,
		Title:           p.Title,
		Body:            p.Body,
		Status:          string(p.Status),
		PublishedAt:     p.PublishedAt,
		RequiredRoleIDs: p.RequiredRoleIDs,
	}
}

func (h *Handler) handleListPosts(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var viewer *policy.Actor
	if actor.Known() {
		viewer = &actor
	}
	posts, err := h.service.ListVisible(r.Context(), viewer)
	if err != nil {
		h.logger.Error("list posts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]postResponse, len(posts))
	for i, p := range posts {
		out[i] = toPostResponse(p)
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createPostRequest struct {
	Title string `json:"title" validate:"required"`
	Body  string `json:"body"`
}

func (h *Handler) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !actor.Known() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req createPostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	post, err := h.service.CreatePost(r.Context(), actor.ID, req.Title, req.Body)
	if err != nil {
		h.logger.Error("create post", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPostResponse(*post))
}

func (h *Handler) handleGetPost(w http.ResponseWriter, r *http.Request) {
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
	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get post", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	var viewer *policy.Actor
	if actor.Known() {
		viewer = &actor
	}
	ok, err := h.service.Resolver().Accessible(r.Context(), post, viewer)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !ok && !policy.CanEditPost(actor, post.AuthorID) {
		// Restricted content is indistinguishable from missing content.
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, toPostResponse(*post))
}

type publishPostRequest struct {
	At *time.Time `json:"at"`
}

func (h *Handler) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	post, actor, ok := h.editablePost(w, r)
	if !ok {
		return
	}
	var req publishPostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	if err := h.service.PublishPost(r.Context(), post.ID, at); err != nil {
		h.logger.Error("publish post", slog.Int64("id", post.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	_ = actor
	w.WriteHeader(http.StatusNoContent)
}

type addRoleIDsRequest struct {
	RoleIDs []int64 `json:"role_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) handleAddRoleIDs(w http.ResponseWriter, r *http.Request) {
	post, _, ok := h.editablePost(w, r)
	if !ok {
		return
	}
	var req addRoleIDsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddRequiredRolesByID(r.Context(), post.Ref(), req.RoleIDs); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("restrict post", slog.Int64("id", post.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addRoleNamesRequest struct {
	RoleNames []string `json:"role_names" validate:"required,min=1,dive,required"`
}

func (h *Handler) handleAddRoleNames(w http.ResponseWriter, r *http.Request) {
	post, _, ok := h.editablePost(w, r)
	if !ok {
		return
	}
	var req addRoleNamesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddRequiredRolesByName(r.Context(), post.Ref(), req.RoleNames); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("restrict post", slog.Int64("id", post.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// editablePost loads the post and checks the edit policy for the actor.
func (h *Handler) editablePost(w http.ResponseWriter, r *http.Request) (*Post, policy.Actor, bool) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return nil, actor, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return nil, actor, false
	}
	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return nil, actor, false
		}
		httpx.RespondError(w, err)
		return nil, actor, false
	}
	if !policy.CanEditPost(actor, post.AuthorID) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return nil, actor, false
	}
	return post, actor, true
}
