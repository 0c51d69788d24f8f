package orders

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

// Handler wires HTTP endpoints for products and purchase requests.
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

// MountRoutes registers order routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.handleCreateProduct)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
}

type productResponse struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	PriceCents          int64   `json:"price_cents"`
	AutoGrantSubRoleIDs []int64 `json:"auto_grant_sub_role_ids,omitempty"`
}

type orderResponse struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	ProductID  int64      `json:"product_id"`
	Status     string     `json:"status"`
	ApprovedBy *int64     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedBy *int64     `json:"rejected_by,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
}

func toOrderResponse(o Order) orderResponse {
	return orderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		ProductID:  o.ProductID,
		Status:     string(o.Status),
		ApprovedBy: o.ApprovedBy,
		ApprovedAt: o.ApprovedAt,
		RejectedBy: o.RejectedBy,
		RejectedAt: o.RejectedAt,
	}
}

type createProductRequest struct {
	Name                string  `json:"name" validate:"required"`
	PriceCents          int64   `json:"price_cents" validate:"gte=0"`
	AutoGrantSubRoleIDs []int64 `json:"auto_grant_sub_role_ids" validate:"dive,gt=0"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanManageSubRoles(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	product, err := h.service.CreateProduct(r.Context(), req.Name, req.PriceCents, req.AutoGrantSubRoleIDs)
	if err != nil {
		h.logger.Error("create product", slog.String("name", req.Name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, productResponse{
		ID:                  product.ID,
		Name:                product.Name,
		PriceCents:          product.PriceCents,
		AutoGrantSubRoleIDs: product.AutoGrantSubRoleIDs,
	})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productResponse{
		ID:                  product.ID,
		Name:                product.Name,
		PriceCents:          product.PriceCents,
		AutoGrantSubRoleIDs: product.AutoGrantSubRoleIDs,
	})
}

type createOrderRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !actor.Known() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	order, err := h.service.Create(r.Context(), actor.ID, req.ProductID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("create order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(*order))
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
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanViewUser(actor, order.UserID) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(*order))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "approve", h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "reject", h.service.Reject)
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, verb string, decide func(context.Context, int64, int64) (*Order, error)) {
	actor, err := h.actors.ActorFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !policy.CanApproveOrder(actor) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}

	order, err := decide(r.Context(), id, actor.ID)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, toOrderResponse(*order))
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(verb+" order", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
