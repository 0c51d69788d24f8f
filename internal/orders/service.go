package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Enqueuer schedules the deferred auto-grant follow-up after an approval.
type Enqueuer interface {
	EnqueueOrderAutoGrant(ctx context.Context, orderID int64) error
}

// Service wraps the purchase lifecycle.
type Service struct {
	repo     Repository
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, enqueuer Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, enqueuer: enqueuer, logger: logger}
}

// CreateProduct registers a purchasable item.
func (s *Service) CreateProduct(ctx context.Context, name string, priceCents int64, autoGrantSubRoleIDs []int64) (*Product, error) {
	return s.repo.CreateProduct(ctx, Product{
		Name:                name,
		PriceCents:          priceCents,
		AutoGrantSubRoleIDs: autoGrantSubRoleIDs,
	})
}

// GetProduct loads a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Create opens a pending purchase request.
func (s *Service) Create(ctx context.Context, userID, productID int64) (*Order, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, fmt.Errorf("orders: verify product: %w", err)
	}
	return s.repo.CreateOrder(ctx, Order{UserID: userID, ProductID: productID})
}

// Get loads an order.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// Approve transitions a pending order to approved and schedules the
// auto-grant follow-up. The conditional update makes the edge one-way, so
// re-approving an already-approved order fails here and the follow-up is
// enqueued at most once per order.
func (s *Service) Approve(ctx context.Context, id int64, approvedBy int64) (*Order, error) {
	moved, err := s.repo.TransitionStatus(ctx, id, OrderStatusPending, OrderStatusApproved, approvedBy, time.Now())
	if err != nil {
		return nil, fmt.Errorf("orders: approve: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("%w: only pending orders can be approved", ErrInvalidStatus)
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueOrderAutoGrant(ctx, id); err != nil {
			// The approval itself stands; the follow-up must be replayed.
			s.logger.Error("enqueue auto-grant", slog.Int64("order_id", id), slog.Any("error", err))
			return nil, fmt.Errorf("orders: enqueue auto-grant: %w", err)
		}
	}

	return s.repo.Get(ctx, id)
}

// Reject transitions a pending order to rejected. No grants follow.
func (s *Service) Reject(ctx context.Context, id int64, rejectedBy int64) (*Order, error) {
	moved, err := s.repo.TransitionStatus(ctx, id, OrderStatusPending, OrderStatusRejected, rejectedBy, time.Now())
	if err != nil {
		return nil, fmt.Errorf("orders: reject: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("%w: only pending orders can be rejected", ErrInvalidStatus)
	}
	return s.repo.Get(ctx, id)
}
