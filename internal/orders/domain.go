package orders

import (
	"errors"
	"time"
)

var (
	// ErrInvalidStatus rejects transitions off the one-way approval edge.
	ErrInvalidStatus = errors.New("orders: invalid status transition")
)

// OrderStatus is the lifecycle state of a purchase.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusApproved OrderStatus = "approved"
	OrderStatusRejected OrderStatus = "rejected"
)

// Product is a purchasable item. AutoGrantSubRoleIDs configures which
// sub-roles an approved purchase confers.
type Product struct {
	ID                  int64
	Name                string
	PriceCents          int64
	AutoGrantSubRoleIDs []int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Order is a member's purchase request for a product.
type Order struct {
	ID         int64
	UserID     int64
	ProductID  int64
	Status     OrderStatus
	ApprovedBy *int64
	ApprovedAt *time.Time
	RejectedBy *int64
	RejectedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
