package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/meridian/internal/shared"
)

// Repository defines persistence for products and orders.
type Repository interface {
	CreateProduct(ctx context.Context, product Product) (*Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	CreateOrder(ctx context.Context, order Order) (*Order, error)
	Get(ctx context.Context, id int64) (*Order, error)
	// TransitionStatus performs a conditional update from one status to
	// another and reports whether a row actually changed. The approval edge
	// is one-way because the WHERE clause only matches the source status.
	TransitionStatus(ctx context.Context, id int64, from, to OrderStatus, actorID int64, at time.Time) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = "id, name, price_cents, auto_grant_sub_role_ids, created_at, updated_at"
const orderColumns = "id, user_id, product_id, status, approved_by, approved_at, rejected_by, rejected_at, created_at, updated_at"

func (r *repository) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (name, price_cents, auto_grant_sub_role_ids, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+productColumns,
		p.Name, p.PriceCents, p.AutoGrantSubRoleIDs)
	return scanProduct(row)
}

func (r *repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	return scanProduct(row)
}

func (r *repository) CreateOrder(ctx context.Context, o Order) (*Order, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO orders (user_id, product_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+orderColumns,
		o.UserID, o.ProductID, string(OrderStatusPending))
	return scanOrder(row)
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	return scanOrder(row)
}

func (r *repository) TransitionStatus(ctx context.Context, id int64, from, to OrderStatus, actorID int64, at time.Time) (bool, error) {
	var query string
	switch to {
	case OrderStatusApproved:
		query = `UPDATE orders SET status = $1, approved_by = $2, approved_at = $3, updated_at = NOW() WHERE id = $4 AND status = $5`
	case OrderStatusRejected:
		query = `UPDATE orders SET status = $1, rejected_by = $2, rejected_at = $3, updated_at = NOW() WHERE id = $4 AND status = $5`
	default:
		return false, ErrInvalidStatus
	}
	tag, err := r.pool.Exec(ctx, query, string(to), actorID, at, id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.AutoGrantSubRoleIDs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                      Order
		approvedBy, rejectedBy pgtype.Int8
		approvedAt, rejectedAt pgtype.Timestamptz
		status                 string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &status, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	o.Status = OrderStatus(status)
	if approvedBy.Valid {
		val := approvedBy.Int64
		o.ApprovedBy = &val
	}
	if approvedAt.Valid {
		val := approvedAt.Time
		o.ApprovedAt = &val
	}
	if rejectedBy.Valid {
		val := rejectedBy.Int64
		o.RejectedBy = &val
	}
	if rejectedAt.Valid {
		val := rejectedAt.Time
		o.RejectedAt = &val
	}
	return &o, nil
}
