package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/meridian/internal/shared"
)

type mockRepository struct {
	products map[int64]*Product
	orders   map[int64]*Order
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		products: make(map[int64]*Product),
		orders:   make(map[int64]*Order),
		nextID:   1,
	}
}

func (m *mockRepository) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	p.ID = m.nextID
	m.nextID++
	m.products[p.ID] = &p
	copied := p
	return &copied, nil
}

func (m *mockRepository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockRepository) CreateOrder(ctx context.Context, o Order) (*Order, error) {
	o.ID = m.nextID
	m.nextID++
	o.Status = OrderStatusPending
	m.orders[o.ID] = &o
	copied := o
	return &copied, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockRepository) TransitionStatus(ctx context.Context, id int64, from, to OrderStatus, actorID int64, at time.Time) (bool, error) {
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	switch to {
	case OrderStatusApproved:
		o.ApprovedBy = &actorID
		o.ApprovedAt = &at
	case OrderStatusRejected:
		o.RejectedBy = &actorID
		o.RejectedAt = &at
	}
	return true, nil
}

type recordingEnqueuer struct {
	orderIDs []int64
	err      error
}

func (e *recordingEnqueuer) EnqueueOrderAutoGrant(ctx context.Context, orderID int64) error {
	if e.err != nil {
		return e.err
	}
	e.orderIDs = append(e.orderIDs, orderID)
	return nil
}

func setupOrder(t *testing.T, repo *mockRepository, svc *Service) *Order {
	t.Helper()
	product, err := svc.CreateProduct(context.Background(), "Mentor Track", 4900, []int64{3})
	require.NoError(t, err)
	order, err := svc.Create(context.Background(), 10, product.ID)
	require.NoError(t, err)
	return order
}

func TestApproveEnqueuesOnce(t *testing.T) {
	repo := newMockRepository()
	enq := &recordingEnqueuer{}
	svc := NewService(repo, enq, nil)
	order := setupOrder(t, repo, svc)
	ctx := context.Background()

	approved, err := svc.Approve(ctx, order.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, int64(3), *approved.ApprovedBy)
	assert.Equal(t, []int64{order.ID}, enq.orderIDs)

	// Re-approval fails on the one-way edge and never re-enqueues.
	_, err = svc.Approve(ctx, order.ID, 4)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Len(t, enq.orderIDs, 1)
}

func TestRejectDoesNotEnqueue(t *testing.T) {
	repo := newMockRepository()
	enq := &recordingEnqueuer{}
	svc := NewService(repo, enq, nil)
	order := setupOrder(t, repo, svc)
	ctx := context.Background()

	rejected, err := svc.Reject(ctx, order.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRejected, rejected.Status)
	assert.Empty(t, enq.orderIDs)

	// A rejected order cannot be approved afterwards.
	_, err = svc.Approve(ctx, order.ID, 3)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, enq.orderIDs)
}

func TestCreateVerifiesProduct(t *testing.T) {
	svc := NewService(newMockRepository(), &recordingEnqueuer{}, nil)
	_, err := svc.Create(context.Background(), 10, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApproveEnqueueFailureSurfaces(t *testing.T) {
	repo := newMockRepository()
	enq := &recordingEnqueuer{err: assert.AnError}
	svc := NewService(repo, enq, nil)
	order := setupOrder(t, repo, svc)

	_, err := svc.Approve(context.Background(), order.ID, 3)
	require.Error(t, err)

	// The approval itself stands; only the follow-up failed.
	current, getErr := svc.Get(context.Background(), order.ID)
	require.NoError(t, getErr)
	assert.Equal(t, OrderStatusApproved, current.Status)
}
