package autogrant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/meridian/internal/grants"
	"github.com/meridian-club/meridian/internal/initiations"
	"github.com/meridian-club/meridian/internal/orders"
	"github.com/meridian-club/meridian/internal/shared"
)

type recordedGrant struct {
	userID    int64
	subRoleID int64
	source    grants.SourceRef
	via       grants.Via
	grantedBy *int64
}

type mockLedger struct {
	granted   []recordedGrant
	active    map[[2]int64]bool
	failRoles map[int64]error
	nextID    int64
}

func newMockLedger() *mockLedger {
	return &mockLedger{active: make(map[[2]int64]bool), failRoles: make(map[int64]error), nextID: 1}
}

func (m *mockLedger) Grant(ctx context.Context, userID, subRoleID int64, source grants.SourceRef, via grants.Via, grantedBy *int64) (*grants.Grant, bool, error) {
	if err := m.failRoles[subRoleID]; err != nil {
		return nil, false, err
	}
	key := [2]int64{userID, subRoleID}
	if m.active[key] {
		return &grants.Grant{UserID: userID, SubRoleID: subRoleID, Source: source, Via: via}, false, nil
	}
	m.active[key] = true
	m.granted = append(m.granted, recordedGrant{userID: userID, subRoleID: subRoleID, source: source, via: via, grantedBy: grantedBy})
	g := &grants.Grant{ID: m.nextID, UserID: userID, SubRoleID: subRoleID, Source: source, Via: via, GrantedBy: grantedBy}
	m.nextID++
	return g, true, nil
}

type stubOrders struct {
	orders   map[int64]*orders.Order
	products map[int64]*orders.Product
}

func (s stubOrders) Get(ctx context.Context, id int64) (*orders.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

func (s stubOrders) GetProduct(ctx context.Context, id int64) (*orders.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

type stubInitiations struct {
	inits map[int64]*initiations.Initiation
}

func (s stubInitiations) Get(ctx context.Context, id int64) (*initiations.Initiation, error) {
	in, ok := s.inits[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return in, nil
}

func TestOrderApprovedGrantsConfiguredRoles(t *testing.T) {
	ledger := newMockLedger()
	src := stubOrders{
		orders:   map[int64]*orders.Order{1: {ID: 1, UserID: 10, ProductID: 7, Status: orders.OrderStatusApproved}},
		products: map[int64]*orders.Product{7: {ID: 7, AutoGrantSubRoleIDs: []int64{3, 4}}},
	}
	trigger := NewTrigger(ledger, src, stubInitiations{}, nil)

	result, err := trigger.OrderApproved(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, result.Granted, 2)

	for _, g := range ledger.granted {
		assert.Equal(t, int64(10), g.userID)
		assert.Equal(t, grants.ProductSource(7), g.source)
		assert.Equal(t, grants.ViaProductPurchase, g.via)
		assert.Nil(t, g.grantedBy, "purchase grants carry no granting actor")
	}
}

func TestOrderApprovedEmptyConfig(t *testing.T) {
	ledger := newMockLedger()
	src := stubOrders{
		orders:   map[int64]*orders.Order{1: {ID: 1, UserID: 10, ProductID: 7, Status: orders.OrderStatusApproved}},
		products: map[int64]*orders.Product{7: {ID: 7}},
	}
	trigger := NewTrigger(ledger, src, stubInitiations{}, nil)

	result, err := trigger.OrderApproved(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, result.Granted)
	assert.Empty(t, ledger.granted)
}

func TestOrderNotApprovedGrantsNothing(t *testing.T) {
	ledger := newMockLedger()
	src := stubOrders{
		orders:   map[int64]*orders.Order{1: {ID: 1, UserID: 10, ProductID: 7, Status: orders.OrderStatusPending}},
		products: map[int64]*orders.Product{7: {ID: 7, AutoGrantSubRoleIDs: []int64{3}}},
	}
	trigger := NewTrigger(ledger, src, stubInitiations{}, nil)

	// A stale or replayed job for a non-approved order is a no-op, not an
	// error.
	result, err := trigger.OrderApproved(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, result.Granted)
	assert.Empty(t, ledger.granted)
}

func TestOrderApprovedReplaySkips(t *testing.T) {
	ledger := newMockLedger()
	src := stubOrders{
		orders:   map[int64]*orders.Order{1: {ID: 1, UserID: 10, ProductID: 7, Status: orders.OrderStatusApproved}},
		products: map[int64]*orders.Product{7: {ID: 7, AutoGrantSubRoleIDs: []int64{3}}},
	}
	trigger := NewTrigger(ledger, src, stubInitiations{}, nil)
	ctx := context.Background()

	first, err := trigger.OrderApproved(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, first.Granted, 1)

	second, err := trigger.OrderApproved(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, second.Granted)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, ledger.granted, 1)
}

func TestInitiationFinishedGrantsWithConductor(t *testing.T) {
	for _, status := range []initiations.Status{initiations.StatusCompleted, initiations.StatusPassed} {
		ledger := newMockLedger()
		src := stubInitiations{inits: map[int64]*initiations.Initiation{
			5: {ID: 5, CandidateID: 20, ConductedBy: 3, Status: status, AutoGrantSubRoleIDs: []int64{8}},
		}}
		trigger := NewTrigger(ledger, stubOrders{}, src, nil)

		result, err := trigger.InitiationFinished(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, result.Granted, 1)

		g := ledger.granted[0]
		assert.Equal(t, int64(20), g.userID)
		assert.Equal(t, grants.InitiationSource(5), g.source)
		assert.Equal(t, grants.ViaInitiationCompleted, g.via)
		require.NotNil(t, g.grantedBy)
		assert.Equal(t, int64(3), *g.grantedBy)
	}
}

func TestInitiationFailedGrantsNothing(t *testing.T) {
	ledger := newMockLedger()
	src := stubInitiations{inits: map[int64]*initiations.Initiation{
		5: {ID: 5, CandidateID: 20, ConductedBy: 3, Status: initiations.StatusFailed, AutoGrantSubRoleIDs: []int64{8}},
	}}
	trigger := NewTrigger(ledger, stubOrders{}, src, nil)

	result, err := trigger.InitiationFinished(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, result.Granted)
	assert.Empty(t, ledger.granted)
}

func TestPartialFailureGrantsSiblings(t *testing.T) {
	ledger := newMockLedger()
	ledger.failRoles[4] = shared.ErrNotFound
	src := stubOrders{
		orders:   map[int64]*orders.Order{1: {ID: 1, UserID: 10, ProductID: 7, Status: orders.OrderStatusApproved}},
		products: map[int64]*orders.Product{7: {ID: 7, AutoGrantSubRoleIDs: []int64{3, 4, 5}}},
	}
	trigger := NewTrigger(ledger, src, stubInitiations{}, nil)

	result, err := trigger.OrderApproved(context.Background(), 1)

	// The bad role is reported without aborting the batch.
	var partial *PartialGrantError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, int64(4), partial.Failures[0].SubRoleID)
	assert.Len(t, result.Granted, 2)
}

func TestOrderMissing(t *testing.T) {
	trigger := NewTrigger(newMockLedger(), stubOrders{}, stubInitiations{}, nil)
	_, err := trigger.OrderApproved(context.Background(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
