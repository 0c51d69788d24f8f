package grants

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/meridian/internal/shared"
	"github.com/meridian-club/meridian/internal/subroles"
)

// ============================================================================
// MOCK LEDGER REPOSITORY
// ============================================================================

type mockRepository struct {
	mu     sync.Mutex
	grants map[int64]*Grant
	nextID int64
	names  map[int64]string
}

func newMockRepository(roleNames map[int64]string) *mockRepository {
	return &mockRepository{
		grants: make(map[int64]*Grant),
		names:  roleNames,
		nextID: 1,
	}
}

func (m *mockRepository) activeLocked(userID, subRoleID int64) *Grant {
	for _, g := range m.grants {
		if g.UserID == userID && g.SubRoleID == subRoleID && !g.Revoked {
			return g
		}
	}
	return nil
}

func (m *mockRepository) InsertOrFetch(ctx context.Context, grant Grant) (*Grant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.activeLocked(grant.UserID, grant.SubRoleID); existing != nil {
		copied := *existing
		return &copied, false, nil
	}
	grant.ID = m.nextID
	m.nextID++
	grant.GrantedAt = time.Now()
	m.grants[grant.ID] = &grant
	copied := grant
	return &copied, true, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (m *mockRepository) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants {
		if g.UserID == userID && !g.Revoked && m.names[g.SubRoleID] == roleName {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, g := range m.grants {
		if g.UserID == userID && !g.Revoked {
			names = append(names, m.names[g.SubRoleID])
		}
	}
	return names, nil
}

func (m *mockRepository) RoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, g := range m.grants {
		if g.UserID == userID && !g.Revoked {
			ids = append(ids, g.SubRoleID)
		}
	}
	return ids, nil
}

func (m *mockRepository) List(ctx context.Context, whereClause string, args []any, limit, offset int) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Grant
	for _, g := range m.grants {
		if !g.Revoked {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *mockRepository) Count(ctx context.Context, whereClause string, args []any) (int, error) {
	return m.activeCount(), nil
}

func (m *mockRepository) Revoke(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok || g.Revoked {
		return shared.ErrNotFound
	}
	g.Revoked = true
	now := time.Now()
	g.RevokedAt = &now
	return nil
}

func (m *mockRepository) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, g := range m.grants {
		if !g.Revoked {
			count++
		}
	}
	return count
}

type stubRoleDirectory struct {
	roles map[int64]string
}

func (d stubRoleDirectory) Get(ctx context.Context, id int64) (*subroles.SubRole, error) {
	name, ok := d.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &subroles.SubRole{ID: id, Name: name}, nil
}

func newTestService() (*Service, *mockRepository) {
	names := map[int64]string{1: "mentor", 2: "inner_circle"}
	repo := newMockRepository(names)
	svc := NewService(repo, stubRoleDirectory{roles: names}, nil, nil, nil)
	return svc, repo
}

// ============================================================================
// TESTS
// ============================================================================

func TestGrantIdempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first, created, err := svc.Grant(ctx, 10, 1, ProductSource(77), ViaProductPurchase, nil)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.Grant(ctx, 10, 1, ProductSource(77), ViaProductPurchase, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.activeCount())
}

func TestGrantConcurrentSingleRow(t *testing.T) {
	svc, repo := newTestService()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Grant(context.Background(), 10, 1, ProductSource(77), ViaProductPurchase, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.activeCount())
}

func TestGrantProvenanceMismatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// Purchase mechanism with an initiation source.
	_, _, err := svc.Grant(ctx, 10, 1, InitiationSource(5), ViaProductPurchase, nil)
	assert.ErrorIs(t, err, ErrInvalidProvenance)

	// Manual mechanism must carry no source.
	_, _, err = svc.Grant(ctx, 10, 1, ProductSource(77), ViaManual, nil)
	assert.ErrorIs(t, err, ErrInvalidProvenance)

	// Sourced mechanisms need a real source id.
	_, _, err = svc.Grant(ctx, 10, 1, SourceRef{Kind: SourceProduct}, ViaProductPurchase, nil)
	assert.ErrorIs(t, err, ErrInvalidProvenance)
}

func TestGrantUnknownVia(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Grant(context.Background(), 10, 1, NoSource(), Via("osmosis"), nil)
	assert.ErrorIs(t, err, ErrUnknownVia)
}

func TestGrantUnknownRole(t *testing.T) {
	svc, repo := newTestService()
	_, _, err := svc.Grant(context.Background(), 10, 999, NoSource(), ViaManual, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, 0, repo.activeCount())
}

func TestGrantRecordsProvenance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	actor := int64(3)
	grant, created, err := svc.Grant(ctx, 10, 2, InitiationSource(44), ViaInitiationCompleted, &actor)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, SourceInitiation, grant.Source.Kind)
	assert.Equal(t, int64(44), grant.Source.ID)
	assert.Equal(t, ViaInitiationCompleted, grant.Via)
	require.NotNil(t, grant.GrantedBy)
	assert.Equal(t, actor, *grant.GrantedBy)
}

func TestHasRoleAndRoleNames(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Grant(ctx, 10, 1, NoSource(), ViaManual, nil)
	require.NoError(t, err)

	has, err := svc.HasRole(ctx, 10, "mentor")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasRole(ctx, 10, "inner_circle")
	require.NoError(t, err)
	assert.False(t, has)

	names, err := svc.RoleNames(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"mentor"}, names)
}

func TestRevokeHidesRoleAndAllowsRegrant(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	grant, _, err := svc.Grant(ctx, 10, 1, NoSource(), ViaManual, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, grant.ID, 3))

	has, err := svc.HasRole(ctx, 10, "mentor")
	require.NoError(t, err)
	assert.False(t, has)

	// A revoked row does not block a fresh grant.
	regrant, created, err := svc.Grant(ctx, 10, 1, NoSource(), ViaManual, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, grant.ID, regrant.ID)
	assert.Equal(t, 1, repo.activeCount())
}

func TestRevokeMissingGrant(t *testing.T) {
	svc, _ := newTestService()
	err := svc.Revoke(context.Background(), 404, 3)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
