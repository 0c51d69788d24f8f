package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/meridian/internal/policy"
	"github.com/meridian-club/meridian/internal/shared"
	"github.com/meridian-club/meridian/internal/subroles"
	"github.com/meridian-club/meridian/internal/users"
)

type mockContentRepo struct {
	posts  map[int64]*Post
	links  map[int64][]int64
	nextID int64
}

func newMockContentRepo() *mockContentRepo {
	return &mockContentRepo{
		posts:  make(map[int64]*Post),
		links:  make(map[int64][]int64),
		nextID: 1,
	}
}

func (m *mockContentRepo) GetPost(ctx context.Context, id int64) (*Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	copied.RequiredRoleIDs = m.links[id]
	return &copied, nil
}

func (m *mockContentRepo) CreatePost(ctx context.Context, post Post) (*Post, error) {
	post.ID = m.nextID
	m.nextID++
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	m.posts[post.ID] = &post
	copied := post
	return &copied, nil
}

func (m *mockContentRepo) PublishPost(ctx context.Context, id int64, at time.Time) error {
	p, ok := m.posts[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Status = PostStatusPublished
	p.PublishedAt = &at
	return nil
}

func (m *mockContentRepo) ListPosts(ctx context.Context, scope Scope) ([]Post, error) {
	var out []Post
	for id, p := range m.posts {
		copied := *p
		copied.RequiredRoleIDs = m.links[id]
		if scope.All {
			out = append(out, copied)
			continue
		}
		if !copied.Published(scope.Now) {
			continue
		}
		if copied.IsPublic() || intersects(copied.RequiredRoleIDs, scope.ViewerRoleIDs) {
			out = append(out, copied)
		}
	}
	return out, nil
}

func (m *mockContentRepo) AddRequiredRoles(ctx context.Context, ref Ref, roleIDs []int64) error {
	existing := make(map[int64]struct{})
	for _, id := range m.links[ref.ID] {
		existing[id] = struct{}{}
	}
	for _, id := range roleIDs {
		if _, ok := existing[id]; !ok {
			m.links[ref.ID] = append(m.links[ref.ID], id)
		}
	}
	return nil
}

func (m *mockContentRepo) RequiredRoleIDs(ctx context.Context, ref Ref) ([]int64, error) {
	return m.links[ref.ID], nil
}

func (m *mockContentRepo) PublicIDs(ctx context.Context, kind Kind, now time.Time) ([]int64, error) {
	var ids []int64
	for id, p := range m.posts {
		if p.Published(now) && len(m.links[id]) == 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockContentRepo) RoleUnlockedIDs(ctx context.Context, kind Kind, roleIDs []int64, now time.Time) ([]int64, error) {
	var ids []int64
	for id, p := range m.posts {
		if p.Published(now) && intersects(m.links[id], roleIDs) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func publishedPost(repo *mockContentRepo, roleIDs ...int64) *Post {
	past := time.Now().Add(-time.Hour)
	post, _ := repo.CreatePost(context.Background(), Post{
		AuthorID:    1,
		Title:       "t",
		Status:      PostStatusPublished,
		PublishedAt: &past,
	})
	if len(roleIDs) > 0 {
		_ = repo.AddRequiredRoles(context.Background(), post.Ref(), roleIDs)
		post.RequiredRoleIDs = roleIDs
	}
	return post
}

func member(id int64, roleIDs ...int64) *policy.Actor {
	return &policy.Actor{ID: id, Classification: users.ClassificationMember, RoleIDs: roleIDs}
}

func TestAccessiblePublicPost(t *testing.T) {
	repo := newMockContentRepo()
	resolver := NewResolver(repo)
	post := publishedPost(repo)

	// Public content is visible to everyone, including anonymous visitors.
	ok, err := resolver.Accessible(context.Background(), post, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = resolver.Accessible(context.Background(), post, member(10))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccessibleRestrictedPost(t *testing.T) {
	repo := newMockContentRepo()
	resolver := NewResolver(repo)
	post := publishedPost(repo, 1, 2)
	ctx := context.Background()

	ok, err := resolver.Accessible(ctx, post, nil)
	require.NoError(t, err)
	assert.False(t, ok, "anonymous visitors never see restricted content")

	ok, err = resolver.Accessible(ctx, post, member(10, 3))
	require.NoError(t, err)
	assert.False(t, ok, "no overlap between held and required roles")

	// One overlapping role is enough.
	ok, err = resolver.Accessible(ctx, post, member(10, 3, 2))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccessibleUnpublishedPost(t *testing.T) {
	repo := newMockContentRepo()
	resolver := NewResolver(repo)
	ctx := context.Background()

	draft, err := repo.CreatePost(ctx, Post{AuthorID: 1, Title: "draft", Status: PostStatusDraft})
	require.NoError(t, err)

	// Roles never reveal an unpublished item.
	ok, err := resolver.Accessible(ctx, draft, member(10, 1, 2, 3))
	require.NoError(t, err)
	assert.False(t, ok)

	future := time.Now().Add(time.Hour)
	scheduled, err := repo.CreatePost(ctx, Post{AuthorID: 1, Title: "soon", Status: PostStatusPublished, PublishedAt: &future})
	require.NoError(t, err)

	ok, err = resolver.Accessible(ctx, scheduled, member(10))
	require.NoError(t, err)
	assert.False(t, ok, "future publish time keeps the post hidden")
}

func TestAccessibleIDsUnion(t *testing.T) {
	repo := newMockContentRepo()
	resolver := NewResolver(repo)
	ctx := context.Background()

	public := publishedPost(repo)
	unlocked := publishedPost(repo, 2)
	locked := publishedPost(repo, 9)

	ids, err := resolver.AccessibleIDs(ctx, KindPost, member(10, 2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{public.ID, unlocked.ID}, ids)
	assert.NotContains(t, ids, locked.ID)

	// Anonymous viewers get only the public set.
	ids, err = resolver.AccessibleIDs(ctx, KindPost, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{public.ID}, ids)
}

func TestAccessibleIDsSorted(t *testing.T) {
	repo := newMockContentRepo()
	resolver := NewResolver(repo)

	publishedPost(repo, 2)
	publishedPost(repo)
	publishedPost(repo, 2)

	ids, err := resolver.AccessibleIDs(context.Background(), KindPost, member(10, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

type stubRegistry struct {
	roles map[string]int64
}

func (r stubRegistry) Get(ctx context.Context, id int64) (*subroles.SubRole, error) {
	for name, rid := range r.roles {
		if rid == id {
			return &subroles.SubRole{ID: id, Name: name}, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r stubRegistry) ResolveNames(ctx context.Context, names []string) ([]subroles.SubRole, error) {
	var out []subroles.SubRole
	for _, n := range names {
		id, ok := r.roles[n]
		if !ok {
			return nil, shared.ErrNotFound
		}
		out = append(out, subroles.SubRole{ID: id, Name: n})
	}
	return out, nil
}

func TestAddRequiredRolesByName(t *testing.T) {
	repo := newMockContentRepo()
	svc := NewService(repo, stubRegistry{roles: map[string]int64{"mentor": 1}}, NewResolver(repo))
	ctx := context.Background()

	post := publishedPost(repo)

	require.NoError(t, svc.AddRequiredRolesByName(ctx, post.Ref(), []string{"mentor"}))
	ids, err := repo.RequiredRoleIDs(ctx, post.Ref())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	// A single unresolvable name fails the whole call.
	err = svc.AddRequiredRolesByName(ctx, post.Ref(), []string{"ghost"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAddRequiredRolesByIDUnknownRole(t *testing.T) {
	repo := newMockContentRepo()
	svc := NewService(repo, stubRegistry{roles: map[string]int64{"mentor": 1}}, NewResolver(repo))
	ctx := context.Background()

	post := publishedPost(repo)

	require.NoError(t, svc.AddRequiredRolesByID(ctx, post.Ref(), []int64{1}))
	err := svc.AddRequiredRolesByID(ctx, post.Ref(), []int64{999})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestScopeWhereClause(t *testing.T) {
	now := time.Now()

	clause, args := ScopeFor(&policy.Actor{ID: 1, Classification: users.ClassificationAdmin}, now).WhereClause(1)
	assert.Empty(t, clause, "admins see everything")
	assert.Empty(t, args)

	clause, args = ScopeFor(nil, now).WhereClause(1)
	assert.Contains(t, clause, "posts.status = 'published'")
	assert.Contains(t, clause, "NOT EXISTS")
	assert.NotContains(t, clause, "ANY", "anonymous scope has no role arm")
	assert.Len(t, args, 1)

	clause, args = ScopeFor(member(10, 4, 5), now).WhereClause(1)
	assert.Contains(t, clause, "ANY($2)")
	assert.Len(t, args, 2)
}
