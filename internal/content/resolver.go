package content

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-club/meridian/internal/policy"
)

// Resolver computes whether a viewer may access restricted content, for
// single items and whole collections.
type Resolver struct {
	repo  Repository
	group singleflight.Group
	now   func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// IsPublic reports whether the content carries zero role restrictions.
func (r *Resolver) IsPublic(ctx context.Context, ref Ref) (bool, error) {
	roleIDs, err := r.repo.RequiredRoleIDs(ctx, ref)
	if err != nil {
		return false, err
	}
	return len(roleIDs) == 0, nil
}

// Accessible decides single-item visibility. The publication gate is ANDed
// with the role gate; a viewer's roles never reveal an unpublished item.
// A nil viewer is an anonymous visitor.
func (r *Resolver) Accessible(ctx context.Context, post *Post, viewer *policy.Actor) (bool, error) {
	if post == nil {
		return false, fmt.Errorf("content: nil post")
	}
	if !post.Published(r.now()) {
		return false, nil
	}
	if post.IsPublic() {
		return true, nil
	}
	if viewer == nil || !viewer.Known() {
		return false, nil
	}
	return viewer.HoldsAnyRole(post.RequiredRoleIDs...), nil
}

// AccessibleIDs computes the visible id set for a collection: the union of
// published public items and published items unlocked by the viewer's roles.
// Two bulk queries, independent of collection size. The public set is
// deduplicated across concurrent requests via singleflight.
func (r *Resolver) AccessibleIDs(ctx context.Context, kind Kind, viewer *policy.Actor) ([]int64, error) {
	now := r.now()

	publicAny, err, _ := r.group.Do("public:"+string(kind), func() (any, error) {
		return r.repo.PublicIDs(ctx, kind, now)
	})
	if err != nil {
		return nil, fmt.Errorf("content: public id set: %w", err)
	}
	publicIDs := publicAny.([]int64)

	if viewer == nil || !viewer.Known() {
		return publicIDs, nil
	}

	unlocked, err := r.repo.RoleUnlockedIDs(ctx, kind, viewer.RoleIDs, now)
	if err != nil {
		return nil, fmt.Errorf("content: unlocked id set: %w", err)
	}

	return unionIDs(publicIDs, unlocked), nil
}

func unionIDs(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, set := range [][]int64{a, b} {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
