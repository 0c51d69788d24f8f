package policy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/meridian-club/meridian/internal/shared"
)

// Directory resolves the data an Actor is built from: the coarse
// classification comes from the user record, held sub-roles from the grant
// ledger.
type Directory interface {
	Classification(ctx context.Context, userID int64) (shared.Classification, error)
	RoleIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Resolver builds actors for incoming requests. The acting user is always
// passed explicitly to policy checks; the resolver only bridges the session
// boundary.
type Resolver struct {
	dir Directory
}

// NewResolver constructs a Resolver.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ActorFromContext derives the acting user from the request session.
// Requests without a logged-in session yield the anonymous actor.
func (r *Resolver) ActorFromContext(ctx context.Context) (Actor, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return Anonymous, nil
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return Anonymous, fmt.Errorf("policy: parse session user: %w", err)
	}
	return r.Actor(ctx, userID)
}

// Actor builds the actor for a known user ID.
func (r *Resolver) Actor(ctx context.Context, userID int64) (Actor, error) {
	classification, err := r.dir.Classification(ctx, userID)
	if err != nil {
		return Anonymous, fmt.Errorf("policy: classification for user %d: %w", userID, err)
	}
	roleIDs, err := r.dir.RoleIDs(ctx, userID)
	if err != nil {
		return Anonymous, fmt.Errorf("policy: roles for user %d: %w", userID, err)
	}
	return Actor{ID: userID, Classification: classification, RoleIDs: roleIDs}, nil
}
