package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-club/meridian/internal/policy"
	"github.com/meridian-club/meridian/internal/subroles"
)

// RoleRegistry resolves sub-role references when restricting content.
type RoleRegistry interface {
	Get(ctx context.Context, id int64) (*subroles.SubRole, error)
	ResolveNames(ctx context.Context, names []string) ([]subroles.SubRole, error)
}

// Service handles content business logic.
type Service struct {
	repo     Repository
	registry RoleRegistry
	resolver *Resolver
}

// NewService builds Service instance.
func NewService(repo Repository, registry RoleRegistry, resolver *Resolver) *Service {
	return &Service{repo: repo, registry: registry, resolver: resolver}
}

// CreatePost stores a new draft.
func (s *Service) CreatePost(ctx context.Context, authorID int64, title, body string) (*Post, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("content: title required")
	}
	return s.repo.CreatePost(ctx, Post{
		AuthorID: authorID,
		Title:    title,
		Body:     body,
		Status:   PostStatusDraft,
	})
}

// PublishPost opens the publication gate at the given time. A future time
// schedules the post; it stays invisible until then.
func (s *Service) PublishPost(ctx context.Context, id int64, at time.Time) error {
	return s.repo.PublishPost(ctx, id, at)
}

// GetPost loads a post with its restrictions.
func (s *Service) GetPost(ctx context.Context, id int64) (*Post, error) {
	return s.repo.GetPost(ctx, id)
}

// AddRequiredRolesByID restricts the content to holders of the given role
// IDs. Every ID must resolve in the registry; existing links are skipped.
func (s *Service) AddRequiredRolesByID(ctx context.Context, ref Ref, roleIDs []int64) error {
	for _, id := range roleIDs {
		if _, err := s.registry.Get(ctx, id); err != nil {
			return fmt.Errorf("content: sub-role %d: %w", id, err)
		}
	}
	return s.repo.AddRequiredRoles(ctx, ref, roleIDs)
}

// AddRequiredRolesByName restricts the content to holders of the named
// roles. The caller chooses names or IDs explicitly; nothing is type-sniffed
// at runtime.
func (s *Service) AddRequiredRolesByName(ctx context.Context, ref Ref, names []string) error {
	roles, err := s.registry.ResolveNames(ctx, names)
	if err != nil {
		return err
	}
	ids := make([]int64, len(roles))
	for i, role := range roles {
		ids[i] = role.ID
	}
	return s.repo.AddRequiredRoles(ctx, ref, ids)
}

// ListVisible returns the posts the viewer may see, scoped in the query.
func (s *Service) ListVisible(ctx context.Context, viewer *policy.Actor) ([]Post, error) {
	return s.repo.ListPosts(ctx, ScopeFor(viewer, time.Now()))
}

// Resolver exposes the visibility resolver for single-item checks.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}
