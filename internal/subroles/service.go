package subroles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/meridian-club/meridian/internal/shared"
)

var (
	// ErrProtectedRole blocks mutations on system roles.
	ErrProtectedRole = errors.New("subroles: system role is protected")
	// ErrRoleInUse blocks deletion while grants or content reference the role.
	ErrRoleInUse = errors.New("subroles: role is still referenced")
)

var titleCaser = cases.Title(language.English)

// Service handles registry business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// FindOrCreate returns the role registered under name, creating it when
// missing. Safe for concurrent bootstrap: a unique-violation race is resolved
// by retrying the lookup.
func (s *Service) FindOrCreate(ctx context.Context, name, displayName string, level int, systemRole bool) (*SubRole, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("subroles: name required")
	}

	existing, err := s.repo.GetByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("subroles: lookup %q: %w", name, err)
	}

	if displayName == "" {
		displayName = titleCaser.String(strings.ReplaceAll(name, "_", " "))
	}

	created, err := s.repo.Create(ctx, SubRole{
		Name:        name,
		DisplayName: displayName,
		Level:       level,
		SystemRole:  systemRole,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return s.repo.GetByName(ctx, name)
		}
		return nil, fmt.Errorf("subroles: create %q: %w", name, err)
	}
	return created, nil
}

// Get returns a role by ID.
func (s *Service) Get(ctx context.Context, id int64) (*SubRole, error) {
	return s.repo.Get(ctx, id)
}

// GetByName returns a role by its stable machine key.
func (s *Service) GetByName(ctx context.Context, name string) (*SubRole, error) {
	return s.repo.GetByName(ctx, name)
}

// List returns all roles ordered by level.
func (s *Service) List(ctx context.Context) ([]SubRole, error) {
	return s.repo.List(ctx)
}

// ResolveNames maps role names to registry entries. Every name must resolve;
// a missing name fails the whole call with shared.ErrNotFound.
func (s *Service) ResolveNames(ctx context.Context, names []string) ([]SubRole, error) {
	if len(names) == 0 {
		return nil, nil
	}
	roles, err := s.repo.GetByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(roles) != len(uniqueNames(names)) {
		found := make(map[string]struct{}, len(roles))
		for _, r := range roles {
			found[r.Name] = struct{}{}
		}
		for _, n := range names {
			if _, ok := found[n]; !ok {
				return nil, fmt.Errorf("subroles: role %q: %w", n, shared.ErrNotFound)
			}
		}
	}
	return roles, nil
}

// Delete removes a role. System roles are protected regardless of usage;
// referenced roles cannot be removed.
func (s *Service) Delete(ctx context.Context, id int64) error {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if role.SystemRole {
		return ErrProtectedRole
	}
	inUse, err := s.repo.InUse(ctx, id)
	if err != nil {
		return fmt.Errorf("subroles: usage check: %w", err)
	}
	if inUse {
		return ErrRoleInUse
	}
	return s.repo.Delete(ctx, id)
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
