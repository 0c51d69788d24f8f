package grants

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridian-club/meridian/internal/shared"
	"github.com/meridian-club/meridian/internal/subroles"
)

// RoleDirectory verifies that a sub-role exists before a grant is recorded.
type RoleDirectory interface {
	Get(ctx context.Context, id int64) (*subroles.SubRole, error)
}

// Auditor records ledger mutations for provenance review.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the single write path into the grant ledger.
type Service struct {
	repo    Repository
	roles   RoleDirectory
	audit   Auditor
	logger  *slog.Logger
	granted *prometheus.CounterVec
}

// NewService constructs the ledger service. audit and granted are optional.
func NewService(repo Repository, roles RoleDirectory, audit Auditor, logger *slog.Logger, granted *prometheus.CounterVec) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger, granted: granted}
}

// Grant records that userID acquired subRoleID. When an active grant already
// exists the call is a no-op returning the existing row with created=false,
// so replays of the same triggering event never duplicate ledger rows.
func (s *Service) Grant(ctx context.Context, userID, subRoleID int64, source SourceRef, via Via, grantedBy *int64) (*Grant, bool, error) {
	kind, err := requiredSourceKind(via)
	if err != nil {
		return nil, false, err
	}
	if source.Kind != kind {
		return nil, false, fmt.Errorf("%w: via %q requires source kind %q, got %q", ErrInvalidProvenance, via, kind, source.Kind)
	}
	if source.Kind != SourceNone && source.ID == 0 {
		return nil, false, fmt.Errorf("%w: via %q requires a source id", ErrInvalidProvenance, via)
	}

	role, err := s.roles.Get(ctx, subRoleID)
	if err != nil {
		return nil, false, fmt.Errorf("grants: sub-role %d: %w", subRoleID, err)
	}

	grant, created, err := s.repo.InsertOrFetch(ctx, Grant{
		UserID:    userID,
		SubRoleID: subRoleID,
		Source:    source,
		Via:       via,
		GrantedBy: grantedBy,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		return grant, false, nil
	}

	if s.granted != nil {
		s.granted.WithLabelValues(string(via)).Inc()
	}
	s.logger.Info("sub-role granted",
		slog.Int64("user_id", userID),
		slog.String("role", role.Name),
		slog.String("via", string(via)))
	if s.audit != nil {
		var actorID int64
		if grantedBy != nil {
			actorID = *grantedBy
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "GRANT",
			Entity:   "user_sub_role_grants",
			EntityID: fmt.Sprintf("%d", grant.ID),
			Meta: map[string]any{
				"user_id":     userID,
				"sub_role":    role.Name,
				"via":         string(via),
				"source_kind": string(source.Kind),
				"source_id":   source.ID,
			},
		}); err != nil {
			s.logger.Warn("audit grant", slog.Any("error", err))
		}
	}
	return grant, true, nil
}

// HasRole reports whether the user currently holds the named sub-role.
// Revoked rows are never visible here.
func (s *Service) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	return s.repo.HasRole(ctx, userID, roleName)
}

// RoleNames returns the names of all sub-roles the user currently holds.
func (s *Service) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.RoleNames(ctx, userID)
}

// RoleIDs returns the IDs of all sub-roles the user currently holds.
func (s *Service) RoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.RoleIDs(ctx, userID)
}

// List returns one page of active ledger rows visible under the given scope
// clause, plus pagination metadata for the full scoped set.
func (s *Service) List(ctx context.Context, whereClause string, args []any, page, perPage int) ([]Grant, shared.Pagination, error) {
	total, err := s.repo.Count(ctx, whereClause, args)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pg := shared.NewPagination(page, perPage, total)
	rows, err := s.repo.List(ctx, whereClause, args, pg.PerPage, (pg.Page-1)*pg.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, pg, nil
}

// Revoke soft-deletes a ledger row. The row is kept for audit; active-role
// queries stop seeing it immediately.
func (s *Service) Revoke(ctx context.Context, grantID, actorID int64) error {
	grant, err := s.repo.Get(ctx, grantID)
	if err != nil {
		return err
	}
	if err := s.repo.Revoke(ctx, grantID); err != nil {
		return err
	}
	s.logger.Info("sub-role revoked",
		slog.Int64("grant_id", grantID),
		slog.Int64("user_id", grant.UserID),
		slog.Int64("actor_id", actorID))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "REVOKE",
			Entity:   "user_sub_role_grants",
			EntityID: fmt.Sprintf("%d", grantID),
			Meta:     map[string]any{"user_id": grant.UserID, "sub_role_id": grant.SubRoleID},
		}); err != nil {
			s.logger.Warn("audit revoke", slog.Any("error", err))
		}
	}
	return nil
}
