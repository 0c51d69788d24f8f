package content

import (
	"fmt"
	"time"

	"github.com/meridian-club/meridian/internal/policy"
)

// Scope is the visibility predicate for post listings. It is built once per
// request from the acting user and translated into a single SQL clause by the
// repository; visibility is never decided by filtering fetched rows.
type Scope struct {
	All           bool
	Now           time.Time
	ViewerRoleIDs []int64
}

// ScopeFor derives the listing scope for a viewer. A nil viewer is an
// anonymous visitor who sees only published public items; admins see
// everything including drafts.
func ScopeFor(viewer *policy.Actor, now time.Time) Scope {
	if viewer == nil {
		return Scope{Now: now}
	}
	if viewer.IsAdminClassified() {
		return Scope{All: true, Now: now}
	}
	return Scope{Now: now, ViewerRoleIDs: viewer.RoleIDs}
}

// WhereClause renders the scope as a SQL predicate starting at argPos. The
// publication gate is ANDed with the role gate: holding a role never reveals
// an unpublished item.
func (s Scope) WhereClause(argPos int) (string, []any) {
	if s.All {
		return "", nil
	}

	args := []any{s.Now}
	published := fmt.Sprintf("(posts.status = 'published' AND posts.published_at <= $%d)", argPos)
	argPos++

	public := "NOT EXISTS (SELECT 1 FROM content_sub_roles csr WHERE csr.content_kind = 'post' AND csr.content_id = posts.id)"
	gate := public
	if len(s.ViewerRoleIDs) > 0 {
		unlocked := fmt.Sprintf("EXISTS (SELECT 1 FROM content_sub_roles csr WHERE csr.content_kind = 'post' AND csr.content_id = posts.id AND csr.sub_role_id = ANY($%d))", argPos)
		args = append(args, s.ViewerRoleIDs)
		gate = "(" + public + " OR " + unlocked + ")"
	}

	return published + " AND " + gate, args
}
