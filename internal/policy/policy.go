// Package policy implements per-resource access rules as state-free boolean
// checks over an explicit acting user. Every rule composes three primitives:
// admin classification, self-identity, and sub-role membership.
package policy

import (
	"github.com/meridian-club/meridian/internal/shared"
)

// Actor is the acting user for a policy decision. A zero Actor (ID 0)
// represents an anonymous visitor.
type Actor struct {
	ID             int64
	Classification shared.Classification
	RoleIDs        []int64
}

// Anonymous is the actor used when no session is present.
var Anonymous = Actor{}

// Known reports whether the actor is an authenticated user.
func (a Actor) Known() bool {
	return a.ID != 0
}

// IsAdminClassified reports whether the actor's coarse classification grants
// admin privileges.
func (a Actor) IsAdminClassified() bool {
	return a.Known() && a.Classification.AdminClassified()
}

// HoldsAnyRole reports whether the actor holds at least one of the given
// sub-roles.
func (a Actor) HoldsAnyRole(roleIDs ...int64) bool {
	if !a.Known() {
		return false
	}
	held := make(map[int64]struct{}, len(a.RoleIDs))
	for _, id := range a.RoleIDs {
		held[id] = struct{}{}
	}
	for _, id := range roleIDs {
		if _, ok := held[id]; ok {
			return true
		}
	}
	return false
}

func isSelf(a Actor, userID int64) bool {
	return a.Known() && a.ID == userID
}

// CanViewUser allows viewing one's own profile, or any profile for admins.
func CanViewUser(a Actor, targetID int64) bool {
	return isSelf(a, targetID) || a.IsAdminClassified()
}

// CanImpersonate allows an admin to act as another user. Admins may not
// impersonate other admins, and nobody may impersonate themselves.
func CanImpersonate(a Actor, targetID int64, targetClassification shared.Classification) bool {
	if !a.IsAdminClassified() {
		return false
	}
	if isSelf(a, targetID) {
		return false
	}
	return !targetClassification.AdminClassified()
}

// CanManageSubRoles gates registry mutations (create, restrict content).
func CanManageSubRoles(a Actor) bool {
	return a.IsAdminClassified()
}

// CanDeleteSubRole allows removal of a role that is neither system-protected
// nor currently held or referenced.
func CanDeleteSubRole(a Actor, systemRole, inUse bool) bool {
	return a.IsAdminClassified() && !systemRole && !inUse
}

// CanGrantRole gates manual ledger writes.
func CanGrantRole(a Actor) bool {
	return a.IsAdminClassified()
}

// CanRevokeGrant gates administrative revocation of a ledger row.
func CanRevokeGrant(a Actor) bool {
	return a.IsAdminClassified()
}

// CanViewLedger allows a user to inspect their own grants, or any ledger for
// admins.
func CanViewLedger(a Actor, subjectID int64) bool {
	return isSelf(a, subjectID) || a.IsAdminClassified()
}

// CanEditPost allows the author or an admin to modify content.
func CanEditPost(a Actor, authorID int64) bool {
	return isSelf(a, authorID) || a.IsAdminClassified()
}

// CanApproveOrder gates the purchase approval transition.
func CanApproveOrder(a Actor) bool {
	return a.IsAdminClassified()
}

// CanFinishInitiation gates recording an initiation outcome. Specialists and
// center directors conduct initiations; admins can always close them out.
func CanFinishInitiation(a Actor) bool {
	switch a.Classification {
	case shared.ClassificationAdmin, shared.ClassificationSpecialist, shared.ClassificationCenterDirector:
		return a.Known()
	}
	return false
}
