package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-club/meridian/internal/shared"
)

func admin(id int64) Actor {
	return Actor{ID: id, Classification: shared.ClassificationAdmin}
}

func memberActor(id int64, roleIDs ...int64) Actor {
	return Actor{ID: id, Classification: shared.ClassificationMember, RoleIDs: roleIDs}
}

func TestActorPrimitives(t *testing.T) {
	assert.False(t, Anonymous.Known())
	assert.False(t, Anonymous.IsAdminClassified())
	assert.False(t, Anonymous.HoldsAnyRole(1, 2, 3))

	a := memberActor(10, 2, 5)
	assert.True(t, a.Known())
	assert.False(t, a.IsAdminClassified())
	assert.True(t, a.HoldsAnyRole(5))
	assert.True(t, a.HoldsAnyRole(1, 2))
	assert.False(t, a.HoldsAnyRole(1, 3))
	assert.False(t, a.HoldsAnyRole())

	assert.True(t, admin(1).IsAdminClassified())
}

func TestCanViewUser(t *testing.T) {
	assert.True(t, CanViewUser(memberActor(10), 10), "own profile")
	assert.False(t, CanViewUser(memberActor(10), 11))
	assert.True(t, CanViewUser(admin(1), 11))
	assert.False(t, CanViewUser(Anonymous, 0), "anonymous never matches self")
}

func TestCanImpersonate(t *testing.T) {
	assert.True(t, CanImpersonate(admin(1), 10, shared.ClassificationMember))
	assert.False(t, CanImpersonate(admin(1), 1, shared.ClassificationAdmin), "never self")
	assert.False(t, CanImpersonate(admin(1), 2, shared.ClassificationAdmin), "never another admin")
	assert.False(t, CanImpersonate(memberActor(10), 11, shared.ClassificationMember))
	assert.False(t, CanImpersonate(Anonymous, 10, shared.ClassificationMember))
}

func TestRegistryAndLedgerGates(t *testing.T) {
	assert.True(t, CanManageSubRoles(admin(1)))
	assert.False(t, CanManageSubRoles(memberActor(10)))
	assert.False(t, CanManageSubRoles(Anonymous))

	assert.True(t, CanDeleteSubRole(admin(1), false, false))
	assert.False(t, CanDeleteSubRole(admin(1), true, false), "system roles are protected")
	assert.False(t, CanDeleteSubRole(admin(1), false, true), "referenced roles stay")
	assert.False(t, CanDeleteSubRole(memberActor(10), false, false))

	assert.True(t, CanGrantRole(admin(1)))
	assert.False(t, CanGrantRole(memberActor(10)))
	assert.True(t, CanRevokeGrant(admin(1)))
	assert.False(t, CanRevokeGrant(memberActor(10)))
}

func TestCanViewLedger(t *testing.T) {
	assert.True(t, CanViewLedger(memberActor(10), 10), "own ledger")
	assert.False(t, CanViewLedger(memberActor(10), 11))
	assert.True(t, CanViewLedger(admin(1), 11))
}

func TestCanFinishInitiation(t *testing.T) {
	assert.True(t, CanFinishInitiation(admin(1)))
	assert.True(t, CanFinishInitiation(Actor{ID: 2, Classification: shared.ClassificationSpecialist}))
	assert.True(t, CanFinishInitiation(Actor{ID: 3, Classification: shared.ClassificationCenterDirector}))
	assert.False(t, CanFinishInitiation(memberActor(10)))
	assert.False(t, CanFinishInitiation(Anonymous))
}

func TestListUsersScope(t *testing.T) {
	clause, args := ListUsersScope(admin(1)).WhereClause(1)
	assert.Empty(t, clause)
	assert.Empty(t, args)

	clause, args = ListUsersScope(memberActor(10)).WhereClause(1)
	assert.Equal(t, "id = $1", clause)
	assert.Equal(t, []any{int64(10)}, args)

	clause, args = ListUsersScope(Anonymous).WhereClause(1)
	assert.Equal(t, "FALSE", clause)
	assert.Empty(t, args)
}

func TestListGrantsScope(t *testing.T) {
	clause, _ := ListGrantsScope(admin(1)).WhereClause(1)
	assert.Empty(t, clause)

	clause, args := ListGrantsScope(memberActor(10)).WhereClause(3)
	assert.Equal(t, "user_id = $3", clause)
	assert.Equal(t, []any{int64(10)}, args)

	clause, _ = ListGrantsScope(Anonymous).WhereClause(1)
	assert.Equal(t, "FALSE", clause)
}
