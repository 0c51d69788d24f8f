package policy

import "fmt"

// UserScope is a listing predicate for user collections. It is translated
// into SQL exactly once by the repository, so scoping happens in the query
// rather than by filtering fetched rows.
type UserScope struct {
	All    bool
	UserID int64
}

// ListUsersScope returns the rows the actor may enumerate: everything for
// admins, only the actor's own record otherwise. Anonymous actors see
// nothing.
func ListUsersScope(a Actor) UserScope {
	if a.IsAdminClassified() {
		return UserScope{All: true}
	}
	return UserScope{UserID: a.ID}
}

// WhereClause renders the scope as a SQL predicate starting at argPos.
// An empty clause means no restriction.
func (s UserScope) WhereClause(argPos int) (string, []any) {
	if s.All {
		return "", nil
	}
	if s.UserID == 0 {
		// Anonymous: match nothing.
		return "FALSE", nil
	}
	return fmt.Sprintf("id = $%d", argPos), []any{s.UserID}
}

// LedgerScope restricts grant listings the same way.
type LedgerScope struct {
	All    bool
	UserID int64
}

// ListGrantsScope returns the ledger rows the actor may enumerate.
func ListGrantsScope(a Actor) LedgerScope {
	if a.IsAdminClassified() {
		return LedgerScope{All: true}
	}
	return LedgerScope{UserID: a.ID}
}

// WhereClause renders the scope as a SQL predicate starting at argPos.
func (s LedgerScope) WhereClause(argPos int) (string, []any) {
	if s.All {
		return "", nil
	}
	if s.UserID == 0 {
		return "FALSE", nil
	}
	return fmt.Sprintf("user_id = $%d", argPos), []any{s.UserID}
}
