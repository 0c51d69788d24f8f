package subroles

import "time"

// SubRole is a fine-grained capability tag beyond the coarse account
// classification. Content restrictions and the grant ledger both reference
// sub-roles by ID.
type SubRole struct {
	ID          int64
	Name        string
	DisplayName string
	Level       int
	SystemRole  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
