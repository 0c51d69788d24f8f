package users

import (
	"time"

	"github.com/meridian-club/meridian/internal/shared"
)

// Classification is the coarse role bucket assigned to every account,
// independent of the sub-role ledger. The declaration lives in
// internal/shared so internal/policy can reference it without importing
// this package; the alias keeps the users API unchanged.
type Classification = shared.Classification

const (
	ClassificationAdmin          = shared.ClassificationAdmin
	ClassificationSpecialist     = shared.ClassificationSpecialist
	ClassificationCenterDirector = shared.ClassificationCenterDirector
	ClassificationMember         = shared.ClassificationMember
)

// User represents a member account.
type User struct {
	ID             int64
	Email          string
	Name           string
	PasswordHash   string
	Classification Classification
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
