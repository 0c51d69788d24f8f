package initiations

import (
	"errors"
	"time"
)

var (
	// ErrInvalidStatus rejects transitions out of a terminal state or into an
	// unknown one.
	ErrInvalidStatus = errors.New("initiations: invalid status transition")
)

// Status is the lifecycle state of an initiation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the initiation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPassed, StatusFailed:
		return true
	}
	return false
}

// Success reports whether the status confers the configured sub-roles.
// Only completed and passed do; failed never grants anything.
func (s Status) Success() bool {
	return s == StatusCompleted || s == StatusPassed
}

// Initiation is a qualification process conducted for a candidate. On
// reaching a successful terminal state the configured sub-roles are granted
// with the conductor recorded as the granting actor.
type Initiation struct {
	ID                  int64
	CandidateID         int64
	ConductedBy         int64
	Status              Status
	AutoGrantSubRoleIDs []int64
	FinishedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
