package initiations

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Enqueuer schedules the deferred auto-grant follow-up after a successful
// initiation.
type Enqueuer interface {
	EnqueueInitiationAutoGrant(ctx context.Context, initiationID int64) error
}

// Service wraps the initiation lifecycle.
type Service struct {
	repo     Repository
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, enqueuer Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, enqueuer: enqueuer, logger: logger}
}

// Create opens a pending initiation for a candidate.
func (s *Service) Create(ctx context.Context, candidateID, conductedBy int64, autoGrantSubRoleIDs []int64) (*Initiation, error) {
	return s.repo.Create(ctx, Initiation{
		CandidateID:         candidateID,
		ConductedBy:         conductedBy,
		AutoGrantSubRoleIDs: autoGrantSubRoleIDs,
	})
}

// Get loads an initiation.
func (s *Service) Get(ctx context.Context, id int64) (*Initiation, error) {
	return s.repo.Get(ctx, id)
}

// Finish records the outcome of a pending initiation. Completed and passed
// outcomes schedule the auto-grant follow-up with the conductor as granting
// actor; failed records nothing in the ledger. The conditional update keeps
// the transition one-way, so a finished initiation can never re-fire.
func (s *Service) Finish(ctx context.Context, id int64, outcome Status, conductedBy int64) (*Initiation, error) {
	if !outcome.Terminal() {
		return nil, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidStatus, outcome)
	}

	moved, err := s.repo.TransitionStatus(ctx, id, outcome, conductedBy, time.Now())
	if err != nil {
		return nil, fmt.Errorf("initiations: finish: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("%w: initiation already finished", ErrInvalidStatus)
	}

	if outcome.Success() && s.enqueuer != nil {
		if err := s.enqueuer.EnqueueInitiationAutoGrant(ctx, id); err != nil {
			s.logger.Error("enqueue auto-grant", slog.Int64("initiation_id", id), slog.Any("error", err))
			return nil, fmt.Errorf("initiations: enqueue auto-grant: %w", err)
		}
	}

	return s.repo.Get(ctx, id)
}
