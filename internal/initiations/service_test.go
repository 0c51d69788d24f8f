package initiations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/meridian/internal/shared"
)

type mockRepository struct {
	inits  map[int64]*Initiation
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{inits: make(map[int64]*Initiation), nextID: 1}
}

func (m *mockRepository) Create(ctx context.Context, init Initiation) (*Initiation, error) {
	init.ID = m.nextID
	m.nextID++
	init.Status = StatusPending
	m.inits[init.ID] = &init
	copied := init
	return &copied, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Initiation, error) {
	in, ok := m.inits[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *in
	return &copied, nil
}

func (m *mockRepository) TransitionStatus(ctx context.Context, id int64, to Status, conductedBy int64, at time.Time) (bool, error) {
	in, ok := m.inits[id]
	if !ok || in.Status != StatusPending {
		return false, nil
	}
	in.Status = to
	in.ConductedBy = conductedBy
	in.FinishedAt = &at
	return true, nil
}

type recordingEnqueuer struct {
	initiationIDs []int64
}

func (e *recordingEnqueuer) EnqueueInitiationAutoGrant(ctx context.Context, id int64) error {
	e.initiationIDs = append(e.initiationIDs, id)
	return nil
}

func TestFinishSuccessEnqueues(t *testing.T) {
	for _, outcome := range []Status{StatusCompleted, StatusPassed} {
		repo := newMockRepository()
		enq := &recordingEnqueuer{}
		svc := NewService(repo, enq, nil)
		ctx := context.Background()

		in, err := svc.Create(ctx, 20, 3, []int64{8})
		require.NoError(t, err)

		finished, err := svc.Finish(ctx, in.ID, outcome, 3)
		require.NoError(t, err)
		assert.Equal(t, outcome, finished.Status)
		assert.NotNil(t, finished.FinishedAt)
		assert.Equal(t, []int64{in.ID}, enq.initiationIDs)
	}
}

func TestFinishFailedDoesNotEnqueue(t *testing.T) {
	repo := newMockRepository()
	enq := &recordingEnqueuer{}
	svc := NewService(repo, enq, nil)
	ctx := context.Background()

	in, err := svc.Create(ctx, 20, 3, []int64{8})
	require.NoError(t, err)

	finished, err := svc.Finish(ctx, in.ID, StatusFailed, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, finished.Status)
	assert.Empty(t, enq.initiationIDs)
}

func TestFinishIsOneWay(t *testing.T) {
	repo := newMockRepository()
	enq := &recordingEnqueuer{}
	svc := NewService(repo, enq, nil)
	ctx := context.Background()

	in, err := svc.Create(ctx, 20, 3, nil)
	require.NoError(t, err)

	_, err = svc.Finish(ctx, in.ID, StatusCompleted, 3)
	require.NoError(t, err)

	// A finished initiation can never re-fire, whatever the outcome.
	_, err = svc.Finish(ctx, in.ID, StatusPassed, 3)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.Finish(ctx, in.ID, StatusFailed, 3)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Len(t, enq.initiationIDs, 1)
}

func TestFinishRejectsNonTerminalOutcome(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &recordingEnqueuer{}, nil)
	ctx := context.Background()

	in, err := svc.Create(ctx, 20, 3, nil)
	require.NoError(t, err)

	_, err = svc.Finish(ctx, in.ID, StatusPending, 3)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	current, err := svc.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, current.Status)
}
