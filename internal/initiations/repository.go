package initiations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/meridian/internal/shared"
)

// Repository defines persistence for initiations.
type Repository interface {
	Create(ctx context.Context, init Initiation) (*Initiation, error)
	Get(ctx context.Context, id int64) (*Initiation, error)
	// TransitionStatus conditionally moves a pending initiation into a
	// terminal state and reports whether a row actually changed.
	TransitionStatus(ctx context.Context, id int64, to Status, conductedBy int64, at time.Time) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const initiationColumns = "id, candidate_id, conducted_by, status, auto_grant_sub_role_ids, finished_at, created_at, updated_at"

func (r *repository) Create(ctx context.Context, init Initiation) (*Initiation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO initiations (candidate_id, conducted_by, status, auto_grant_sub_role_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+initiationColumns,
		init.CandidateID, init.ConductedBy, string(StatusPending), init.AutoGrantSubRoleIDs)
	return scanInitiation(row)
}

func (r *repository) Get(ctx context.Context, id int64) (*Initiation, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+initiationColumns+" FROM initiations WHERE id = $1", id)
	return scanInitiation(row)
}

func (r *repository) TransitionStatus(ctx context.Context, id int64, to Status, conductedBy int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE initiations
		SET status = $1, conducted_by = $2, finished_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		string(to), conductedBy, at, id, string(StatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanInitiation(row pgx.Row) (*Initiation, error) {
	var (
		i          Initiation
		status     string
		finishedAt pgtype.Timestamptz
	)
	err := row.Scan(&i.ID, &i.CandidateID, &i.ConductedBy, &status, &i.AutoGrantSubRoleIDs, &finishedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	i.Status = Status(status)
	if finishedAt.Valid {
		val := finishedAt.Time
		i.FinishedAt = &val
	}
	return &i, nil
}
