package subroles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/meridian/internal/shared"
)

// ErrDuplicateName signals a unique-constraint violation on the role name.
// The service converts it into a retried lookup so concurrent bootstrap calls
// converge on the same row.
var ErrDuplicateName = errors.New("subroles: name already exists")

// Repository defines data access methods for the sub-role registry.
type Repository interface {
	Get(ctx context.Context, id int64) (*SubRole, error)
	GetByName(ctx context.Context, name string) (*SubRole, error)
	GetByNames(ctx context.Context, names []string) ([]SubRole, error)
	List(ctx context.Context) ([]SubRole, error)
	Create(ctx context.Context, role SubRole) (*SubRole, error)
	Delete(ctx context.Context, id int64) error
	InUse(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const roleColumns = "id, name, display_name, level, system_role, created_at, updated_at"

func (r *repository) Get(ctx context.Context, id int64) (*SubRole, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+roleColumns+" FROM sub_roles WHERE id = $1", id)
	return scanRole(row)
}

func (r *repository) GetByName(ctx context.Context, name string) (*SubRole, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+roleColumns+" FROM sub_roles WHERE name = $1", name)
	return scanRole(row)
}

func (r *repository) GetByNames(ctx context.Context, names []string) ([]SubRole, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+roleColumns+" FROM sub_roles WHERE name = ANY($1) ORDER BY level, name", names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (r *repository) List(ctx context.Context) ([]SubRole, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+roleColumns+" FROM sub_roles ORDER BY level, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (r *repository) Create(ctx context.Context, role SubRole) (*SubRole, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sub_roles (name, display_name, level, system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+roleColumns,
		role.Name, role.DisplayName, role.Level, role.SystemRole)
	created, err := scanRole(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	return created, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM sub_roles WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InUse reports whether any active grant or content restriction still
// references the role.
func (r *repository) InUse(ctx context.Context, id int64) (bool, error) {
	var inUse bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_sub_role_grants WHERE sub_role_id = $1 AND NOT revoked)
		    OR EXISTS (SELECT 1 FROM content_sub_roles WHERE sub_role_id = $1)`, id).Scan(&inUse)
	if err != nil {
		return false, err
	}
	return inUse, nil
}

func scanRole(row pgx.Row) (*SubRole, error) {
	var sr SubRole
	err := row.Scan(&sr.ID, &sr.Name, &sr.DisplayName, &sr.Level, &sr.SystemRole, &sr.CreatedAt, &sr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sr, nil
}

func collectRoles(rows pgx.Rows) ([]SubRole, error) {
	var roles []SubRole
	for rows.Next() {
		var sr SubRole
		if err := rows.Scan(&sr.ID, &sr.Name, &sr.DisplayName, &sr.Level, &sr.SystemRole, &sr.CreatedAt, &sr.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, sr)
	}
	return roles, rows.Err()
}
