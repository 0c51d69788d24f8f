package grants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/meridian/internal/platform/db"
	"github.com/meridian-club/meridian/internal/shared"
)

// Repository defines ledger persistence. All writers go through
// InsertOrFetch so the one-active-row invariant has a single enforcement
// point.
type Repository interface {
	InsertOrFetch(ctx context.Context, grant Grant) (*Grant, bool, error)
	Get(ctx context.Context, id int64) (*Grant, error)
	HasRole(ctx context.Context, userID int64, roleName string) (bool, error)
	RoleNames(ctx context.Context, userID int64) ([]string, error)
	RoleIDs(ctx context.Context, userID int64) ([]int64, error)
	List(ctx context.Context, whereClause string, args []any, limit, offset int) ([]Grant, error)
	Count(ctx context.Context, whereClause string, args []any) (int, error)
	Revoke(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const grantColumns = "id, user_id, sub_role_id, source_kind, source_id, granted_via, granted_by, granted_at, revoked, revoked_at"

// InsertOrFetch records the grant, or returns the active row that already
// exists for (user, sub-role). The partial unique index on
// (user_id, sub_role_id) WHERE NOT revoked makes concurrent callers converge
// on a single row; the expected conflict is absorbed inside one transaction
// rather than surfaced as an error.
func (r *repository) InsertOrFetch(ctx context.Context, grant Grant) (*Grant, bool, error) {
	var (
		result  *Grant
		created bool
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO user_sub_role_grants
				(user_id, sub_role_id, source_kind, source_id, granted_via, granted_by, granted_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (user_id, sub_role_id) WHERE NOT revoked DO NOTHING
			RETURNING `+grantColumns,
			grant.UserID, grant.SubRoleID, string(grant.Source.Kind), sourceID(grant.Source), string(grant.Via), grant.GrantedBy)

		inserted, err := scanGrant(row)
		if err == nil {
			result = inserted
			created = true
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("grants: insert: %w", err)
		}

		existing, err := scanGrant(tx.QueryRow(ctx, `
			SELECT `+grantColumns+`
			FROM user_sub_role_grants
			WHERE user_id = $1 AND sub_role_id = $2 AND NOT revoked`,
			grant.UserID, grant.SubRoleID))
		if err != nil {
			return fmt.Errorf("grants: fetch existing: %w", err)
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Grant, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+grantColumns+" FROM user_sub_role_grants WHERE id = $1", id)
	return scanGrant(row)
}

func (r *repository) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_sub_role_grants g
			JOIN sub_roles sr ON sr.id = g.sub_role_id
			WHERE g.user_id = $1 AND sr.name = $2 AND NOT g.revoked
		)`, userID, roleName).Scan(&has)
	return has, err
}

func (r *repository) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sr.name
		FROM user_sub_role_grants g
		JOIN sub_roles sr ON sr.id = g.sub_role_id
		WHERE g.user_id = $1 AND NOT g.revoked
		ORDER BY sr.level, sr.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *repository) RoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sub_role_id FROM user_sub_role_grants
		WHERE user_id = $1 AND NOT revoked
		ORDER BY sub_role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns ledger rows restricted by the given scope clause.
func (r *repository) List(ctx context.Context, whereClause string, args []any, limit, offset int) ([]Grant, error) {
	query := "SELECT " + grantColumns + " FROM user_sub_role_grants WHERE NOT revoked"
	if whereClause != "" {
		query += " AND " + whereClause
	}
	query += " ORDER BY granted_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		g, err := collectGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *repository) Count(ctx context.Context, whereClause string, args []any) (int, error) {
	query := "SELECT COUNT(*) FROM user_sub_role_grants WHERE NOT revoked"
	if whereClause != "" {
		query += " AND " + whereClause
	}
	var total int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

func (r *repository) Revoke(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_sub_role_grants
		SET revoked = TRUE, revoked_at = NOW()
		WHERE id = $1 AND NOT revoked`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func sourceID(ref SourceRef) pgtype.Int8 {
	if ref.Kind == SourceNone {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: ref.ID, Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanGrant(row pgx.Row) (*Grant, error) {
	g, err := collectGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func collectGrant(row scannable) (*Grant, error) {
	var (
		g          Grant
		sourceKind string
		srcID      pgtype.Int8
		grantedBy  pgtype.Int8
		revokedAt  pgtype.Timestamptz
	)
	err := row.Scan(&g.ID, &g.UserID, &g.SubRoleID, &sourceKind, &srcID, &g.Via, &grantedBy, &g.GrantedAt, &g.Revoked, &revokedAt)
	if err != nil {
		return nil, err
	}
	g.Source = SourceRef{Kind: SourceKind(sourceKind)}
	if srcID.Valid {
		g.Source.ID = srcID.Int64
	}
	if grantedBy.Valid {
		val := grantedBy.Int64
		g.GrantedBy = &val
	}
	if revokedAt.Valid {
		val := revokedAt.Time
		g.RevokedAt = &val
	}
	return &g, nil
}
