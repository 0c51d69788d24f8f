package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/meridian/internal/shared"
)

// Repository defines persistence for posts and their role restrictions.
type Repository interface {
	GetPost(ctx context.Context, id int64) (*Post, error)
	CreatePost(ctx context.Context, post Post) (*Post, error)
	PublishPost(ctx context.Context, id int64, at time.Time) error
	ListPosts(ctx context.Context, scope Scope) ([]Post, error)

	AddRequiredRoles(ctx context.Context, ref Ref, roleIDs []int64) error
	RequiredRoleIDs(ctx context.Context, ref Ref) ([]int64, error)
	PublicIDs(ctx context.Context, kind Kind, now time.Time) ([]int64, error)
	RoleUnlockedIDs(ctx context.Context, kind Kind, roleIDs []int64, now time.Time) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const postColumns = "id, author_id, title, body, status, published_at, created_at, updated_at"

func (r *repository) GetPost(ctx context.Context, id int64) (*Post, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+postColumns+" FROM posts WHERE id = $1", id)
	post, err := scanPost(row)
	if err != nil {
		return nil, err
	}
	roleIDs, err := r.RequiredRoleIDs(ctx, post.Ref())
	if err != nil {
		return nil, err
	}
	post.RequiredRoleIDs = roleIDs
	return post, nil
}

func (r *repository) CreatePost(ctx context.Context, post Post) (*Post, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO posts (author_id, title, body, status, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+postColumns,
		post.AuthorID, post.Title, post.Body, string(post.Status), publishedAt(post.PublishedAt))
	return scanPost(row)
}

func (r *repository) PublishPost(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE posts SET status = $1, published_at = $2, updated_at = NOW()
		WHERE id = $3`, string(PostStatusPublished), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPosts applies the visibility scope as a single SQL predicate.
func (r *repository) ListPosts(ctx context.Context, scope Scope) ([]Post, error) {
	clause, args := scope.WhereClause(1)
	query := "SELECT " + postColumns + " FROM posts"
	if clause != "" {
		query += " WHERE " + clause
	}
	query += " ORDER BY published_at DESC NULLS LAST, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var (
			p      Post
			pubAt  pgtype.Timestamptz
			status string
		)
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &status, &pubAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Status = PostStatus(status)
		if pubAt.Valid {
			val := pubAt.Time
			p.PublishedAt = &val
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// AddRequiredRoles links roles to the content, skipping links that already
// exist.
func (r *repository) AddRequiredRoles(ctx context.Context, ref Ref, roleIDs []int64) error {
	for _, roleID := range roleIDs {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO content_sub_roles (content_kind, content_id, sub_role_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`, string(ref.Kind), ref.ID, roleID)
		if err != nil {
			return fmt.Errorf("content: link role %d: %w", roleID, err)
		}
	}
	return nil
}

func (r *repository) RequiredRoleIDs(ctx context.Context, ref Ref) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sub_role_id FROM content_sub_roles
		WHERE content_kind = $1 AND content_id = $2
		ORDER BY sub_role_id`, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// PublicIDs returns the published items of the kind that carry zero role
// restrictions. One bulk query regardless of collection size.
func (r *repository) PublicIDs(ctx context.Context, kind Kind, now time.Time) ([]int64, error) {
	if kind != KindPost {
		return nil, fmt.Errorf("content: unsupported kind %q", kind)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT p.id FROM posts p
		WHERE p.status = 'published' AND p.published_at <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM content_sub_roles csr
			WHERE csr.content_kind = $1 AND csr.content_id = p.id
		  )`, string(kind), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// RoleUnlockedIDs returns the published items restricted to at least one of
// the viewer's roles. Paired with PublicIDs this keeps bulk visibility at two
// queries.
func (r *repository) RoleUnlockedIDs(ctx context.Context, kind Kind, roleIDs []int64, now time.Time) ([]int64, error) {
	if kind != KindPost {
		return nil, fmt.Errorf("content: unsupported kind %q", kind)
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.id FROM posts p
		JOIN content_sub_roles csr
		  ON csr.content_kind = $1 AND csr.content_id = p.id
		WHERE p.status = 'published' AND p.published_at <= $2
		  AND csr.sub_role_id = ANY($3)`, string(kind), now, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func publishedAt(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func scanPost(row pgx.Row) (*Post, error) {
	var (
		p      Post
		pubAt  pgtype.Timestamptz
		status string
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &status, &pubAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	p.Status = PostStatus(status)
	if pubAt.Valid {
		val := pubAt.Time
		p.PublishedAt = &val
	}
	return &p, nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
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
