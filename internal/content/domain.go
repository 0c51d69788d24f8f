package content

import "time"

// Kind discriminates restrictable content entities. Restrictions live in one
// association table keyed by (kind, id), so new restrictable kinds only add a
// constant here.
type Kind string

const (
	// KindPost covers member-facing articles.
	KindPost Kind = "post"
	// KindResource covers downloadable library items.
	KindResource Kind = "resource"
)

// Ref is a tagged reference to a restrictable content entity.
type Ref struct {
	Kind Kind
	ID   int64
}

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
)

// Post is an article that can be gated behind sub-roles. Zero associated
// roles means the post is public to every visitor once published.
type Post struct {
	ID              int64
	AuthorID        int64
	Title           string
	Body            string
	Status          PostStatus
	PublishedAt     *time.Time
	RequiredRoleIDs []int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ref returns the restriction reference for the post.
func (p Post) Ref() Ref {
	return Ref{Kind: KindPost, ID: p.ID}
}

// Published reports whether the post has passed its publication gate. A
// future-dated publish time keeps the post hidden regardless of roles.
func (p Post) Published(now time.Time) bool {
	return p.Status == PostStatusPublished && p.PublishedAt != nil && !p.PublishedAt.After(now)
}

// IsPublic reports whether the post carries no role restrictions.
func (p Post) IsPublic() bool {
	return len(p.RequiredRoleIDs) == 0
}
