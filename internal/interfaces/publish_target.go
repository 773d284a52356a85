package interfaces

import (
	"context"
	"time"
)

// RemotePost is the publish target's view of one post.
type RemotePost struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	EmailSent bool      `json:"email_sent"` // the platform already delivered this post by email
}

// PostInput is the content for a create or update call.
type PostInput struct {
	Title          string
	Slug           string
	HTML           string
	Tags           []string
	FeatureImage   string
	SendNewsletter bool   // only honored on the call that first publishes
	EmailSegment   string // recipient filter when sending
}

// PublishTarget is the publishing platform boundary with
// create-or-update-by-identifier semantics. The coordinator, not the
// target, decides create versus update from the run ledger.
type PublishTarget interface {
	// GetPostBySlug returns the post with the slug, or nil when the
	// platform has none.
	GetPostBySlug(ctx context.Context, slug string) (*RemotePost, error)

	// CreatePost creates a new post and returns it.
	CreatePost(ctx context.Context, input *PostInput) (*RemotePost, error)

	// UpdatePost updates the identified post. updatedAt must carry the
	// remote post's current timestamp for optimistic locking.
	UpdatePost(ctx context.Context, id string, input *PostInput, updatedAt time.Time) (*RemotePost, error)

	// UploadImage uploads an image and returns its public URL.
	UploadImage(ctx context.Context, filename string, data []byte) (string, error)
}
