package models

import "time"

// Draft is the renderer's structured output for one article. The body is
// markdown; Meta comes from the YAML front matter the renderer emits.
// Drafts are untrusted: every numeric claim in Body is re-validated
// against the evidence pack by the QA gate before publication.
type Draft struct {
	ArticleID string            `json:"article_id"`
	Title     string            `json:"title" validate:"required"`
	Meta      map[string]string `json:"meta,omitempty"`
	Body      string            `json:"body" validate:"required"` // markdown
	Provider  string            `json:"provider,omitempty"`       // which model produced it
	CreatedAt time.Time         `json:"created_at"`
}

// PublishResult reports what the publication coordinator did for one
// article.
type PublishResult struct {
	Slug           string `json:"slug"`
	ExternalPostID string `json:"external_post_id"`
	Created        bool   `json:"created"` // true = new remote post, false = update
	EmailSent      bool   `json:"email_sent"`
	URL            string `json:"url,omitempty"`
}
