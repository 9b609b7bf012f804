package models

import (
	"database/sql"
	"time"
)

const (
	PostStatusDraft     = "draft"
	PostStatusUploading = "uploading"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
)

const (
	VisibilityPublic   = "public"
	VisibilityPrivate  = "private"
	VisibilityUnlisted = "unlisted"
)

// SocialPost is one unit of video content staged for or published to a
// platform. Status transitions are monotonic:
// draft -> uploading -> published|failed. The worker only leaves uploading
// through a conditional update, so a late duplicate delivery can never move
// a post out of a terminal state.
type SocialPost struct {
	ID              string         `db:"id" json:"id"`
	WorkspaceID     int64          `db:"workspace_id" json:"workspace_id"`
	SocialAccountID int64          `db:"social_account_id" json:"social_account_id"`
	Platform        string         `db:"platform" json:"platform"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	Visibility      string         `db:"visibility" json:"visibility"`
	ContentType     string         `db:"content_type" json:"content_type"`
	StorageKey      string         `db:"storage_key" json:"-"`
	PlatformPostID  sql.NullString `db:"platform_post_id" json:"platform_post_id"`
	PlatformURL     sql.NullString `db:"platform_url" json:"platform_url"`
	Status          string         `db:"status" json:"status"`
	ErrorMessage    sql.NullString `db:"error_message" json:"error_message"`
	PublishedAt     sql.NullTime   `db:"published_at" json:"published_at"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the post can no longer change state.
func (p *SocialPost) IsTerminal() bool {
	return p.Status == PostStatusPublished || p.Status == PostStatusFailed
}
