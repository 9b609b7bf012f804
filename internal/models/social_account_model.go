package models

import (
	"time"
)

const (
	AccountStatusConnected = "connected"
	AccountStatusExpired   = "expired"
	AccountStatusRevoked   = "revoked"
)

// SocialAccount is one workspace's authorization to act on a platform.
// Tokens are stored AES-GCM encrypted; they are only mutated by the token
// refresher and the connector. Rows are never hard-deleted, disconnecting
// flips status to revoked.
type SocialAccount struct {
	ID             int64     `db:"id" json:"id"`
	WorkspaceID    int64     `db:"workspace_id" json:"workspace_id"`
	Platform       string    `db:"platform" json:"platform"`
	PlatformUserID string    `db:"platform_user_id" json:"platform_user_id"`
	AccountName    string    `db:"account_name" json:"account_name"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	Scope          string    `db:"scope" json:"scope"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
