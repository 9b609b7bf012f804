// Package platform wraps each external platform's API behind one small
// capability: exchange an OAuth code, refresh a token, publish a video,
// revoke access. Workers and services never talk to a platform directly.
package platform

import (
	"context"
	"io"
	"time"

	"github.com/postbridge/postbridge/internal/apperror"
)

const (
	YouTube = "youtube"
	TikTok  = "tiktok"
)

// Token is a decrypted platform credential pair.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// Profile identifies the remote account the token acts for.
type Profile struct {
	UserID string
	Name   string
}

// PublishRequest carries the staged video. Media streams the bytes from
// storage; MediaURL is a time-bounded read URL for platforms that pull the
// file themselves instead of accepting an upload stream.
type PublishRequest struct {
	Title       string
	Description string
	Visibility  string
	ContentType string
	Media       io.Reader
	MediaURL    string
}

// RemotePost is the platform's handle for a published video.
type RemotePost struct {
	ID  string
	URL string
}

type Client interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, *Profile, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	Publish(ctx context.Context, token string, req PublishRequest) (*RemotePost, error)
	Revoke(ctx context.Context, accessToken string) error
}

// Registry maps the closed set of supported platforms to their clients.
// Built once in main; an unknown platform is a not-found condition, never a
// silent fallthrough.
type Registry map[string]Client

func (r Registry) ForPlatform(platform string) (Client, error) {
	client, ok := r[platform]
	if !ok {
		return nil, apperror.Newf(apperror.KindNotFound, "unsupported platform %q", platform)
	}
	return client, nil
}

func (r Registry) Supported(platform string) bool {
	_, ok := r[platform]
	return ok
}
