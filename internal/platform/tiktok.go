package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/transfer"
)

const (
	tiktokAuthURL     = "https://www.tiktok.com/v2/auth/authorize"
	tiktokTokenURL    = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokUserInfoURL = "https://open.tiktokapis.com/v2/user/info/?fields=open_id,avatar_url,display_name,username"
	tiktokRevokeURL   = "https://open.tiktokapis.com/v2/oauth/revoke/"
	tiktokPublishURL  = "https://open.tiktokapis.com/v2/post/publish/video/init/"

	tiktokScopes = "user.info.basic,user.info.profile,video.publish,video.upload"
)

type tiktokClient struct {
	clientKey    string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
}

func NewTikTokClient(clientKey, clientSecret, redirectURI string) Client {
	return &tiktokClient{
		clientKey:    clientKey,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *tiktokClient) AuthCodeURL(state string) string {
	params := url.Values{}
	params.Add("client_key", c.clientKey)
	params.Add("scope", tiktokScopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", c.redirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", tiktokAuthURL, params.Encode())
}

func (c *tiktokClient) ExchangeCode(ctx context.Context, code string) (*Token, *Profile, error) {
	if code == "" {
		return nil, nil, apperror.New(apperror.KindValidation, "authorization code is empty")
	}

	data := url.Values{}
	data.Add("client_key", c.clientKey)
	data.Add("client_secret", c.clientSecret)
	data.Add("code", code)
	data.Add("grant_type", "authorization_code")
	data.Add("redirect_uri", c.redirectURI)

	tokenResponse, err := c.postTokenForm(ctx, data)
	if err != nil {
		return nil, nil, apperror.Wrap(apperror.KindExternalAuth, "tiktok code exchange failed", err)
	}

	userInfo, err := c.fetchUserInfo(ctx, tokenResponse.AccessToken)
	if err != nil {
		return nil, nil, apperror.Wrap(apperror.KindExternalAuth, "tiktok profile fetch failed", err)
	}

	t := &Token{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
		Scope:        tokenResponse.Scope,
	}
	p := &Profile{
		UserID: userInfo.Data.User.OpenID,
		Name:   userInfo.Data.User.DisplayName,
	}
	return t, p, nil
}

func (c *tiktokClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{}
	data.Set("client_key", c.clientKey)
	data.Set("client_secret", c.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	tokenResponse, err := c.postTokenForm(ctx, data)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Token{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
		Scope:        tokenResponse.Scope,
	}, nil
}

// Publish starts a PULL_FROM_URL direct post: TikTok fetches the video from
// the presigned storage URL itself, so no bytes transit this process.
func (c *tiktokClient) Publish(ctx context.Context, accessToken string, req PublishRequest) (*RemotePost, error) {
	uploadRequest := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 req.Title,
			PrivacyLevel:          tiktokPrivacyLevel(req.Visibility),
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: req.MediaURL,
		},
	}

	jsonData, err := json.Marshal(uploadRequest)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindTerminalPlatform, "marshalling tiktok publish request failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokPublishURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindTransientPlatform, "creating tiktok publish request failed", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		slog.Info(err.Error())
		return nil, apperror.Wrap(apperror.KindTransientPlatform, "tiktok publish request failed", err)
	}
	defer resp.Body.Close()

	var result transfer.TikTokUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, apperror.Wrap(apperror.KindTransientPlatform, "decoding tiktok publish response failed", err)
	}

	if resp.StatusCode != http.StatusOK || (result.Error.Code != "" && result.Error.Code != "ok") {
		return nil, classifyTiktokError(resp.StatusCode, result.Error)
	}

	return &RemotePost{ID: result.Data.PublishID}, nil
}

func (c *tiktokClient) Revoke(ctx context.Context, accessToken string) error {
	data := url.Values{}
	data.Set("client_key", c.clientKey)
	data.Set("client_secret", c.clientSecret)
	data.Set("token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokRevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token, status code: %d", resp.StatusCode)
	}
	return nil
}

func (c *tiktokClient) postTokenForm(ctx context.Context, data url.Values) (*transfer.TiktokTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, apperror.Wrap(apperror.KindTransientPlatform, "tiktok token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, apperror.Wrap(apperror.KindTransientPlatform, "decoding tiktok token response failed", err)
	}

	if tokenResponse.Error != "" {
		if tokenResponse.Error == "invalid_grant" {
			return nil, apperror.Newf(apperror.KindReauthRequired, "tiktok refresh token revoked: %s", tokenResponse.ErrorDescription)
		}
		return nil, apperror.Newf(apperror.KindExternalAuth, "tiktok token endpoint error: %s", tokenResponse.Error)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apperror.Newf(apperror.KindTransientPlatform, "tiktok token endpoint returned %d", resp.StatusCode)
		}
		return nil, apperror.Newf(apperror.KindExternalAuth, "tiktok token endpoint returned %d", resp.StatusCode)
	}

	return &tokenResponse, nil
}

func (c *tiktokClient) fetchUserInfo(ctx context.Context, accessToken string) (*transfer.TikTokResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tiktokUserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var result transfer.TikTokResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &result, nil
}

func tiktokPrivacyLevel(visibility string) string {
	switch visibility {
	case "private":
		return "SELF_ONLY"
	case "unlisted":
		return "FOLLOWER_OF_CREATOR"
	default:
		return "PUBLIC_TO_EVERYONE"
	}
}

func classifyTiktokError(statusCode int, tikErr transfer.TiktokError) error {
	if statusCode == http.StatusUnauthorized || tikErr.Code == "access_token_invalid" {
		return apperror.Newf(apperror.KindReauthRequired, "tiktok rejected the access token: %s", tikErr.Message)
	}
	if statusCode == http.StatusTooManyRequests || tikErr.Code == "rate_limit_exceeded" || statusCode >= 500 {
		return apperror.Newf(apperror.KindTransientPlatform, "tiktok publish throttled or unavailable: %s", tikErr.Message)
	}
	return apperror.Newf(apperror.KindTerminalPlatform, "tiktok refused the publish: %s", tikErr.Message)
}
