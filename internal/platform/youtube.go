package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

var youtubeScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/youtube.upload",
}

type youtubeClient struct {
	conf *oauth2.Config
}

func NewYouTubeClient(clientID, clientSecret, redirectURI string) Client {
	return &youtubeClient{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       youtubeScopes,
			Endpoint:     google.Endpoint,
		},
	}
}

func (c *youtubeClient) AuthCodeURL(state string) string {
	// access_type=offline is required or Google never issues a refresh token.
	return c.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *youtubeClient) ExchangeCode(ctx context.Context, code string) (*Token, *Profile, error) {
	if code == "" {
		return nil, nil, apperror.New(apperror.KindValidation, "authorization code is empty")
	}

	token, err := c.conf.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, nil, apperror.Wrap(apperror.KindExternalAuth, "google code exchange failed", err)
	}

	if token.RefreshToken == "" {
		return nil, nil, apperror.New(apperror.KindExternalAuth, "google returned no refresh token")
	}

	client := c.conf.Client(ctx, token)
	userInfo, err := fetchGoogleUserInfo(client)
	if err != nil {
		return nil, nil, apperror.Wrap(apperror.KindExternalAuth, "google profile fetch failed", err)
	}

	t := &Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        "youtube.upload",
	}
	p := &Profile{
		UserID: userInfo.ID,
		Name:   userInfo.Name,
	}
	return t, p, nil
}

func (c *youtubeClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	tokenSource := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, classifyGoogleRefreshError(err)
	}

	return &Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (c *youtubeClient) Publish(ctx context.Context, accessToken string, req PublishRequest) (*RemotePost, error) {
	token := &oauth2.Token{AccessToken: accessToken}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	service, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		slog.Info(err.Error())
		return nil, apperror.Wrap(apperror.KindTransientPlatform, "creating youtube service failed", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: req.Visibility,
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(req.Media, googleapi.ContentType(req.ContentType)).Do()
	if err != nil {
		slog.Info(err.Error())
		return nil, classifyGoogleAPIError(err)
	}

	return &RemotePost{
		ID:  response.Id,
		URL: "https://youtu.be/" + response.Id,
	}, nil
}

func (c *youtubeClient) Revoke(ctx context.Context, accessToken string) error {
	payload := []byte("token=" + accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token, status code: %d", resp.StatusCode)
	}
	return nil
}

func fetchGoogleUserInfo(client *http.Client) (*transfer.GoogleUserInfo, error) {
	response, err := client.Get(googleUserInfoURL)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error fetching user info: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status: %d", response.StatusCode)
	}

	var userInfo transfer.GoogleUserInfo
	if err := json.NewDecoder(response.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error decoding user info: %w", err)
	}

	return &userInfo, nil
}

// classifyGoogleRefreshError maps an oauth2 token endpoint error onto the
// taxonomy. invalid_grant means the refresh token itself is dead and only a
// reconnect can fix it.
func classifyGoogleRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return apperror.Wrap(apperror.KindReauthRequired, "google refresh token revoked or expired", err)
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return apperror.Wrap(apperror.KindExternalAuth, "google token refresh rejected", err)
		}
	}
	return apperror.Wrap(apperror.KindTransientPlatform, "google token refresh failed", err)
}

func classifyGoogleAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return apperror.Wrap(apperror.KindReauthRequired, "youtube rejected the access token", err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return apperror.Wrap(apperror.KindTransientPlatform, "youtube upload failed", err)
		default:
			// 400 invalid metadata, 403 quota exceeded: retrying cannot help.
			return apperror.Wrap(apperror.KindTerminalPlatform, "youtube refused the upload", err)
		}
	}
	return apperror.Wrap(apperror.KindTransientPlatform, "youtube upload failed", err)
}
