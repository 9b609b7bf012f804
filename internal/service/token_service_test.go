package service_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/models"
	"github.com/postbridge/postbridge/internal/platform"
	"github.com/postbridge/postbridge/internal/repository"
	"github.com/postbridge/postbridge/internal/service"
	"github.com/postbridge/postbridge/pkg/utils"
)

var testSecretKey = strings.Repeat("k", 32)

func testConfig() config.Config {
	return config.Config{
		SecretKey: testSecretKey,
		Queue: config.Queue{
			RefreshTimeout: 5 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		PresignTTL: 15 * time.Minute,
	}
}

// fakeAccountRepo is an in-memory SocialAccountRepository with the same
// conditional SetToken semantics as the SQL implementation.
type fakeAccountRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*models.SocialAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[int64]*models.SocialAccount)}
}

func (r *fakeAccountRepo) put(sa *models.SocialAccount) *models.SocialAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sa.ID == 0 {
		r.nextID++
		sa.ID = r.nextID
	}
	cp := *sa
	r.accounts[sa.ID] = &cp
	return sa
}

func (r *fakeAccountRepo) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.WorkspaceID == sa.WorkspaceID && existing.Platform == sa.Platform && existing.PlatformUserID == sa.PlatformUserID {
			id := existing.ID
			cp := *sa
			cp.ID = id
			r.accounts[id] = &cp
			return id, nil
		}
	}
	r.nextID++
	cp := *sa
	cp.ID = r.nextID
	r.accounts[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sa, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *sa
	return &cp, nil
}

func (r *fakeAccountRepo) ListByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.WorkspaceID == workspaceID {
			cp := *sa
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.Status == models.AccountStatusConnected && sa.TokenExpiresAt.Before(deadline) {
			cp := *sa
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.accounts[accountID]
	if !ok || existing.AccessToken != oldAccessToken {
		return repository.ErrStaleToken
	}
	if sa.AccessToken != "" {
		existing.AccessToken = sa.AccessToken
	}
	if sa.RefreshToken != "" {
		existing.RefreshToken = sa.RefreshToken
	}
	if !sa.TokenExpiresAt.IsZero() {
		existing.TokenExpiresAt = sa.TokenExpiresAt
	}
	return nil
}

func (r *fakeAccountRepo) SetStatus(ctx context.Context, accountID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sa, ok := r.accounts[accountID]; ok {
		sa.Status = status
	}
	return nil
}

// fakePlatformClient scripts refresh behavior and counts calls.
type fakePlatformClient struct {
	refreshCalls  int32
	refreshDelay  time.Duration
	refreshErr    error
	refreshedWith []string
	mu            sync.Mutex
}

func (c *fakePlatformClient) AuthCodeURL(state string) string {
	return "https://auth.example/authorize?state=" + state
}

func (c *fakePlatformClient) ExchangeCode(ctx context.Context, code string) (*platform.Token, *platform.Profile, error) {
	return &platform.Token{
			AccessToken:  "access-" + code,
			RefreshToken: "refresh-" + code,
			ExpiresAt:    time.Now().Add(time.Hour),
			Scope:        "upload",
		}, &platform.Profile{
			UserID: "remote-user",
			Name:   "Remote User",
		}, nil
}

func (c *fakePlatformClient) RefreshToken(ctx context.Context, refreshToken string) (*platform.Token, error) {
	atomic.AddInt32(&c.refreshCalls, 1)
	c.mu.Lock()
	c.refreshedWith = append(c.refreshedWith, refreshToken)
	c.mu.Unlock()
	if c.refreshDelay > 0 {
		time.Sleep(c.refreshDelay)
	}
	if c.refreshErr != nil {
		return nil, c.refreshErr
	}
	return &platform.Token{
		AccessToken:  "refreshed-access",
		RefreshToken: "refreshed-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (c *fakePlatformClient) Publish(ctx context.Context, token string, req platform.PublishRequest) (*platform.RemotePost, error) {
	return &platform.RemotePost{ID: "remote-post"}, nil
}

func (c *fakePlatformClient) Revoke(ctx context.Context, accessToken string) error {
	return nil
}

func seedAccount(t *testing.T, repo *fakeAccountRepo, expiresAt time.Time) *models.SocialAccount {
	t.Helper()

	encAccess, err := utils.Encrypt([]byte("old-access"), []byte(testSecretKey))
	require.NoError(t, err)
	encRefresh, err := utils.Encrypt([]byte("old-refresh"), []byte(testSecretKey))
	require.NoError(t, err)

	return repo.put(&models.SocialAccount{
		WorkspaceID:    1,
		Platform:       platform.YouTube,
		PlatformUserID: "remote-user",
		AccountName:    "Remote User",
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		TokenExpiresAt: expiresAt,
		Status:         models.AccountStatusConnected,
	})
}

func TestGetValidAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("returns cached token without refreshing", func(t *testing.T) {
		repo := newFakeAccountRepo()
		client := &fakePlatformClient{}
		acc := seedAccount(t, repo, time.Now().Add(time.Hour))

		svc := service.NewTokenService(testConfig(), repo, platform.Registry{platform.YouTube: client})

		token, err := svc.GetValidAccessToken(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "old-access", token)
		assert.EqualValues(t, 0, atomic.LoadInt32(&client.refreshCalls))
	})

	t.Run("refreshes an expired token once", func(t *testing.T) {
		repo := newFakeAccountRepo()
		client := &fakePlatformClient{}
		acc := seedAccount(t, repo, time.Now().Add(-time.Minute))

		svc := service.NewTokenService(testConfig(), repo, platform.Registry{platform.YouTube: client})

		token, err := svc.GetValidAccessToken(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "refreshed-access", token)
		assert.EqualValues(t, 1, atomic.LoadInt32(&client.refreshCalls))
		assert.Equal(t, []string{"old-refresh"}, client.refreshedWith)
	})

	t.Run("token inside safety margin counts as expired", func(t *testing.T) {
		repo := newFakeAccountRepo()
		client := &fakePlatformClient{}
		acc := seedAccount(t, repo, time.Now().Add(30*time.Second))

		svc := service.NewTokenService(testConfig(), repo, platform.Registry{platform.YouTube: client})

		token, err := svc.GetValidAccessToken(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "refreshed-access", token)
		assert.EqualValues(t, 1, atomic.LoadInt32(&client.refreshCalls))
	})

	t.Run("concurrent callers trigger exactly one refresh", func(t *testing.T) {
		repo := newFakeAccountRepo()
		client := &fakePlatformClient{refreshDelay: 20 * time.Millisecond}
		acc := seedAccount(t, repo, time.Now().Add(-time.Minute))

		svc := service.NewTokenService(testConfig(), repo, platform.Registry{platform.YouTube: client})

		const callers = 20
		var wg sync.WaitGroup
		tokens := make([]string, callers)
		errs := make([]error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tokens[i], errs[i] = svc.GetValidAccessToken(ctx, acc.ID)
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "refreshed-access", tokens[i])
		}
		assert.EqualValues(t, 1, atomic.LoadInt32(&client.refreshCalls))
	})

	t.Run("dead refresh token expires the account", func(t *testing.T) {
		repo := newFakeAccountRepo()
		client := &fakePlatformClient{
			refreshErr: apperror.New(apperror.KindReauthRequired, "refresh token revoked"),
		}
		acc := seedAccount(t, repo, time.Now().Add(-time.Minute))

		svc := service.NewTokenService(testConfig(), repo, platform.Registry{platform.YouTube: client})

		_, err := svc.GetValidAccessToken(ctx, acc.ID)
		require.Error(t, err)
		assert.Equal(t, apperror.KindReauthRequired, apperror.KindOf(err))

		stored, _ := repo.GetByID(ctx, acc.ID)
		assert.Equal(t, models.AccountStatusExpired, stored.Status)

		// Subsequent calls fail fast without another refresh attempt.
		_, err = svc.GetValidAccessToken(ctx, acc.ID)
		require.Error(t, err)
		assert.Equal(t, apperror.KindReauthRequired, apperror.KindOf(err))
		assert.EqualValues(t, 1, atomic.LoadInt32(&client.refreshCalls))
	})

	t.Run("revoked account is never refreshed", func(t *testing.T) {
		repo := newFakeAccountRepo()
		client := &fakePlatformClient{}
		acc := seedAccount(t, repo, time.Now().Add(-time.Minute))
		require.NoError(t, repo.SetStatus(ctx, acc.ID, models.AccountStatusRevoked))

		svc := service.NewTokenService(testConfig(), repo, platform.Registry{platform.YouTube: client})

		_, err := svc.GetValidAccessToken(ctx, acc.ID)
		require.Error(t, err)
		assert.Equal(t, apperror.KindReauthRequired, apperror.KindOf(err))
		assert.EqualValues(t, 0, atomic.LoadInt32(&client.refreshCalls))
	})

	t.Run("unknown account is not found", func(t *testing.T) {
		repo := newFakeAccountRepo()
		svc := service.NewTokenService(testConfig(), repo, platform.Registry{platform.YouTube: &fakePlatformClient{}})

		_, err := svc.GetValidAccessToken(ctx, 42)
		require.Error(t, err)
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	})
}
