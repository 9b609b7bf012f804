package service_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/models"
	"github.com/postbridge/postbridge/internal/platform"
	"github.com/postbridge/postbridge/internal/service"
	"github.com/postbridge/postbridge/internal/transfer"
)

// fakePostRepo is an in-memory SocialPostRepository mirroring the conditional
// transition semantics of the SQL implementation.
type fakePostRepo struct {
	mu    sync.Mutex
	posts map[string]*models.SocialPost
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[string]*models.SocialPost)}
}

func (r *fakePostRepo) Create(ctx context.Context, post *models.SocialPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *post
	r.posts[post.ID] = &cp
	return nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id string) (*models.SocialPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *post
	return &cp, nil
}

func (r *fakePostRepo) ListByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialPost
	for _, post := range r.posts {
		if post.WorkspaceID == workspaceID {
			cp := *post
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePostRepo) MarkUploading(ctx context.Context, id string) (bool, error) {
	return r.transition(id, models.PostStatusDraft, func(p *models.SocialPost) {
		p.Status = models.PostStatusUploading
	})
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, id, platformPostID, platformURL string, publishedAt time.Time) (bool, error) {
	return r.transition(id, models.PostStatusUploading, func(p *models.SocialPost) {
		p.Status = models.PostStatusPublished
		p.PlatformPostID.String, p.PlatformPostID.Valid = platformPostID, true
		p.PlatformURL.String, p.PlatformURL.Valid = platformURL, true
		p.PublishedAt.Time, p.PublishedAt.Valid = publishedAt, true
	})
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, id, errorMessage string) (bool, error) {
	return r.transition(id, models.PostStatusUploading, func(p *models.SocialPost) {
		p.Status = models.PostStatusFailed
		p.ErrorMessage.String, p.ErrorMessage.Valid = errorMessage, true
	})
}

func (r *fakePostRepo) FailUploadingByAccount(ctx context.Context, accountID int64, errorMessage string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, post := range r.posts {
		if post.SocialAccountID == accountID && post.Status == models.PostStatusUploading {
			post.Status = models.PostStatusFailed
			post.ErrorMessage.String, post.ErrorMessage.Valid = errorMessage, true
			count++
		}
	}
	return count, nil
}

func (r *fakePostRepo) transition(id, fromStatus string, apply func(*models.SocialPost)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != fromStatus {
		return false, nil
	}
	apply(post)
	return true, nil
}

// fakeStorage hands out deterministic presigned URLs.
type fakeStorage struct {
	mu           sync.Mutex
	uploadKeys   []string
	downloadKeys []string
	media        string
}

func (s *fakeStorage) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadKeys = append(s.uploadKeys, key)
	return "https://storage.example/upload/" + key, nil
}

func (s *fakeStorage) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadKeys = append(s.downloadKeys, key)
	return "https://storage.example/download/" + key, nil
}

func (s *fakeStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.media)), nil
}

func uploadRequest() *transfer.UploadRequest {
	return &transfer.UploadRequest{
		SocialAccountID: 1,
		Platform:        platform.YouTube,
		Title:           "Demo",
		Description:     "A demo video",
		Visibility:      models.VisibilityPublic,
		ContentType:     "video/mp4",
	}
}

func TestInitiateUpload(t *testing.T) {
	ctx := context.Background()
	registry := platform.Registry{platform.YouTube: &fakePlatformClient{}}

	setup := func(t *testing.T) (*fakeAccountRepo, *fakePostRepo, *fakeStorage, service.UploadService) {
		accounts := newFakeAccountRepo()
		posts := newFakePostRepo()
		storage := &fakeStorage{}
		seedAccount(t, accounts, time.Now().Add(time.Hour))
		svc := service.NewUploadService(testConfig(), posts, accounts, registry, storage)
		return accounts, posts, storage, svc
	}

	t.Run("creates a draft and a presigned target", func(t *testing.T) {
		_, posts, storage, svc := setup(t)

		session, err := svc.InitiateUpload(ctx, 1, uploadRequest())
		require.NoError(t, err)
		require.NotEmpty(t, session.PostID)
		assert.Contains(t, session.URL, "https://storage.example/upload/")

		post, err := posts.GetByID(ctx, session.PostID)
		require.NoError(t, err)
		require.NotNil(t, post)
		assert.Equal(t, models.PostStatusDraft, post.Status)
		assert.Equal(t, "Demo", post.Title)
		assert.Equal(t, platform.YouTube, post.Platform)
		require.Len(t, storage.uploadKeys, 1)
		assert.Equal(t, post.StorageKey, storage.uploadKeys[0])
	})

	t.Run("post ids are unique across sessions", func(t *testing.T) {
		_, _, _, svc := setup(t)

		first, err := svc.InitiateUpload(ctx, 1, uploadRequest())
		require.NoError(t, err)
		second, err := svc.InitiateUpload(ctx, 1, uploadRequest())
		require.NoError(t, err)
		assert.NotEqual(t, first.PostID, second.PostID)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, _, _, svc := setup(t)

		req := uploadRequest()
		req.Title = "  "
		_, err := svc.InitiateUpload(ctx, 1, req)
		require.Error(t, err)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})

	t.Run("rejects non-video content type", func(t *testing.T) {
		_, _, _, svc := setup(t)

		req := uploadRequest()
		req.ContentType = "image/png"
		_, err := svc.InitiateUpload(ctx, 1, req)
		require.Error(t, err)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})

	t.Run("rejects unknown visibility", func(t *testing.T) {
		_, _, _, svc := setup(t)

		req := uploadRequest()
		req.Visibility = "friends-only"
		_, err := svc.InitiateUpload(ctx, 1, req)
		require.Error(t, err)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})

	t.Run("rejects unsupported platform", func(t *testing.T) {
		_, _, _, svc := setup(t)

		req := uploadRequest()
		req.Platform = "myspace"
		_, err := svc.InitiateUpload(ctx, 1, req)
		require.Error(t, err)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})

	t.Run("rejects an account of another workspace", func(t *testing.T) {
		_, _, _, svc := setup(t)

		_, err := svc.InitiateUpload(ctx, 99, uploadRequest())
		require.Error(t, err)
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	})

	t.Run("rejects a disconnected account", func(t *testing.T) {
		accounts, _, _, svc := setup(t)
		require.NoError(t, accounts.SetStatus(ctx, 1, models.AccountStatusRevoked))

		_, err := svc.InitiateUpload(ctx, 1, uploadRequest())
		require.Error(t, err)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})
}
