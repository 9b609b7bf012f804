package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/h2non/filetype"
	cfg "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/models"
	"github.com/postbridge/postbridge/internal/platform"
	"github.com/postbridge/postbridge/internal/repository"
	"github.com/postbridge/postbridge/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type UploadService interface {
	// InitiateUpload creates a draft post and returns a presigned upload URL.
	// The returned post id is the stable handle for every later step.
	InitiateUpload(ctx context.Context, workspaceID int64, req *transfer.UploadRequest) (*transfer.UploadSession, error)
	PostInfo(ctx context.Context, workspaceID int64, postID string) (*models.SocialPost, error)
	List(ctx context.Context, workspaceID int64) ([]*models.SocialPost, error)
}

type uploadService struct {
	cfg      cfg.Config
	posts    repository.SocialPostRepository
	accounts repository.SocialAccountRepository
	registry platform.Registry
	storage  Storage
}

func NewUploadService(
	cfg cfg.Config,
	posts repository.SocialPostRepository,
	accounts repository.SocialAccountRepository,
	registry platform.Registry,
	storage Storage) UploadService {
	return &uploadService{
		cfg:      cfg,
		posts:    posts,
		accounts: accounts,
		registry: registry,
		storage:  storage,
	}
}

func (s *uploadService) InitiateUpload(ctx context.Context, workspaceID int64, req *transfer.UploadRequest) (*transfer.UploadSession, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	acc, err := s.accounts.GetByID(ctx, req.SocialAccountID)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.WorkspaceID != workspaceID {
		return nil, apperror.Newf(apperror.KindNotFound, "social account %d not found", req.SocialAccountID)
	}
	if acc.Status != models.AccountStatusConnected {
		return nil, apperror.Newf(apperror.KindValidation, "account %d is %s, reconnect before uploading", acc.ID, acc.Status)
	}
	if acc.Platform != req.Platform {
		return nil, apperror.NewField(apperror.KindValidation, "account does not belong to the requested platform", "platform")
	}

	postID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	storageKey := fmt.Sprintf("videos/%d/%s", workspaceID, postID)

	post := &models.SocialPost{
		ID:              postID,
		WorkspaceID:     workspaceID,
		SocialAccountID: acc.ID,
		Platform:        req.Platform,
		Title:           req.Title,
		Description:     req.Description,
		Visibility:      req.Visibility,
		ContentType:     req.ContentType,
		StorageKey:      storageKey,
		Status:          models.PostStatusDraft,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("creating draft post: %w", err)
	}

	uploadURL, err := s.storage.PresignUpload(ctx, storageKey, req.ContentType, s.cfg.PresignTTL)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("presigning upload target: %w", err)
	}

	return &transfer.UploadSession{
		URL:    uploadURL,
		PostID: postID,
	}, nil
}

func (s *uploadService) PostInfo(ctx context.Context, workspaceID int64, postID string) (*models.SocialPost, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil || post.WorkspaceID != workspaceID {
		return nil, apperror.Newf(apperror.KindNotFound, "post %s not found", postID)
	}
	return post, nil
}

func (s *uploadService) List(ctx context.Context, workspaceID int64) ([]*models.SocialPost, error) {
	return s.posts.ListByWorkspaceID(ctx, workspaceID)
}

func (s *uploadService) validate(req *transfer.UploadRequest) error {
	if req == nil {
		return apperror.New(apperror.KindValidation, "upload request is empty")
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperror.NewField(apperror.KindValidation, "title must not be empty", "title")
	}
	if !s.registry.Supported(req.Platform) {
		return apperror.NewField(apperror.KindValidation, fmt.Sprintf("unsupported platform %q", req.Platform), "platform")
	}

	switch req.Visibility {
	case models.VisibilityPublic, models.VisibilityPrivate, models.VisibilityUnlisted:
	default:
		return apperror.NewField(apperror.KindValidation, fmt.Sprintf("unknown visibility %q", req.Visibility), "visibility")
	}

	if !strings.HasPrefix(req.ContentType, "video/") || !filetype.IsMIMESupported(req.ContentType) {
		return apperror.NewField(apperror.KindValidation, fmt.Sprintf("unsupported content type %q", req.ContentType), "content_type")
	}

	return nil
}
