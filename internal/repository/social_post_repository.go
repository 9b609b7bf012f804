package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postbridge/postbridge/internal/models"
)

// SocialPostRepository persists posts and enforces the monotonic status
// machine at the SQL level: every transition out of a state is a conditional
// UPDATE keyed on the current status, and callers learn from the
// rows-affected count whether they won.
type SocialPostRepository interface {
	Create(ctx context.Context, post *models.SocialPost) error
	GetByID(ctx context.Context, id string) (*models.SocialPost, error)
	ListByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialPost, error)
	MarkUploading(ctx context.Context, id string) (bool, error)
	MarkPublished(ctx context.Context, id, platformPostID, platformURL string, publishedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, errorMessage string) (bool, error)
	FailUploadingByAccount(ctx context.Context, accountID int64, errorMessage string) (int64, error)
}

type socialPostRepository struct {
	db *sql.DB
}

func NewSocialPostRepository(db *sql.DB) SocialPostRepository {
	return &socialPostRepository{db: db}
}

func (r *socialPostRepository) Create(ctx context.Context, post *models.SocialPost) error {
	query := `
		INSERT INTO social_posts (
			id, workspace_id, social_account_id, platform, title, description,
			visibility, content_type, storage_key, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		post.ID,
		post.WorkspaceID,
		post.SocialAccountID,
		post.Platform,
		post.Title,
		post.Description,
		post.Visibility,
		post.ContentType,
		post.StorageKey,
		post.Status,
	)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialPostRepository) GetByID(ctx context.Context, id string) (*models.SocialPost, error) {
	query := `
		SELECT id, workspace_id, social_account_id, platform, title, description,
			visibility, content_type, storage_key, platform_post_id, platform_url,
			status, error_message, published_at, created_at, updated_at
		FROM social_posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var post models.SocialPost
	err := row.Scan(&post.ID, &post.WorkspaceID, &post.SocialAccountID,
		&post.Platform, &post.Title, &post.Description, &post.Visibility,
		&post.ContentType, &post.StorageKey, &post.PlatformPostID,
		&post.PlatformURL, &post.Status, &post.ErrorMessage, &post.PublishedAt,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &post, nil
}

func (r *socialPostRepository) ListByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialPost, error) {
	query := `
		SELECT id, workspace_id, social_account_id, platform, title, description,
			visibility, content_type, storage_key, platform_post_id, platform_url,
			status, error_message, published_at, created_at, updated_at
		FROM social_posts WHERE workspace_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.SocialPost
	for rows.Next() {
		var post models.SocialPost
		err := rows.Scan(&post.ID, &post.WorkspaceID, &post.SocialAccountID,
			&post.Platform, &post.Title, &post.Description, &post.Visibility,
			&post.ContentType, &post.StorageKey, &post.PlatformPostID,
			&post.PlatformURL, &post.Status, &post.ErrorMessage, &post.PublishedAt,
			&post.CreatedAt, &post.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}

// MarkUploading transitions draft -> uploading. Returns false when the post
// was not in draft, so the caller must not enqueue a job for it.
func (r *socialPostRepository) MarkUploading(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE social_posts
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusUploading, id, models.PostStatusDraft)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return oneRowAffected(result)
}

// MarkPublished transitions uploading -> published. A post already resolved
// by another delivery is left untouched and false is returned.
func (r *socialPostRepository) MarkPublished(ctx context.Context, id, platformPostID, platformURL string, publishedAt time.Time) (bool, error) {
	query := `
		UPDATE social_posts
		SET status = $1,
			platform_post_id = $2,
			platform_url = $3,
			published_at = $4,
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND status = $6
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, platformPostID, platformURL, publishedAt, id, models.PostStatusUploading)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return oneRowAffected(result)
}

func (r *socialPostRepository) MarkFailed(ctx context.Context, id, errorMessage string) (bool, error) {
	query := `
		UPDATE social_posts
		SET status = $1, error_message = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, errorMessage, id, models.PostStatusUploading)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return oneRowAffected(result)
}

// FailUploadingByAccount fails every in-flight post of an account whose
// refresh token died. Their queued jobs then ack as no-ops on delivery.
func (r *socialPostRepository) FailUploadingByAccount(ctx context.Context, accountID int64, errorMessage string) (int64, error) {
	query := `
		UPDATE social_posts
		SET status = $1, error_message = $2, updated_at = CURRENT_TIMESTAMP
		WHERE social_account_id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, errorMessage, accountID, models.PostStatusUploading)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}

func oneRowAffected(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}
