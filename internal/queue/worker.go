package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	cfg "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/models"
	"github.com/postbridge/postbridge/internal/platform"
	"github.com/postbridge/postbridge/internal/repository"
	"github.com/postbridge/postbridge/internal/service"
)

// Worker consumes video-publish jobs. Returning an error redelivers the job
// with backoff; returning nil acknowledges it. Terminal failures are written
// onto the post and acknowledged so they are never redelivered.
type Worker struct {
	cfg      cfg.Config
	posts    repository.SocialPostRepository
	tokens   service.TokenService
	registry platform.Registry
	storage  service.Storage
}

func NewWorker(
	cfg cfg.Config,
	posts repository.SocialPostRepository,
	tokens service.TokenService,
	registry platform.Registry,
	storage service.Storage) *Worker {
	return &Worker{
		cfg:      cfg,
		posts:    posts,
		tokens:   tokens,
		registry: registry,
		storage:  storage,
	}
}

func (w *Worker) HandleVideoPublishTask(ctx context.Context, task *asynq.Task) error {
	var payload VideoPublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A payload that does not parse now never will.
		return fmt.Errorf("unmarshalling publish payload: %v: %w", err, asynq.SkipRetry)
	}

	return w.process(ctx, payload)
}

func (w *Worker) process(ctx context.Context, payload VideoPublishPayload) error {
	post, err := w.posts.GetByID(ctx, payload.VideoPostID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("publish job for missing post, dropping", "post_id", payload.VideoPostID)
		return nil
	}
	if post.IsTerminal() {
		// Duplicate delivery after the post resolved: ack without touching
		// the platform.
		slog.Info("publish job for resolved post, dropping", "post_id", post.ID, "status", post.Status)
		return nil
	}
	if post.Status != models.PostStatusUploading {
		slog.Info("publish job for post not marked uploading, dropping", "post_id", post.ID, "status", post.Status)
		return nil
	}

	accessToken, err := w.tokens.GetValidAccessToken(ctx, post.SocialAccountID)
	if err != nil {
		return w.resolveError(ctx, post, err)
	}

	client, err := w.registry.ForPlatform(post.Platform)
	if err != nil {
		return w.resolveError(ctx, post, err)
	}

	media, err := w.storage.Open(ctx, post.StorageKey)
	if err != nil {
		// Storage read failures are treated as transient.
		return err
	}
	defer media.Close()

	mediaURL, err := w.storage.PresignDownload(ctx, post.StorageKey, w.cfg.PresignTTL)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, w.cfg.Queue.PublishTimeout)
	defer cancel()

	remote, err := client.Publish(publishCtx, accessToken, platform.PublishRequest{
		Title:       post.Title,
		Description: post.Description,
		Visibility:  post.Visibility,
		ContentType: post.ContentType,
		Media:       media,
		MediaURL:    mediaURL,
	})
	if err != nil {
		return w.resolveError(ctx, post, err)
	}

	moved, err := w.posts.MarkPublished(ctx, post.ID, remote.ID, remote.URL, time.Now())
	if err != nil {
		return err
	}
	if !moved {
		// Another delivery resolved the post first; the platform call was
		// already made, nothing more to record.
		slog.Info("post already resolved by a concurrent delivery", "post_id", post.ID)
		return nil
	}

	slog.Info("post published", "post_id", post.ID, "platform", post.Platform, "platform_post_id", remote.ID)
	return nil
}

// resolveError applies the taxonomy: transient errors propagate so the queue
// retries; terminal ones are written to the post and acknowledged. A dead
// refresh token additionally fails every other in-flight post of the account.
func (w *Worker) resolveError(ctx context.Context, post *models.SocialPost, err error) error {
	kind := apperror.KindOf(err)

	if apperror.IsRetryable(err) {
		slog.Info("transient publish failure, leaving job for retry", "post_id", post.ID, "err", err.Error())
		return err
	}

	message := err.Error()
	if kind == apperror.KindReauthRequired {
		message = "account reconnect required: " + message
		failed, failErr := w.posts.FailUploadingByAccount(ctx, post.SocialAccountID, message)
		if failErr != nil {
			return failErr
		}
		slog.Info("failed pending posts after refresh token death", "account_id", post.SocialAccountID, "count", failed)
		return nil
	}

	if _, failErr := w.posts.MarkFailed(ctx, post.ID, message); failErr != nil {
		return failErr
	}
	slog.Info("post failed terminally", "post_id", post.ID, "kind", kind.String(), "err", message)
	return nil
}
