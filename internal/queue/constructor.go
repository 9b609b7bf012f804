package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/repository"
)

// AsynqEnqueuer pushes publish jobs onto the shared Redis-backed queue.
type AsynqEnqueuer struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

func NewAsynqEnqueuer(client *asynq.Client, maxRetry int, timeout time.Duration) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client, maxRetry: maxRetry, timeout: timeout}
}

func (e *AsynqEnqueuer) EnqueueVideoPublish(ctx context.Context, payload VideoPublishPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeVideoPublish, taskPayload)

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(e.maxRetry),
		asynq.Timeout(e.timeout),
	)
	if err != nil {
		return err
	}

	slog.Info("publish job enqueued", "post_id", payload.VideoPostID, "platform", payload.Platform)
	return nil
}

// Publisher is the write side of the pipeline: flip the post to uploading,
// then push the job. The order matters: a job must never exist for a post
// that is not yet marked uploading.
type Publisher struct {
	posts repository.SocialPostRepository
	enq   Enqueuer
}

func NewPublisher(posts repository.SocialPostRepository, enq Enqueuer) *Publisher {
	return &Publisher{posts: posts, enq: enq}
}

func (p *Publisher) EnqueuePublish(ctx context.Context, postID, platformName string) error {
	post, err := p.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return apperror.Newf(apperror.KindNotFound, "post %s not found", postID)
	}
	if post.Platform != platformName {
		return apperror.NewField(apperror.KindValidation, "platform does not match the post", "platform")
	}

	moved, err := p.posts.MarkUploading(ctx, postID)
	if err != nil {
		return err
	}
	if !moved {
		return apperror.Newf(apperror.KindConflict, "post %s is %s, only drafts can be published", postID, post.Status)
	}

	err = p.enq.EnqueueVideoPublish(ctx, VideoPublishPayload{
		VideoPostID: postID,
		Platform:    platformName,
	})
	if err != nil {
		// The post stays uploading; an operator re-enqueue picks it up.
		slog.Error("enqueue after status flip failed", "post_id", postID, "err", err.Error())
		return err
	}

	return nil
}
