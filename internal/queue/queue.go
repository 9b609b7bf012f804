// Package queue owns the durable video-publish channel: enqueueing jobs,
// consuming them, and the retry/backoff policy. Delivery is at-least-once;
// the worker is idempotent keyed by post id.
package queue

import (
	"context"
)

const TaskTypeVideoPublish = "video-publish"

// VideoPublishPayload is the whole job: everything else is re-read from
// storage on delivery, so a stale payload can never overwrite newer state.
type VideoPublishPayload struct {
	VideoPostID string `json:"video_post_id"`
	Platform    string `json:"platform"`
}

// Enqueuer abstracts the queue vendor so services and tests never touch
// asynq directly.
type Enqueuer interface {
	EnqueueVideoPublish(ctx context.Context, payload VideoPublishPayload) error
}
