package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/postbridge/postbridge/internal/models"
	"github.com/postbridge/postbridge/internal/repository"
	"github.com/postbridge/postbridge/internal/service"
)

// TokenRefreshJob proactively refreshes tokens expiring soon, so publish
// jobs rarely pay the refresh round-trip themselves. Refreshes go through
// the same per-account single-flight path as on-demand refreshes.
type TokenRefreshJob struct {
	sr     repository.SocialAccountRepository
	tokens service.TokenService
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, tokens service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:     sr,
		tokens: tokens,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	deadline := time.Now().Add(30 * time.Minute)
	accounts, err := c.sr.ListExpiringBefore(ctx, deadline)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.tokens.RefreshAccount(ctx, acc); err != nil {
				slog.Info("unable to refresh token", "account_id", acc.ID, "platform", acc.Platform, "err", err.Error())
			}
		}(acc)
	}

	wg.Wait()
}
