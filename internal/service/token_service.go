package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cfg "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/models"
	"github.com/postbridge/postbridge/internal/platform"
	"github.com/postbridge/postbridge/internal/repository"
	"github.com/postbridge/postbridge/pkg/utils"
)

// tokenSafetyMargin: a token expiring inside this window counts as expired,
// so a publish call never starts with a token about to die mid-upload.
const tokenSafetyMargin = 60 * time.Second

type TokenService interface {
	// GetValidAccessToken returns a decrypted access token guaranteed to
	// outlive the safety margin, refreshing it first when needed. At most one
	// refresh per account is in flight at a time.
	GetValidAccessToken(ctx context.Context, accountID int64) (string, error)
	// RefreshAccount force-refreshes one account, used by the expiry sweep.
	RefreshAccount(ctx context.Context, acc *models.SocialAccount) error
}

type tokenService struct {
	cfg      cfg.Config
	sa       repository.SocialAccountRepository
	registry platform.Registry

	// one mutex per account id, created lazily
	locks sync.Map
}

func NewTokenService(cfg cfg.Config, sa repository.SocialAccountRepository, registry platform.Registry) TokenService {
	return &tokenService{
		cfg:      cfg,
		sa:       sa,
		registry: registry,
	}
}

func (s *tokenService) GetValidAccessToken(ctx context.Context, accountID int64) (string, error) {
	acc, err := s.loadUsableAccount(ctx, accountID)
	if err != nil {
		return "", err
	}

	if !s.needsRefresh(acc) {
		return utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent caller may have refreshed while
	// this one was waiting.
	acc, err = s.loadUsableAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !s.needsRefresh(acc) {
		return utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	}

	if err := s.refreshLocked(ctx, acc); err != nil {
		return "", err
	}

	acc, err = s.loadUsableAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	return utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
}

func (s *tokenService) RefreshAccount(ctx context.Context, acc *models.SocialAccount) error {
	lock := s.accountLock(acc.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.loadUsableAccount(ctx, acc.ID)
	if err != nil {
		return err
	}
	if !s.needsRefresh(current) {
		return nil
	}
	return s.refreshLocked(ctx, current)
}

// refreshLocked performs the platform refresh call and commits the new token
// conditionally on the token that triggered the refresh. Caller must hold the
// account lock.
func (s *tokenService) refreshLocked(ctx context.Context, acc *models.SocialAccount) error {
	client, err := s.registry.ForPlatform(acc.Platform)
	if err != nil {
		return err
	}

	refreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	refreshCtx, cancel := context.WithTimeout(ctx, s.cfg.Queue.RefreshTimeout)
	defer cancel()

	token, err := client.RefreshToken(refreshCtx, refreshToken)
	if err != nil {
		if apperror.IsKind(err, apperror.KindReauthRequired) {
			// Terminal: the refresh token is dead. Flag the account so nothing
			// retries this blindly.
			if stErr := s.sa.SetStatus(ctx, acc.ID, models.AccountStatusExpired); stErr != nil {
				slog.Info(stErr.Error())
			}
		}
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	var encryptedRefreshToken string
	if token.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	update := models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: token.ExpiresAt,
	}

	err = s.sa.SetToken(ctx, acc.ID, acc.AccessToken, &update)
	if errors.Is(err, repository.ErrStaleToken) {
		// A fresher token is already stored; this refresh simply lost.
		slog.Info("token refresh superseded by a newer one", "account_id", acc.ID)
		return nil
	}
	return err
}

func (s *tokenService) loadUsableAccount(ctx context.Context, accountID int64) (*models.SocialAccount, error) {
	acc, err := s.sa.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "social account %d not found", accountID)
	}

	switch acc.Status {
	case models.AccountStatusConnected:
		return acc, nil
	case models.AccountStatusExpired:
		return nil, apperror.Newf(apperror.KindReauthRequired, "account %d expired, reconnect required", accountID)
	case models.AccountStatusRevoked:
		return nil, apperror.Newf(apperror.KindReauthRequired, "account %d disconnected, reconnect required", accountID)
	default:
		return nil, apperror.Newf(apperror.KindReauthRequired, "account %d in unusable state %q", accountID, acc.Status)
	}
}

func (s *tokenService) needsRefresh(acc *models.SocialAccount) bool {
	return time.Until(acc.TokenExpiresAt) <= tokenSafetyMargin
}

func (s *tokenService) accountLock(accountID int64) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(accountID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
