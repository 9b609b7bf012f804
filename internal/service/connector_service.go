package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	cfg "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/internal/apperror"
	"github.com/postbridge/postbridge/internal/models"
	"github.com/postbridge/postbridge/internal/platform"
	"github.com/postbridge/postbridge/internal/repository"
	"github.com/postbridge/postbridge/pkg/utils"
)

const stateTokenTTL = 15 * time.Minute

type ConnectorService interface {
	InitiateConnection(ctx context.Context, workspaceID int64, platformName string) (string, error)
	CompleteConnection(ctx context.Context, code, state string) (*models.SocialAccount, error)
	Disconnect(ctx context.Context, workspaceID, accountID int64) error
	List(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error)
}

type connectorService struct {
	cfg      cfg.Config
	sa       repository.SocialAccountRepository
	registry platform.Registry
}

func NewConnectorService(cfg cfg.Config, sa repository.SocialAccountRepository, registry platform.Registry) ConnectorService {
	return &connectorService{
		cfg:      cfg,
		sa:       sa,
		registry: registry,
	}
}

// InitiateConnection builds the platform's authorize URL with a signed state
// token binding the flow to the workspace. Nothing is persisted yet.
func (s *connectorService) InitiateConnection(ctx context.Context, workspaceID int64, platformName string) (string, error) {
	client, err := s.registry.ForPlatform(platformName)
	if err != nil {
		return "", err
	}

	state, err := utils.GenerateStateToken(s.cfg.SecretKey, strconv.FormatInt(workspaceID, 10), platformName, stateTokenTTL)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return client.AuthCodeURL(state), nil
}

// CompleteConnection verifies the state, exchanges the code and upserts the
// account. Tokens touch the database only after the remote profile fetch
// succeeded, so a half-connected row can never exist. Re-authorizing an
// existing account updates it in place.
func (s *connectorService) CompleteConnection(ctx context.Context, code, state string) (*models.SocialAccount, error) {
	claims, err := utils.ValidateStateToken(s.cfg.SecretKey, state)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "invalid oauth state", err)
	}

	workspaceID, err := strconv.ParseInt(claims.WorkspaceID, 10, 64)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "invalid workspace in oauth state", err)
	}

	client, err := s.registry.ForPlatform(claims.Platform)
	if err != nil {
		return nil, err
	}

	token, profile, err := client.ExchangeCode(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	encryptedRefreshToken, err := utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	account := &models.SocialAccount{
		WorkspaceID:    workspaceID,
		Platform:       claims.Platform,
		PlatformUserID: profile.UserID,
		AccountName:    profile.Name,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: token.ExpiresAt,
		Scope:          token.Scope,
		Status:         models.AccountStatusConnected,
	}

	id, err := s.sa.Upsert(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("persisting social account: %w", err)
	}
	account.ID = id

	return account, nil
}

// Disconnect flips the account to revoked and keeps the row for audit.
// Revoking the token with the remote platform is best-effort: a failure is
// logged, never fatal.
func (s *connectorService) Disconnect(ctx context.Context, workspaceID, accountID int64) error {
	acc, err := s.sa.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc == nil || acc.WorkspaceID != workspaceID {
		return apperror.Newf(apperror.KindNotFound, "social account %d not found", accountID)
	}

	if client, err := s.registry.ForPlatform(acc.Platform); err == nil {
		if accessToken, decErr := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey)); decErr == nil {
			if revErr := client.Revoke(ctx, accessToken); revErr != nil {
				slog.Info("remote token revoke failed", "account_id", accountID, "err", revErr.Error())
			}
		}
	}

	return s.sa.SetStatus(ctx, accountID, models.AccountStatusRevoked)
}

func (s *connectorService) List(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	if workspaceID == 0 {
		return nil, apperror.New(apperror.KindValidation, "workspace id is not valid")
	}

	accounts, err := s.sa.ListByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing social accounts: %w", err)
	}

	return accounts, nil
}
