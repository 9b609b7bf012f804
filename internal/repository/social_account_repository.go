package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/postbridge/postbridge/internal/models"
)

// ErrStaleToken is returned by SetToken when the conditional update matched
// no row: another refresh already committed a newer token.
var ErrStaleToken = errors.New("stale token update; a newer token is already stored")

type SocialAccountRepository interface {
	Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error)
	ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.SocialAccount, error)
	SetToken(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error
	SetStatus(ctx context.Context, accountID int64, status string) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

// Upsert inserts the account or, on the (workspace_id, platform,
// platform_user_id) unique constraint, updates tokens and profile of the
// existing row. Re-authorizing an already connected account is idempotent.
func (r *socialAccountRepository) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	query := `
		INSERT INTO social_accounts(
			workspace_id,
			platform,
			platform_user_id,
			account_name,
			access_token,
			refresh_token,
			token_expires_at,
			scope,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workspace_id, platform, platform_user_id) DO UPDATE
		SET account_name = EXCLUDED.account_name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			scope = EXCLUDED.scope,
			status = EXCLUDED.status,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		sa.WorkspaceID,
		sa.Platform,
		sa.PlatformUserID,
		sa.AccountName,
		sa.AccessToken,
		sa.RefreshToken,
		sa.TokenExpiresAt,
		sa.Scope,
		sa.Status,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `
		SELECT id, workspace_id, platform, platform_user_id, account_name,
			access_token, refresh_token, token_expires_at, scope, status,
			created_at, updated_at
		FROM social_accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.WorkspaceID, &sa.Platform, &sa.PlatformUserID,
		&sa.AccountName, &sa.AccessToken, &sa.RefreshToken, &sa.TokenExpiresAt,
		&sa.Scope, &sa.Status, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &sa, nil
}

func (r *socialAccountRepository) ListByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	query := `
		SELECT id, workspace_id, platform, platform_user_id, account_name,
			token_expires_at, scope, status, created_at, updated_at
		FROM social_accounts WHERE workspace_id = $1`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		var sa models.SocialAccount
		err := rows.Scan(&sa.ID, &sa.WorkspaceID, &sa.Platform, &sa.PlatformUserID,
			&sa.AccountName, &sa.TokenExpiresAt, &sa.Scope, &sa.Status,
			&sa.CreatedAt, &sa.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &sa)
	}
	return accounts, rows.Err()
}

func (r *socialAccountRepository) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.SocialAccount, error) {
	query := `
		SELECT id, workspace_id, platform, platform_user_id, account_name,
			access_token, refresh_token, token_expires_at, scope, status,
			created_at, updated_at
		FROM social_accounts
		WHERE status = $1 AND token_expires_at < $2`
	rows, err := r.db.QueryContext(ctx, query, models.AccountStatusConnected, deadline)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		var sa models.SocialAccount
		err := rows.Scan(&sa.ID, &sa.WorkspaceID, &sa.Platform, &sa.PlatformUserID,
			&sa.AccountName, &sa.AccessToken, &sa.RefreshToken, &sa.TokenExpiresAt,
			&sa.Scope, &sa.Status, &sa.CreatedAt, &sa.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &sa)
	}
	return accounts, rows.Err()
}

// SetToken commits a refreshed token only if the stored access token is still
// oldAccessToken. A refresh that lost the race gets ErrStaleToken instead of
// clobbering the fresher token.
func (r *socialAccountRepository) SetToken(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, accountID, oldAccessToken, sa.AccessToken, sa.RefreshToken, sa.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrStaleToken
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialAccountRepository) SetStatus(ctx context.Context, accountID int64, status string) error {
	query := `UPDATE social_accounts SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
