package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vitalsync/vitalsync/internal/db/models"
)

var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore persists OAuth credentials, one row per linked account.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get returns the credential for an account regardless of active state.
func (s *CredentialStore) Get(ctx context.Context, accountID string) (*models.Credential, error) {
	var cred models.Credential
	result := s.db.WithContext(ctx).First(&cred, "account_id = ?", accountID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential: %w", result.Error)
	}
	return &cred, nil
}

// GetActive returns the credential only if the account is still linked.
func (s *CredentialStore) GetActive(ctx context.Context, accountID string) (*models.Credential, error) {
	var cred models.Credential
	result := s.db.WithContext(ctx).First(&cred, "account_id = ? AND active = ?", accountID, true)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get active credential: %w", result.Error)
	}
	return &cred, nil
}

// Upsert inserts or replaces the credential keyed by account ID.
func (s *CredentialStore) Upsert(ctx context.Context, cred *models.Credential) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_user_id", "access_token", "refresh_token",
			"expires_at", "scopes", "active", "updated_at",
		}),
	}).Create(cred)
	if result.Error != nil {
		return fmt.Errorf("upsert credential: %w", result.Error)
	}
	return nil
}

// UpdateTokens replaces the token fields after a refresh.
func (s *CredentialStore) UpdateTokens(ctx context.Context, accountID, accessToken, refreshToken string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"active":        true,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update tokens: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// Deactivate marks the account as requiring a re-link.
func (s *CredentialStore) Deactivate(ctx context.Context, accountID string) error {
	result := s.db.WithContext(ctx).Model(&models.Credential{}).
		Where("account_id = ?", accountID).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("deactivate credential: %w", result.Error)
	}
	return nil
}
