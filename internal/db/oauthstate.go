package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vitalsync/vitalsync/internal/db/models"
)

var ErrStateNotFound = errors.New("oauth state not found or expired")

// OAuthStateStore persists pending PKCE authorizations. Entries are
// single-use and expired rows are treated as absent.
type OAuthStateStore struct {
	db *gorm.DB
}

func NewOAuthStateStore(db *gorm.DB) *OAuthStateStore {
	return &OAuthStateStore{db: db}
}

// Put stores a fresh pending authorization.
func (s *OAuthStateStore) Put(ctx context.Context, state *models.OAuthState) error {
	if err := s.db.WithContext(ctx).Create(state).Error; err != nil {
		return fmt.Errorf("put oauth state: %w", err)
	}
	return nil
}

// Consume looks up an unexpired state and deletes it in the same
// transaction, so a state token can never be replayed.
func (s *OAuthStateStore) Consume(ctx context.Context, stateToken string) (*models.OAuthState, error) {
	var state models.OAuthState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("state = ? AND expires_at > ?", stateToken, time.Now()).First(&state)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrStateNotFound
			}
			return result.Error
		}
		return tx.Delete(&models.OAuthState{}, state.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	return &state, nil
}

// PruneExpired removes stale pending authorizations.
func (s *OAuthStateStore) PruneExpired(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.OAuthState{})
	if result.Error != nil {
		return fmt.Errorf("prune oauth states: %w", result.Error)
	}
	return nil
}
