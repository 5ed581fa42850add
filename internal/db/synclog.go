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

var ErrSyncLogNotFound = errors.New("sync log entry not found")

// SyncLogStore keeps the latest completed sync attempt per
// (account, data type) pair.
type SyncLogStore struct {
	db *gorm.DB
}

func NewSyncLogStore(db *gorm.DB) *SyncLogStore {
	return &SyncLogStore{db: db}
}

// Get returns the latest attempt for the pair, ErrSyncLogNotFound when
// the pair has never completed a sync.
func (s *SyncLogStore) Get(ctx context.Context, accountID, dataType string) (*models.SyncLogEntry, error) {
	var entry models.SyncLogEntry
	result := s.db.WithContext(ctx).
		First(&entry, "account_id = ? AND data_type = ?", accountID, dataType)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSyncLogNotFound
		}
		return nil, fmt.Errorf("get sync log: %w", result.Error)
	}
	return &entry, nil
}

// Upsert replaces the single row for the pair. Last writer wins; the
// row is a point-in-time snapshot, not a ledger.
func (s *SyncLogStore) Upsert(ctx context.Context, accountID, dataType, status string, recordsSynced int, errorMessage string) error {
	entry := models.SyncLogEntry{
		AccountID:     accountID,
		DataType:      dataType,
		LastSyncAt:    time.Now(),
		Status:        status,
		RecordsSynced: recordsSynced,
		ErrorMessage:  errorMessage,
		UpdatedAt:     time.Now(),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "data_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_sync_at", "status", "records_synced", "error_message", "updated_at",
		}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("upsert sync log: %w", result.Error)
	}
	return nil
}

// ListByAccount returns all per-type entries for one account.
func (s *SyncLogStore) ListByAccount(ctx context.Context, accountID string) ([]models.SyncLogEntry, error) {
	var entries []models.SyncLogEntry
	result := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("data_type ASC").
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("list sync log: %w", result.Error)
	}
	return entries, nil
}
