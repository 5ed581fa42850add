package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vitalsync/vitalsync/internal/db/models"
)

// CacheStore persists synced metric payloads per (account, data type).
type CacheStore struct {
	db *gorm.DB
}

func NewCacheStore(db *gorm.DB) *CacheStore {
	return &CacheStore{db: db}
}

// InsertBatch appends a batch of records fetched in one sync pass.
func (s *CacheStore) InsertBatch(ctx context.Context, records []models.CachedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("insert cached records: %w", err)
	}
	return nil
}

// Latest returns the newest records first, bounded by limit.
func (s *CacheStore) Latest(ctx context.Context, accountID, dataType string, limit int) ([]models.CachedRecord, error) {
	var records []models.CachedRecord
	q := s.db.WithContext(ctx).
		Where("account_id = ? AND data_type = ?", accountID, dataType).
		Order("fetched_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query cached records: %w", err)
	}
	return records, nil
}

// Count returns how many records are cached for the pair.
func (s *CacheStore) Count(ctx context.Context, accountID, dataType string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.CachedRecord{}).
		Where("account_id = ? AND data_type = ?", accountID, dataType).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count cached records: %w", err)
	}
	return n, nil
}

// Prune keeps only the newest keep records for the pair.
func (s *CacheStore) Prune(ctx context.Context, accountID, dataType string, keep int) error {
	if keep <= 0 {
		return nil
	}
	// Delete everything older than the keep-th newest row.
	sub := s.db.Model(&models.CachedRecord{}).
		Select("id").
		Where("account_id = ? AND data_type = ?", accountID, dataType).
		Order("fetched_at DESC, id DESC").
		Limit(keep)
	result := s.db.WithContext(ctx).
		Where("account_id = ? AND data_type = ? AND id NOT IN (?)", accountID, dataType, sub).
		Delete(&models.CachedRecord{})
	if result.Error != nil {
		return fmt.Errorf("prune cached records: %w", result.Error)
	}
	return nil
}
