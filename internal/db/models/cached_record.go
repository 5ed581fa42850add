package models

import (
	"time"

	"gorm.io/datatypes"
)

// CachedRecord holds one synced metric payload. Append-mostly; the
// cache store prunes each (account, data type) group to the newest N.
type CachedRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	AccountID string `gorm:"index:idx_cache_account_type"`
	DataType  string `gorm:"index:idx_cache_account_type"`
	Payload   datatypes.JSON
	FetchedAt time.Time `gorm:"index"`
}
