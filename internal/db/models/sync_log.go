package models

import "time"

// Sync attempt outcomes.
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusPartial = "partial"
)

// SyncLogEntry records the latest completed sync attempt per
// (account, data type) pair. Exactly one row per pair, upserted.
type SyncLogEntry struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	AccountID     string `gorm:"uniqueIndex:idx_account_datatype"`
	DataType      string `gorm:"uniqueIndex:idx_account_datatype"`
	LastSyncAt    time.Time
	Status        string
	RecordsSynced int
	ErrorMessage  string
	UpdatedAt     time.Time
}
