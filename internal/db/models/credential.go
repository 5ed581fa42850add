package models

import "time"

// Credential stores OAuth tokens for one linked wearable account.
type Credential struct {
	ID             string `gorm:"primaryKey"` // UUID
	AccountID      string `gorm:"uniqueIndex"`
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	Scopes         string // space-joined authorized scopes
	Active         bool   `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
