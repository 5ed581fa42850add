package models

import "time"

// OAuthState holds one pending PKCE authorization. Rows are single-use:
// consumed at callback and treated as absent once ExpiresAt has passed.
type OAuthState struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	State        string `gorm:"size:256;uniqueIndex"`
	CodeVerifier string `gorm:"size:256"`
	AccountID    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
