package models

import "time"

// UserSetting stores per-user Anthropic API configuration.
// The API key is held only as AES-GCM ciphertext; the plaintext never
// touches the database or the logs.
type UserSetting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user, one settings row per user.

	APIKeyCiphertext []byte `gorm:"type:bytea"`         // Sealed API key (nonce || ciphertext), empty when unset.
	SelectedModel    string `gorm:"type:text;not null"` // Chosen model identifier.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
