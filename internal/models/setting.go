package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting is a site-wide key/value configuration row with a JSON value.
type Setting struct {
	Key   string         `gorm:"primaryKey;type:varchar(128)"` // Setting key.
	Value datatypes.JSON `gorm:"type:jsonb"`                   // JSON-encoded value.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
