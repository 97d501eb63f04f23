package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/innerstack/chatdesk/internal/models"
	internalsettings "github.com/innerstack/chatdesk/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations and seeds the default site settings.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.UserSetting{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return ensureDefaultSettings(conn)
}

// ensureDefaultSettings seeds site settings that the app expects to exist.
func ensureDefaultSettings(conn *gorm.DB) error {
	if errEnsure := ensureStringSetting(
		conn,
		internalsettings.SiteNameKey,
		internalsettings.DefaultSiteName,
	); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureBoolSetting(
		conn,
		internalsettings.HistoryRedisEnabledKey,
		internalsettings.DefaultHistoryRedisEnabled,
	); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureStringSetting(
		conn,
		internalsettings.HistoryRedisAddrKey,
		"",
	); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureStringSetting(
		conn,
		internalsettings.HistoryRedisPrefixKey,
		internalsettings.DefaultHistoryRedisPrefix,
	); errEnsure != nil {
		return errEnsure
	}
	return nil
}

// ensureStringSetting ensures a string setting exists and defaults when empty.
func ensureStringSetting(conn *gorm.DB, key string, value string) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureSetting(conn, key, json.RawMessage(payload))
}

// ensureBoolSetting ensures a boolean setting exists and defaults when empty.
func ensureBoolSetting(conn *gorm.DB, key string, value bool) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureSetting(conn, key, json.RawMessage(payload))
}

// ensureSetting inserts the setting or backfills an empty stored value.
func ensureSetting(conn *gorm.DB, key string, rawValue json.RawMessage) error {
	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     []byte(rawValue),
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
