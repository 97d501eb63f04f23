package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/innerstack/chatdesk/internal/models"
	"gorm.io/gorm"
)

// HistoryRedisConfig describes the optional Redis backing for chat history.
type HistoryRedisConfig struct {
	Enabled  bool   // Whether Redis-backed history is on.
	Addr     string // Redis address (host:port).
	Password string // Redis password, empty when unauthenticated.
	DB       int    // Redis database index.
	Prefix   string // Key prefix for history entries.
}

// SiteName returns the configured site name, falling back to the default.
func SiteName(conn *gorm.DB) string {
	name, errGet := getString(conn, SiteNameKey)
	if errGet != nil || strings.TrimSpace(name) == "" {
		return DefaultSiteName
	}
	return name
}

// LoadHistoryRedisConfig reads the chat history Redis settings rows.
func LoadHistoryRedisConfig(conn *gorm.DB) (HistoryRedisConfig, error) {
	cfg := HistoryRedisConfig{Prefix: DefaultHistoryRedisPrefix}

	enabled, errEnabled := getBool(conn, HistoryRedisEnabledKey)
	if errEnabled != nil {
		return cfg, errEnabled
	}
	cfg.Enabled = enabled
	if !enabled {
		return cfg, nil
	}

	addr, errAddr := getString(conn, HistoryRedisAddrKey)
	if errAddr != nil {
		return cfg, errAddr
	}
	cfg.Addr = strings.TrimSpace(addr)

	if password, errPassword := getString(conn, HistoryRedisPasswordKey); errPassword == nil {
		cfg.Password = password
	}
	if dbIndex, errDB := getInt(conn, HistoryRedisDBKey); errDB == nil {
		cfg.DB = dbIndex
	}
	if prefix, errPrefix := getString(conn, HistoryRedisPrefixKey); errPrefix == nil && strings.TrimSpace(prefix) != "" {
		cfg.Prefix = strings.TrimSpace(prefix)
	}
	return cfg, nil
}

// getString reads a string-valued setting row.
func getString(conn *gorm.DB, key string) (string, error) {
	raw, errGet := getRaw(conn, key)
	if errGet != nil {
		return "", errGet
	}
	var value string
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return "", fmt.Errorf("settings: decode %s: %w", key, errUnmarshal)
	}
	return value, nil
}

// getBool reads a boolean-valued setting row, false when absent.
func getBool(conn *gorm.DB, key string) (bool, error) {
	raw, errGet := getRaw(conn, key)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, errGet
	}
	var value bool
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return false, fmt.Errorf("settings: decode %s: %w", key, errUnmarshal)
	}
	return value, nil
}

// getInt reads an integer-valued setting row, zero when absent.
func getInt(conn *gorm.DB, key string) (int, error) {
	raw, errGet := getRaw(conn, key)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errGet
	}
	var value int
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return 0, fmt.Errorf("settings: decode %s: %w", key, errUnmarshal)
	}
	return value, nil
}

// getRaw loads the raw JSON value of a setting row.
func getRaw(conn *gorm.DB, key string) (json.RawMessage, error) {
	var record models.Setting
	if errFind := conn.Where("key = ?", key).First(&record).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, errFind
		}
		return nil, fmt.Errorf("settings: query %s: %w", key, errFind)
	}
	if len(record.Value) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return json.RawMessage(record.Value), nil
}
