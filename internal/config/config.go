package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath       = "CONFIG_PATH"
	EnvDBConnection     = "DB_CONNECTION"
	EnvJWTSecret        = "JWT_SECRET"
	EnvJWTExpiry        = "JWT_EXPIRY"
	EnvEncryptionKey    = "ENCRYPTION_KEY"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingEncryptionKey indicates no encryption key material is configured.
var ErrMissingEncryptionKey = errors.New("missing encryption key (set `encryption-key` in config file or ENCRYPTION_KEY)")

// JWTConfig holds JWT secret and expiry settings for session cookies.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 24 * time.Hour

// LoadJWTConfig loads JWT session settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// keyLen is the required encryption key length (AES-256).
const keyLen = 32

// LoadEncryptionKey loads the 32-byte API-key-at-rest encryption key.
// Key material is accepted as base64 or hex and must decode to 32 bytes.
func LoadEncryptionKey(configPath string) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(EnvEncryptionKey))
	if raw == "" {
		// fileConfig maps the YAML field holding the key material.
		type fileConfig struct {
			EncryptionKey string `yaml:"encryption-key"`
		}
		data, errRead := os.ReadFile(configPath)
		if errRead == nil {
			var cfg fileConfig
			if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
				raw = strings.TrimSpace(cfg.EncryptionKey)
			}
		}
	}
	if raw == "" {
		return nil, ErrMissingEncryptionKey
	}
	return DecodeKeyMaterial(raw)
}

// DecodeKeyMaterial decodes base64 or hex key material into a 32-byte key.
func DecodeKeyMaterial(raw string) ([]byte, error) {
	if decoded, errB64 := base64.StdEncoding.DecodeString(raw); errB64 == nil && len(decoded) == keyLen {
		return decoded, nil
	}
	if decoded, errHex := hex.DecodeString(raw); errHex == nil && len(decoded) == keyLen {
		return decoded, nil
	}
	return nil, fmt.Errorf("config: encryption key must decode to %d bytes (base64 or hex)", keyLen)
}

// defaultAnthropicBaseURL is the hosted Anthropic API endpoint.
const defaultAnthropicBaseURL = "https://api.anthropic.com"

// LoadAnthropicBaseURL resolves the Anthropic API base URL, env first.
func LoadAnthropicBaseURL(configPath string) string {
	if baseURL := strings.TrimSpace(os.Getenv(EnvAnthropicBaseURL)); baseURL != "" {
		return strings.TrimRight(baseURL, "/")
	}

	// fileConfig maps the YAML field holding the base URL override.
	type fileConfig struct {
		Anthropic struct {
			BaseURL string `yaml:"base-url"`
		} `yaml:"anthropic"`
	}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if baseURL := strings.TrimSpace(cfg.Anthropic.BaseURL); baseURL != "" {
				return strings.TrimRight(baseURL, "/")
			}
		}
	}
	return defaultAnthropicBaseURL
}
