package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/innerstack/chatdesk/internal/models"
	"github.com/innerstack/chatdesk/internal/secretbox"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotConfigured indicates the user has no stored API key.
	ErrNotConfigured = errors.New("settings: api key not configured")

	// ErrInvalidModel indicates a model outside the allowed set.
	ErrInvalidModel = errors.New("settings: model is not in the allowed set")
)

// Service persists per-user API settings with the key sealed at rest.
type Service struct {
	db  *gorm.DB
	box *secretbox.Box
}

// NewService constructs a settings Service.
func NewService(db *gorm.DB, box *secretbox.Box) *Service {
	return &Service{db: db, box: box}
}

// UserSettings is the decrypted view of a user's stored settings.
type UserSettings struct {
	APIKey string // Decrypted API key, empty when unset.
	Model  string // Selected model identifier.
}

// Save validates the model, seals the API key when one is supplied, and
// upserts the settings row. An empty apiKey leaves the stored key alone,
// which is how the masked-key form round-trip is handled.
func (s *Service) Save(ctx context.Context, userID uint64, apiKey, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	if !IsAllowedModel(model) {
		return fmt.Errorf("%w: %s", ErrInvalidModel, model)
	}

	now := time.Now().UTC()
	record := models.UserSetting{
		UserID:        userID,
		SelectedModel: model,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	assignments := map[string]any{
		"selected_model": model,
		"updated_at":     now,
	}

	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		sealed, errSeal := s.box.Seal(apiKey)
		if errSeal != nil {
			return fmt.Errorf("settings: seal api key: %w", errSeal)
		}
		record.APIKeyCiphertext = sealed
		assignments["api_key_ciphertext"] = sealed
	}

	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&record).Error; errUpsert != nil {
		return fmt.Errorf("settings: save: %w", errUpsert)
	}
	return nil
}

// Load returns the decrypted settings for the user.
// ErrNotConfigured is returned when no row or no key exists.
func (s *Service) Load(ctx context.Context, userID uint64) (UserSettings, error) {
	record, errFind := s.find(ctx, userID)
	if errFind != nil {
		return UserSettings{}, errFind
	}
	if len(record.APIKeyCiphertext) == 0 {
		return UserSettings{}, ErrNotConfigured
	}
	apiKey, errOpen := s.box.Open(record.APIKeyCiphertext)
	if errOpen != nil {
		return UserSettings{}, fmt.Errorf("settings: unseal api key: %w", errOpen)
	}
	return UserSettings{APIKey: apiKey, Model: record.SelectedModel}, nil
}

// Describe returns the display state of the user's settings: the masked
// key and the selected model. It never returns the plaintext key.
func (s *Service) Describe(ctx context.Context, userID uint64) (maskedKey, model string, err error) {
	record, errFind := s.find(ctx, userID)
	if errors.Is(errFind, ErrNotConfigured) {
		return "", DefaultModel, nil
	}
	if errFind != nil {
		return "", "", errFind
	}
	if len(record.APIKeyCiphertext) > 0 {
		apiKey, errOpen := s.box.Open(record.APIKeyCiphertext)
		if errOpen != nil {
			return "", "", fmt.Errorf("settings: unseal api key: %w", errOpen)
		}
		maskedKey = MaskKey(apiKey)
	}
	return maskedKey, record.SelectedModel, nil
}

// find loads the raw settings row.
func (s *Service) find(ctx context.Context, userID uint64) (models.UserSetting, error) {
	var record models.UserSetting
	errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return record, ErrNotConfigured
	}
	if errFind != nil {
		return record, fmt.Errorf("settings: query: %w", errFind)
	}
	return record, nil
}

// maskVisibleSuffix is how many trailing key characters stay readable.
const maskVisibleSuffix = 4

// MaskKey renders an API key for display, keeping only the tail visible.
func MaskKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= maskVisibleSuffix {
		return strings.Repeat("*", len(apiKey))
	}
	return strings.Repeat("*", len(apiKey)-maskVisibleSuffix) + apiKey[len(apiKey)-maskVisibleSuffix:]
}

// IsMaskedKey reports whether a submitted key is the masked placeholder.
func IsMaskedKey(apiKey string) bool {
	return strings.Contains(apiKey, "*")
}
