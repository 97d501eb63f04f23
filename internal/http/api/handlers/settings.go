package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/anthropic"
	"github.com/innerstack/chatdesk/internal/auth"
	"github.com/innerstack/chatdesk/internal/security"
	"github.com/innerstack/chatdesk/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// pendingTOTPTTL bounds how long an unconfirmed enrollment secret lives.
const pendingTOTPTTL = 10 * time.Minute

// pendingTOTP is an enrollment secret awaiting confirmation.
type pendingTOTP struct {
	secret  string
	expires time.Time
}

// SettingsHandler serves the settings page and its actions.
type SettingsHandler struct {
	db        *gorm.DB
	settings  *settings.Service
	anthropic *anthropic.Client

	mu      sync.Mutex
	pending map[uint64]pendingTOTP
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB, settingsSvc *settings.Service, client *anthropic.Client) *SettingsHandler {
	return &SettingsHandler{
		db:        db,
		settings:  settingsSvc,
		anthropic: client,
		pending:   make(map[uint64]pendingTOTP),
	}
}

// ShowSettings renders the settings page.
func (h *SettingsHandler) ShowSettings(c *gin.Context) {
	user := auth.CurrentUser(c)

	maskedKey, model, errDescribe := h.settings.Describe(c.Request.Context(), user.ID)
	if errDescribe != nil {
		log.WithError(errDescribe).Error("describe settings failed")
		maskedKey, model = "", settings.DefaultModel
	}
	if model == "" {
		model = settings.DefaultModel
	}

	pendingSecret, pendingOK := h.pendingSecret(user.ID)

	c.HTML(http.StatusOK, "settings.html", gin.H{
		"Title":        "Settings",
		"SiteName":     settings.SiteName(h.db),
		"Flashes":      popFlashes(c),
		"User":         user,
		"MaskedKey":    maskedKey,
		"CurrentModel": model,
		"Models":       settings.AvailableModels,
		"TOTPEnabled":  user.TOTPSecret != "",
		"TOTPPending":  pendingOK,
		"TOTPSecret":   pendingSecret,
	})
}

// SaveSettings persists the submitted API key and model choice.
// A masked key submission keeps the stored key untouched.
func (h *SettingsHandler) SaveSettings(c *gin.Context) {
	user := auth.CurrentUser(c)
	apiKey := strings.TrimSpace(c.PostForm("api_key"))
	model := strings.TrimSpace(c.PostForm("model"))

	if apiKey == "" || settings.IsMaskedKey(apiKey) {
		apiKey = ""
	}

	if errSave := h.settings.Save(c.Request.Context(), user.ID, apiKey, model); errSave != nil {
		if errors.Is(errSave, settings.ErrInvalidModel) {
			setFlash(c, "danger", "Selected model is not available")
		} else {
			log.WithError(errSave).Error("save settings failed")
			setFlash(c, "danger", "Could not save settings")
		}
		c.Redirect(http.StatusFound, "/settings")
		return
	}

	setFlash(c, "success", "Settings saved successfully")
	c.Redirect(http.StatusFound, "/settings")
}

// PrepareTOTP provisions an enrollment secret pending confirmation.
func (h *SettingsHandler) PrepareTOTP(c *gin.Context) {
	user := auth.CurrentUser(c)
	if user.TOTPSecret != "" {
		c.Redirect(http.StatusFound, "/settings")
		return
	}

	secret, _, errGenerate := security.GenerateTOTPSecret(user.Username)
	if errGenerate != nil {
		log.WithError(errGenerate).Error("generate totp secret failed")
		setFlash(c, "danger", "Could not start two-factor enrollment")
		c.Redirect(http.StatusFound, "/settings")
		return
	}

	h.mu.Lock()
	h.pending[user.ID] = pendingTOTP{secret: secret, expires: time.Now().Add(pendingTOTPTTL)}
	h.mu.Unlock()

	c.Redirect(http.StatusFound, "/settings")
}

// ConfirmTOTP verifies the first passcode and enables two-factor login.
func (h *SettingsHandler) ConfirmTOTP(c *gin.Context) {
	user := auth.CurrentUser(c)
	code := strings.TrimSpace(c.PostForm("totp_code"))

	secret, ok := h.pendingSecret(user.ID)
	if !ok {
		setFlash(c, "danger", "Two-factor enrollment expired, start again")
		c.Redirect(http.StatusFound, "/settings")
		return
	}
	if !security.ValidateTOTP(code, secret) {
		setFlash(c, "danger", "Incorrect code, try again")
		c.Redirect(http.StatusFound, "/settings")
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).
		Update("totp_secret", secret).Error; errUpdate != nil {
		log.WithError(errUpdate).Error("enable totp failed")
		setFlash(c, "danger", "Could not enable two-factor authentication")
		c.Redirect(http.StatusFound, "/settings")
		return
	}

	h.mu.Lock()
	delete(h.pending, user.ID)
	h.mu.Unlock()

	setFlash(c, "success", "Two-factor authentication enabled")
	c.Redirect(http.StatusFound, "/settings")
}

// DisableTOTP turns off two-factor login for the account.
func (h *SettingsHandler) DisableTOTP(c *gin.Context) {
	user := auth.CurrentUser(c)
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).
		Update("totp_secret", "").Error; errUpdate != nil {
		log.WithError(errUpdate).Error("disable totp failed")
		setFlash(c, "danger", "Could not disable two-factor authentication")
		c.Redirect(http.StatusFound, "/settings")
		return
	}
	setFlash(c, "success", "Two-factor authentication disabled")
	c.Redirect(http.StatusFound, "/settings")
}

// testConnectionRequest is the JSON body for the connection probe.
type testConnectionRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// TestConnection probes the Anthropic API with the submitted or stored key.
func (h *SettingsHandler) TestConnection(c *gin.Context) {
	user := auth.CurrentUser(c)

	var body testConnectionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid request"})
		return
	}

	apiKey := strings.TrimSpace(body.APIKey)
	if apiKey == "" || settings.IsMaskedKey(apiKey) {
		loaded, errLoad := h.settings.Load(c.Request.Context(), user.ID)
		if errLoad != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "No API key provided"})
			return
		}
		apiKey = loaded.APIKey
	}

	if errProbe := h.anthropic.TestConnection(c.Request.Context(), apiKey); errProbe != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": probeMessage(errProbe)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Connection successful"})
}

// probeMessage maps client errors to the user-facing probe messages.
func probeMessage(err error) string {
	switch {
	case errors.Is(err, anthropic.ErrInvalidAPIKey):
		return "Invalid API key"
	case errors.Is(err, anthropic.ErrRateLimited):
		return "Rate limit exceeded. Please try again later."
	case errors.Is(err, anthropic.ErrConnection):
		return "Failed to connect to Anthropic API"
	default:
		return "Error: " + err.Error()
	}
}

// pendingSecret returns the unexpired enrollment secret for the user.
func (h *SettingsHandler) pendingSecret(userID uint64) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.pending[userID]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(h.pending, userID)
		return "", false
	}
	return entry.secret, true
}
