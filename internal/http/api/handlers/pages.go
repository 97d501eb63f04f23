package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/auth"
	"github.com/innerstack/chatdesk/internal/chat"
	"github.com/innerstack/chatdesk/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PageHandler renders the authenticated HTML pages.
type PageHandler struct {
	db       *gorm.DB
	settings *settings.Service
	history  chat.HistoryStore
}

// NewPageHandler constructs a PageHandler.
func NewPageHandler(db *gorm.DB, settingsSvc *settings.Service, history chat.HistoryStore) *PageHandler {
	return &PageHandler{db: db, settings: settingsSvc, history: history}
}

// Dashboard renders the landing page with configuration state.
func (h *PageHandler) Dashboard(c *gin.Context) {
	user := auth.CurrentUser(c)
	session, _ := auth.CurrentSession(c)

	keyConfigured := false
	model := settings.DefaultModel
	if loaded, errLoad := h.settings.Load(c.Request.Context(), user.ID); errLoad == nil {
		keyConfigured = true
		model = loaded.Model
	} else if !errors.Is(errLoad, settings.ErrNotConfigured) {
		log.WithError(errLoad).Error("load settings for dashboard failed")
	}

	turnCount := 0
	if turns, errTurns := h.history.Turns(c.Request.Context(), session.SessionID); errTurns == nil {
		turnCount = len(turns)
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Title":         "Dashboard",
		"SiteName":      settings.SiteName(h.db),
		"Flashes":       popFlashes(c),
		"User":          user,
		"KeyConfigured": keyConfigured,
		"ModelLabel":    settings.ModelLabel(model),
		"TurnCount":     turnCount,
	})
}

// ChatPage renders the chat page, requiring a configured API key.
func (h *PageHandler) ChatPage(c *gin.Context) {
	user := auth.CurrentUser(c)
	session, _ := auth.CurrentSession(c)

	loaded, errLoad := h.settings.Load(c.Request.Context(), user.ID)
	if errLoad != nil {
		if !errors.Is(errLoad, settings.ErrNotConfigured) {
			log.WithError(errLoad).Error("load settings for chat failed")
		}
		setFlash(c, "warning", "Please configure your API key in settings first")
		c.Redirect(http.StatusFound, "/settings")
		return
	}

	turns, errTurns := h.history.Turns(c.Request.Context(), session.SessionID)
	if errTurns != nil {
		log.WithError(errTurns).Error("load chat history failed")
	}

	c.HTML(http.StatusOK, "chat.html", gin.H{
		"Title":      "Chat",
		"SiteName":   settings.SiteName(h.db),
		"Flashes":    popFlashes(c),
		"User":       user,
		"ModelLabel": settings.ModelLabel(loaded.Model),
		"Turns":      turns,
	})
}
