package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/anthropic"
	"github.com/innerstack/chatdesk/internal/auth"
	"github.com/innerstack/chatdesk/internal/chat"
	"github.com/innerstack/chatdesk/internal/settings"
	log "github.com/sirupsen/logrus"
)

// ChatHandler serves the chat JSON API.
type ChatHandler struct {
	settings  *settings.Service
	history   chat.HistoryStore
	anthropic *anthropic.Client
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(settingsSvc *settings.Service, history chat.HistoryStore, client *anthropic.Client) *ChatHandler {
	return &ChatHandler{settings: settingsSvc, history: history, anthropic: client}
}

// sendMessageRequest is the JSON body for a chat message.
type sendMessageRequest struct {
	Message string `json:"message"`
}

// Send forwards one message to the Anthropic API and records the turn.
// The failed user turn is rolled back so a retry does not duplicate it.
func (h *ChatHandler) Send(c *gin.Context) {
	user := auth.CurrentUser(c)
	session, _ := auth.CurrentSession(c)
	ctx := c.Request.Context()

	loaded, errLoad := h.settings.Load(ctx, user.ID)
	if errLoad != nil {
		if errors.Is(errLoad, settings.ErrNotConfigured) {
			c.JSON(http.StatusOK, gin.H{"success": false, "error": "API key not configured"})
			return
		}
		log.WithError(errLoad).Error("load settings for chat failed")
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Could not load settings"})
		return
	}

	var body sendMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Invalid request"})
		return
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Empty message"})
		return
	}

	if errAppend := h.history.Append(ctx, session.SessionID, chat.Turn{Role: chat.RoleUser, Content: message}); errAppend != nil {
		log.WithError(errAppend).Error("append user turn failed")
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Could not record message"})
		return
	}

	turns, errTurns := h.history.Turns(ctx, session.SessionID)
	if errTurns != nil {
		log.WithError(errTurns).Error("load chat history failed")
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Could not load chat history"})
		return
	}

	reply, errComplete := h.anthropic.Complete(ctx, loaded.APIKey, loaded.Model, toMessages(turns))
	if errComplete != nil {
		if errDrop := h.history.DropLast(ctx, session.SessionID); errDrop != nil {
			log.WithError(errDrop).Warn("roll back failed turn failed")
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "error": apiErrorMessage(errComplete)})
		return
	}

	if errAppend := h.history.Append(ctx, session.SessionID, chat.Turn{Role: chat.RoleAssistant, Content: reply}); errAppend != nil {
		log.WithError(errAppend).Warn("append assistant turn failed")
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "response": reply})
}

// Clear drops the transcript of the current session.
func (h *ChatHandler) Clear(c *gin.Context) {
	session, _ := auth.CurrentSession(c)
	if errClear := h.history.Clear(c.Request.Context(), session.SessionID); errClear != nil {
		log.WithError(errClear).Error("clear chat history failed")
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Could not clear chat history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// toMessages converts stored turns into API messages.
func toMessages(turns []chat.Turn) []anthropic.Message {
	messages := make([]anthropic.Message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, anthropic.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

// apiErrorMessage maps completion errors to user-facing text.
func apiErrorMessage(err error) string {
	switch {
	case errors.Is(err, anthropic.ErrInvalidAPIKey):
		return "Invalid API key"
	case errors.Is(err, anthropic.ErrRateLimited):
		return "Rate limit exceeded. Please try again later."
	case errors.Is(err, anthropic.ErrConnection):
		return "Failed to connect to Anthropic API"
	default:
		return err.Error()
	}
}
