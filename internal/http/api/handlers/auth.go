package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/auth"
	"github.com/innerstack/chatdesk/internal/chat"
	"github.com/innerstack/chatdesk/internal/models"
	"github.com/innerstack/chatdesk/internal/security"
	"github.com/innerstack/chatdesk/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler serves the login and logout routes.
type AuthHandler struct {
	db       *gorm.DB
	sessions *auth.Manager
	history  chat.HistoryStore
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, sessions *auth.Manager, history chat.HistoryStore) *AuthHandler {
	return &AuthHandler{db: db, sessions: sessions, history: history}
}

// ShowLogin renders the login page, redirecting authenticated users.
func (h *AuthHandler) ShowLogin(c *gin.Context) {
	if auth.SessionIfPresent(c, h.db, h.sessions) {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	h.renderLogin(c, false)
}

// Login checks credentials and establishes the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	totpCode := strings.TrimSpace(c.PostForm("totp_code"))

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Error("login user lookup failed")
		}
		h.rejectLogin(c)
		return
	}
	if !security.VerifyPassword(user.Password, password) {
		h.rejectLogin(c)
		return
	}

	if user.TOTPSecret != "" {
		if totpCode == "" {
			h.renderLogin(c, true)
			return
		}
		if !security.ValidateTOTP(totpCode, user.TOTPSecret) {
			h.rejectLogin(c)
			return
		}
	}

	token, session, errIssue := h.sessions.Issue(user.ID)
	if errIssue != nil {
		log.WithError(errIssue).Error("issue session failed")
		h.rejectLogin(c)
		return
	}
	c.SetCookie(auth.CookieName, token, int(h.sessions.Expiry().Seconds()), "/", "", false, true)
	log.WithFields(log.Fields{"user": user.Username, "session": session.SessionID}).Info("user logged in")

	c.Redirect(http.StatusFound, safeNext(c.Query("next")))
}

// Logout clears the session cookie and the transient chat history.
func (h *AuthHandler) Logout(c *gin.Context) {
	if session, ok := auth.CurrentSession(c); ok {
		if errClear := h.history.Clear(c.Request.Context(), session.SessionID); errClear != nil {
			log.WithError(errClear).Warn("clear chat history on logout failed")
		}
	}
	c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
	setFlash(c, "success", "You have been logged out successfully")
	c.Redirect(http.StatusFound, "/login")
}

// rejectLogin flashes the generic credentials error and re-renders.
func (h *AuthHandler) rejectLogin(c *gin.Context) {
	setFlash(c, "danger", "Invalid username or password")
	c.Redirect(http.StatusFound, "/login")
}

// renderLogin renders the login form, optionally asking for a TOTP code.
func (h *AuthHandler) renderLogin(c *gin.Context, needsTOTP bool) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"Title":     "Sign in",
		"SiteName":  settings.SiteName(h.db),
		"Flashes":   popFlashes(c),
		"Next":      c.Query("next"),
		"NeedsTOTP": needsTOTP,
	})
}

// safeNext restricts post-login redirects to local paths.
func safeNext(next string) string {
	decoded, errDecode := url.QueryUnescape(strings.TrimSpace(next))
	if errDecode != nil || decoded == "" || !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return "/dashboard"
	}
	return decoded
}
