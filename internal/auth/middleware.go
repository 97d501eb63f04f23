package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Gin context keys for the resolved session and user.
const (
	ContextUserKey    = "auth.user"
	ContextSessionKey = "auth.session"
)

// RequirePage gates HTML routes, redirecting anonymous requests to the
// login page with a next parameter.
func RequirePage(db *gorm.DB, manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, errResolve := resolve(c, db, manager)
		if errResolve != nil {
			log.WithError(errResolve).Error("resolve session failed")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if !ok {
			next := url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusFound, "/login?next="+next)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAPI gates JSON routes, responding 401 to anonymous requests.
func RequireAPI(db *gorm.DB, manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, errResolve := resolve(c, db, manager)
		if errResolve != nil {
			log.WithError(errResolve).Error("resolve session failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "session lookup failed"})
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// resolve validates the session cookie and loads the user into context.
// It never writes to the response; callers answer in their own medium.
func resolve(c *gin.Context, db *gorm.DB, manager *Manager) (bool, error) {
	token, errCookie := c.Cookie(CookieName)
	if errCookie != nil || token == "" {
		return false, nil
	}
	session, errParse := manager.Parse(token)
	if errParse != nil {
		return false, nil
	}
	var user models.User
	if errFind := db.WithContext(c.Request.Context()).First(&user, session.UserID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("auth: load session user: %w", errFind)
	}
	c.Set(ContextUserKey, &user)
	c.Set(ContextSessionKey, session)
	return true, nil
}

// CurrentUser returns the authenticated user from the gin context.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// CurrentSession returns the session from the gin context.
func CurrentSession(c *gin.Context) (Session, bool) {
	value, ok := c.Get(ContextSessionKey)
	if !ok {
		return Session{}, false
	}
	session, ok := value.(Session)
	return session, ok
}

// SessionIfPresent resolves the session without enforcing it, for routes
// like /login that redirect already-authenticated users.
func SessionIfPresent(c *gin.Context, db *gorm.DB, manager *Manager) bool {
	ok, errResolve := resolve(c, db, manager)
	if errResolve != nil {
		log.WithError(errResolve).Error("resolve session failed")
		return false
	}
	return ok
}
