package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/http/web"
)

// setFlash queues a one-shot flash message for the next page render.
func setFlash(c *gin.Context, level, message string) {
	web.SetFlash(c, level, message)
}

// popFlashes drains queued flash messages for the current render.
func popFlashes(c *gin.Context) []web.Flash {
	return web.PopFlashes(c)
}
