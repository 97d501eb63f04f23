package web

import (
	"encoding/base64"
	"encoding/json"

	"github.com/gin-gonic/gin"
)

// flashCookie is the one-shot flash message cookie name.
const flashCookie = "chatdesk_flash"

// Flash is a one-shot message rendered on the next page load.
type Flash struct {
	Level   string `json:"level"`   // "success", "warning", or "danger".
	Message string `json:"message"` // Display text.
}

// SetFlash queues a flash message for the next rendered page.
func SetFlash(c *gin.Context, level, message string) {
	existing := readFlashes(c)
	existing = append(existing, Flash{Level: level, Message: message})
	payload, errMarshal := json.Marshal(existing)
	if errMarshal != nil {
		return
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	c.SetCookie(flashCookie, encoded, 300, "/", "", false, true)
}

// PopFlashes returns queued flash messages and clears the cookie.
func PopFlashes(c *gin.Context) []Flash {
	flashes := readFlashes(c)
	if len(flashes) > 0 {
		c.SetCookie(flashCookie, "", -1, "/", "", false, true)
	}
	return flashes
}

// readFlashes decodes the flash cookie, tolerating any corruption.
func readFlashes(c *gin.Context) []Flash {
	raw, errCookie := c.Cookie(flashCookie)
	if errCookie != nil || raw == "" {
		return nil
	}
	decoded, errDecode := base64.RawURLEncoding.DecodeString(raw)
	if errDecode != nil {
		return nil
	}
	var flashes []Flash
	if errUnmarshal := json.Unmarshal(decoded, &flashes); errUnmarshal != nil {
		return nil
	}
	return flashes
}
