package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFlashRoundTrip(t *testing.T) {
	engine := gin.New()
	engine.GET("/set", func(c *gin.Context) {
		SetFlash(c, "success", "Settings saved successfully")
		c.Status(http.StatusOK)
	})
	engine.GET("/read", func(c *gin.Context) {
		flashes := PopFlashes(c)
		if len(flashes) != 1 {
			t.Errorf("expected 1 flash, got %d", len(flashes))
			c.Status(http.StatusOK)
			return
		}
		if flashes[0].Level != "success" || flashes[0].Message != "Settings saved successfully" {
			t.Errorf("unexpected flash %+v", flashes[0])
		}
		c.Status(http.StatusOK)
	})

	setRec := httptest.NewRecorder()
	engine.ServeHTTP(setRec, httptest.NewRequest(http.MethodGet, "/set", nil))

	cookies := setRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected flash cookie to be set")
	}

	readReq := httptest.NewRequest(http.MethodGet, "/read", nil)
	for _, cookie := range cookies {
		readReq.AddCookie(cookie)
	}
	readRec := httptest.NewRecorder()
	engine.ServeHTTP(readRec, readReq)

	cleared := false
	for _, cookie := range readRec.Result().Cookies() {
		if cookie.Name == "chatdesk_flash" && cookie.Value == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected flash cookie cleared after pop")
	}
}

func TestPopFlashesTolerantOfGarbage(t *testing.T) {
	engine := gin.New()
	engine.GET("/read", func(c *gin.Context) {
		if flashes := PopFlashes(c); len(flashes) != 0 {
			t.Errorf("expected no flashes from corrupt cookie, got %+v", flashes)
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.AddCookie(&http.Cookie{Name: "chatdesk_flash", Value: "%%%not-base64%%%"})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
}
