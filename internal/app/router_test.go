package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/anthropic"
	"github.com/innerstack/chatdesk/internal/auth"
	"github.com/innerstack/chatdesk/internal/chat"
	"github.com/innerstack/chatdesk/internal/config"
	"github.com/innerstack/chatdesk/internal/db"
	"github.com/innerstack/chatdesk/internal/models"
	"github.com/innerstack/chatdesk/internal/secretbox"
	"github.com/innerstack/chatdesk/internal/security"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	engine   *gin.Engine
	history  *chat.MemoryHistoryStore
	sessions *auth.Manager
	conn     *gorm.DB
}

// newTestEnv builds a router over a throwaway SQLite database with one
// provisioned user and the Anthropic client pointed at apiURL.
func newTestEnv(t *testing.T, apiURL string) *testEnv {
	t.Helper()

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "router-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	hash, errHash := security.HashPassword("admin123")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	user := models.User{Username: "admin", Password: hash}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}

	sessions, errSessions := auth.NewManager(config.JWTConfig{Secret: "router-test-secret", Expiry: time.Hour})
	if errSessions != nil {
		t.Fatalf("new session manager: %v", errSessions)
	}

	key := make([]byte, secretbox.KeyLen)
	for i := range key {
		key[i] = byte(i)
	}
	box, errBox := secretbox.New(key)
	if errBox != nil {
		t.Fatalf("new box: %v", errBox)
	}

	history := chat.NewMemoryHistoryStore(time.Hour)
	engine, errEngine := NewRouter(conn, sessions, box, anthropic.NewClient(apiURL), history)
	if errEngine != nil {
		t.Fatalf("new router: %v", errEngine)
	}
	return &testEnv{engine: engine, history: history, sessions: sessions, conn: conn}
}

// sessionID extracts the transcript key from a session cookie.
func (e *testEnv) sessionID(t *testing.T, cookie *http.Cookie) string {
	t.Helper()
	session, err := e.sessions.Parse(cookie.Value)
	if err != nil {
		t.Fatalf("parse session cookie: %v", err)
	}
	return session.SessionID
}

// login performs the form login and returns the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	form := url.Values{"username": {"admin"}, "password": {"admin123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected login redirect, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %q", got)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.CookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatalf("expected session cookie after login")
	return nil
}

// saveSettings stores an API key and model through the settings form.
func (e *testEnv) saveSettings(t *testing.T, session *http.Cookie, apiKey, model string) {
	t.Helper()

	form := url.Values{"api_key": {apiKey}, "model": {model}}
	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/settings" {
		t.Fatalf("expected settings redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

// postJSON sends an authenticated JSON request and decodes the response.
func (e *testEnv) postJSON(t *testing.T, session *http.Cookie, path, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != nil {
		req.AddCookie(session)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func stubAPI(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func TestDashboardRequiresLogin(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); !strings.HasPrefix(got, "/login?next=") {
		t.Fatalf("expected login redirect with next, got %q", got)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")

	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected bounce back to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.CookieName && cookie.Value != "" {
			t.Fatalf("must not set session cookie on failed login")
		}
	}
}

func TestLoginHonorsNextParam(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")

	form := url.Values{"username": {"admin"}, "password": {"admin123"}}
	req := httptest.NewRequest(http.MethodPost, "/login?next=%2Fchat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/chat" {
		t.Fatalf("expected redirect to /chat, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestLoginRejectsExternalNext(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")

	form := url.Values{"username": {"admin"}, "password": {"admin123"}}
	req := httptest.NewRequest(http.MethodPost, "/login?next=https%3A%2F%2Fevil.example", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected external next rejected, got %q", rec.Header().Get("Location"))
	}
}

func TestDashboardRendersAfterLogin(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Dashboard") {
		t.Fatalf("expected dashboard page body")
	}
}

func TestChatPageRedirectsWithoutAPIKey(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/settings" {
		t.Fatalf("expected redirect to /settings, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestChatAPIRequiresAuth(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")

	code, _ := env.postJSON(t, nil, "/api/chat", `{"message":"hello"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestChatAPIWithoutKey(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)

	code, body := env.postJSON(t, session, "/api/chat", `{"message":"hello"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["success"] != false || body["error"] != "API key not configured" {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestChatAPIRoundTrip(t *testing.T) {
	apiURL := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello from Claude"}]}`))
	})
	env := newTestEnv(t, apiURL)
	session := env.login(t)
	env.saveSettings(t, session, "sk-ant-api03-test", "claude-3-5-haiku-latest")

	code, body := env.postJSON(t, session, "/api/chat", `{"message":"hello"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	if body["response"] != "Hello from Claude" {
		t.Fatalf("unexpected reply %v", body["response"])
	}
}

func TestChatAPIEmptyMessage(t *testing.T) {
	apiURL := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"unused"}]}`))
	})
	env := newTestEnv(t, apiURL)
	session := env.login(t)
	env.saveSettings(t, session, "sk-ant-api03-test", "claude-3-5-haiku-latest")

	_, body := env.postJSON(t, session, "/api/chat", `{"message":"   "}`)
	if body["success"] != false || body["error"] != "Empty message" {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestChatAPIRollsBackFailedTurn(t *testing.T) {
	apiURL := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	env := newTestEnv(t, apiURL)
	session := env.login(t)
	env.saveSettings(t, session, "sk-ant-api03-test", "claude-3-5-haiku-latest")

	_, body := env.postJSON(t, session, "/api/chat", `{"message":"hello"}`)
	if body["success"] != false || body["error"] != "Rate limit exceeded. Please try again later." {
		t.Fatalf("unexpected response %v", body)
	}

	// The failed user turn must not linger in the transcript.
	turns, errTurns := env.history.Turns(context.Background(), env.sessionID(t, session))
	if errTurns != nil {
		t.Fatalf("read transcript: %v", errTurns)
	}
	if len(turns) != 0 {
		t.Fatalf("expected empty transcript after rollback, got %+v", turns)
	}
}

func TestTestConnectionEndpoint(t *testing.T) {
	apiURL := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hi"}]}`))
	})
	env := newTestEnv(t, apiURL)
	session := env.login(t)

	code, body := env.postJSON(t, session, "/api/test-connection", `{"api_key":"sk-ant-api03-test"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["success"] != true || body["message"] != "Connection successful" {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestTestConnectionInvalidKey(t *testing.T) {
	apiURL := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	env := newTestEnv(t, apiURL)
	session := env.login(t)

	_, body := env.postJSON(t, session, "/api/test-connection", `{"api_key":"sk-bad"}`)
	if body["success"] != false || body["message"] != "Invalid API key" {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestTestConnectionFallsBackToStoredKey(t *testing.T) {
	apiURL := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant-api03-stored" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hi"}]}`))
	})
	env := newTestEnv(t, apiURL)
	session := env.login(t)
	env.saveSettings(t, session, "sk-ant-api03-stored", "claude-3-5-haiku-latest")

	// Submitting the masked placeholder probes with the stored key.
	_, body := env.postJSON(t, session, "/api/test-connection", `{"api_key":"***************ored"}`)
	if body["success"] != true {
		t.Fatalf("expected stored-key probe to succeed, got %v", body)
	}
}

func TestLogoutClearsSessionCookie(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	cleared := false
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.CookieName && cookie.Value == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie cleared on logout")
	}
}

func TestLogoutClearsChatHistory(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)
	sessionID := env.sessionID(t, session)

	ctx := context.Background()
	if err := env.history.Append(ctx, sessionID, chat.Turn{Role: chat.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := env.history.Append(ctx, sessionID, chat.Turn{Role: chat.RoleAssistant, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected logout redirect, got %d", rec.Code)
	}
	turns, errTurns := env.history.Turns(ctx, sessionID)
	if errTurns != nil {
		t.Fatalf("read transcript: %v", errTurns)
	}
	if len(turns) != 0 {
		t.Fatalf("expected transcript cleared on logout, got %+v", turns)
	}

	// A fresh login gets its own transcript key, so it starts empty.
	next := env.login(t)
	nextID := env.sessionID(t, next)
	if nextID == sessionID {
		t.Fatalf("expected a fresh session id after re-login")
	}
	nextTurns, errNext := env.history.Turns(ctx, nextID)
	if errNext != nil {
		t.Fatalf("read transcript: %v", errNext)
	}
	if len(nextTurns) != 0 {
		t.Fatalf("expected empty transcript for new login, got %+v", nextTurns)
	}
}

func TestSessionLookupFailurePages(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)

	sqlDB, errDB := env.conn.DB()
	if errDB != nil {
		t.Fatalf("unwrap sql db: %v", errDB)
	}
	_ = sqlDB.Close()

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on session lookup failure, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "" {
		t.Fatalf("must not redirect on lookup failure, got %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); strings.Contains(ct, "application/json") {
		t.Fatalf("page route answered with JSON: %q", ct)
	}
}

func TestSessionLookupFailureAPI(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)

	sqlDB, errDB := env.conn.DB()
	if errDB != nil {
		t.Fatalf("unwrap sql db: %v", errDB)
	}
	_ = sqlDB.Close()

	code, body := env.postJSON(t, session, "/api/chat", `{"message":"hello"}`)
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on session lookup failure, got %d", code)
	}
	if body["success"] != false {
		t.Fatalf("expected JSON error body, got %v", body)
	}
}

func TestSettingsSaveRejectsUnknownModel(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	session := env.login(t)

	form := url.Values{"api_key": {"sk-ant-api03-test"}, "model": {"gpt-4o"}}
	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/settings" {
		t.Fatalf("expected redirect to /settings, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	// The rejected model must not reach the chat pipeline.
	code, body := env.postJSON(t, session, "/api/chat", `{"message":"hello"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["error"] != "API key not configured" {
		t.Fatalf("expected settings untouched, got %v", body)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
