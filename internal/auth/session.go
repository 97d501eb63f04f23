// Package auth issues and validates the signed session cookies that
// identify a logged-in user across requests.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/innerstack/chatdesk/internal/config"
)

// CookieName is the session cookie name.
const CookieName = "chatdesk_session"

var (
	// ErrNoSecret indicates the session secret is not configured.
	ErrNoSecret = errors.New("auth: session secret is not configured")

	// ErrInvalidSession indicates a missing, malformed, or expired token.
	ErrInvalidSession = errors.New("auth: invalid session")
)

// Session identifies an authenticated browser session.
type Session struct {
	UserID    uint64    // Authenticated user.
	SessionID string    // Unique per login; chat history is keyed by it.
	ExpiresAt time.Time // Token expiry.
}

// Manager signs and verifies session tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
}

// NewManager constructs a Manager from JWT config.
func NewManager(cfg config.JWTConfig) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Manager{secret: []byte(cfg.Secret), expiry: expiry}, nil
}

// Expiry returns the configured session lifetime.
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Issue creates a signed session token for the user.
// The token ID (jti) doubles as the chat history session key, so every
// login starts with an empty transcript.
func (m *Manager) Issue(userID uint64) (token string, session Session, err error) {
	now := time.Now().UTC()
	session = Session{
		UserID:    userID,
		SessionID: uuid.NewString(),
		ExpiresAt: now.Add(m.expiry),
	}
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(userID, 10),
		ID:        session.SessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	token, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if errSign != nil {
		return "", Session{}, fmt.Errorf("auth: sign session: %w", errSign)
	}
	return token, session, nil
}

// Parse validates a session token and returns its session.
func (m *Manager) Parse(token string) (Session, error) {
	claims := jwt.RegisteredClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if errParse != nil || !parsed.Valid {
		return Session{}, ErrInvalidSession
	}
	userID, errAtoi := strconv.ParseUint(claims.Subject, 10, 64)
	if errAtoi != nil || userID == 0 || claims.ID == "" {
		return Session{}, ErrInvalidSession
	}
	session := Session{UserID: userID, SessionID: claims.ID}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
