// Package chat holds the transient per-session conversation state.
// History lives only for the lifetime of a login session; nothing here
// is a durable transcript store.
package chat

import (
	"context"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single exchange entry in a session transcript.
type Turn struct {
	Role    string `json:"role"`    // RoleUser or RoleAssistant.
	Content string `json:"content"` // Message text.
}

// HistoryStore keeps per-session chat transcripts.
// Implementations expire entries after the session TTL on their own.
type HistoryStore interface {
	// Append adds a turn to the session transcript.
	Append(ctx context.Context, sessionID string, turn Turn) error
	// Turns returns the session transcript in order.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	// DropLast removes the most recent turn, used to roll back a
	// user message whose completion failed.
	DropLast(ctx context.Context, sessionID string) error
	// Clear removes the whole session transcript.
	Clear(ctx context.Context, sessionID string) error
}

// defaultTTL bounds transcript lifetime when no session expiry is given.
const defaultTTL = 24 * time.Hour

// normalizeTTL applies the default when the TTL is unset.
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
