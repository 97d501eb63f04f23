package chat

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is one session transcript with its expiry.
type memoryEntry struct {
	turns   []Turn
	expires time.Time
}

// MemoryHistoryStore keeps transcripts in process memory.
type MemoryHistoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*memoryEntry
}

// NewMemoryHistoryStore constructs a MemoryHistoryStore.
func NewMemoryHistoryStore(ttl time.Duration) *MemoryHistoryStore {
	return &MemoryHistoryStore{
		ttl:      normalizeTTL(ttl),
		sessions: make(map[string]*memoryEntry),
	}
}

// Append adds a turn to the session transcript.
func (s *MemoryHistoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(sessionID, now)
	if entry == nil {
		entry = &memoryEntry{}
		s.sessions[sessionID] = entry
	}
	entry.turns = append(entry.turns, turn)
	entry.expires = now.Add(s.ttl)
	return nil
}

// Turns returns a copy of the session transcript.
func (s *MemoryHistoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(sessionID, time.Now())
	if entry == nil {
		return nil, nil
	}
	out := make([]Turn, len(entry.turns))
	copy(out, entry.turns)
	return out, nil
}

// DropLast removes the most recent turn of the session.
func (s *MemoryHistoryStore) DropLast(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(sessionID, time.Now())
	if entry == nil || len(entry.turns) == 0 {
		return nil
	}
	entry.turns = entry.turns[:len(entry.turns)-1]
	return nil
}

// Clear removes the session transcript.
func (s *MemoryHistoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// live returns the entry when present and unexpired, pruning it otherwise.
// Callers must hold the mutex.
func (s *MemoryHistoryStore) live(sessionID string, now time.Time) *memoryEntry {
	entry := s.sessions[sessionID]
	if entry == nil {
		return nil
	}
	if now.After(entry.expires) {
		delete(s.sessions, sessionID)
		return nil
	}
	return entry
}
