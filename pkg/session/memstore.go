package session

import (
	"context"
	"sync"
)

// MemoryStore keeps session history in process memory. It satisfies the
// same contract as the durable backends and is the default for
// ephemeral runs and tests.
type MemoryStore struct {
	sessions map[string][]Message
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Message),
	}
}

// Append adds one message to a session's history.
func (ms *MemoryStore) Append(ctx context.Context, sessionKey string, msg Message) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	history := ms.sessions[sessionKey]
	if err := validateAppend(sessionKey, history, msg); err != nil {
		return err
	}

	ms.sessions[sessionKey] = append(history, msg)
	return nil
}

// History returns a copy of the session's ordered history.
func (ms *MemoryStore) History(ctx context.Context, sessionKey string) ([]Message, error) {
	if err := validateSessionKey(sessionKey); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return copyMessages(ms.sessions[sessionKey]), nil
}

// Reset clears one session.
func (ms *MemoryStore) Reset(ctx context.Context, sessionKey string) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.sessions, sessionKey)
	return nil
}

// List returns the keys of all sessions with history.
func (ms *MemoryStore) List(ctx context.Context) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	keys := make([]string, 0, len(ms.sessions))
	for key := range ms.sessions {
		keys = append(keys, key)
	}
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (ms *MemoryStore) Close() error {
	return nil
}
