// Package persist provides TurnStore backends for finalized conversation
// turns: in-memory, Redis and SQLite. The SQLite store also serves fallback
// corpora.
package persist

import (
	"context"
	"sync"

	"replyd/internal/convo"
)

var (
	_ convo.TurnStore = (*MemoryStore)(nil)
	_ convo.TurnStore = (*RedisStore)(nil)
	_ convo.TurnStore = (*SQLiteStore)(nil)
)

// MemoryStore keeps turns in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	turns  map[string][]convo.Turn
	owners map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string][]convo.Turn{}, owners: map[string]string{}}
}

func (m *MemoryStore) AppendTurn(_ context.Context, sessionID, userID string, t convo.Turn) error {
	m.mu.Lock()
	m.turns[sessionID] = append(m.turns[sessionID], t)
	if _, ok := m.owners[sessionID]; !ok {
		m.owners[sessionID] = userID
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SessionOwner(_ context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owners[sessionID], nil
}

func (m *MemoryStore) LoadRecentTurns(_ context.Context, sessionID string, limit int) ([]convo.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tail(m.turns[sessionID], limit), nil
}

func tail(ts []convo.Turn, limit int) []convo.Turn {
	if limit > 0 && len(ts) > limit {
		ts = ts[len(ts)-limit:]
	}
	return append([]convo.Turn(nil), ts...)
}
