package manager

import (
	"context"
	"time"
)

// lruReadyLocked picks the least recently used idle handle, or nil when every
// handle is busy, loading or awaited. Caller holds m.mu.
func (m *Manager) lruReadyLocked() *Handle {
	var lru *Handle
	for _, h := range m.handles {
		if h.state != StateReady || h.waiters > 0 {
			continue
		}
		if lru == nil || h.lastUsed.Before(lru.lastUsed) {
			lru = h
		}
	}
	return lru
}

// Evict unloads userID's model. A busy handle is given DrainTimeout to be
// released before it is torn down anyway.
func (m *Manager) Evict(ctx context.Context, userID string) error {
	timer := time.NewTimer(m.drainTimeout)
	defer timer.Stop()
	drained := false

	m.mu.Lock()
	for {
		h := m.handles[userID]
		if h == nil {
			m.mu.Unlock()
			return handleNotFoundError{userID: userID}
		}
		if h.state == StateReady || drained {
			prev := h.state
			m.removeLocked(h)
			m.evictions++
			m.mu.Unlock()
			evictionsTotal.WithLabelValues("explicit").Inc()
			if prev != StateReady {
				m.log.Warn().Str("user_id", userID).Str("state", string(prev)).Msg("drain timeout; forcing eviction")
			}
			m.closeRuntime(h, "explicit")
			return nil
		}
		wait := m.changed
		m.mu.Unlock()
		select {
		case <-wait:
		case <-timer.C:
			drained = true
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
	}
}

// Shutdown stops accepting work, waits for held handles to be released until
// ctx ends, then evicts everything.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.broadcastLocked()
	for {
		busy := 0
		for _, h := range m.handles {
			if h.state == StateBusy {
				busy++
			}
		}
		if busy == 0 {
			break
		}
		wait := m.changed
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			m.log.Warn().Int("busy", busy).Msg("shutdown deadline; forcing eviction")
		}
		m.mu.Lock()
		if ctx.Err() != nil {
			break
		}
	}
	victims := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		victims = append(victims, h)
	}
	for _, h := range victims {
		m.removeLocked(h)
	}
	m.mu.Unlock()
	for _, h := range victims {
		evictionsTotal.WithLabelValues("shutdown").Inc()
		m.closeRuntime(h, "shutdown")
	}
	return ctx.Err()
}
