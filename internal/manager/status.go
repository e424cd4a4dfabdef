package manager

import (
	"sort"

	"replyd/pkg/types"
)

// Status builds a snapshot for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	resp := types.StatusResponse{
		Capacity:          m.capacity,
		LoadsTotal:        m.loads,
		EvictionsTotal:    m.evictions,
		ExhaustedTotal:    m.exhausted,
		LoadFailuresTotal: m.loadFailures,
		UptimeSeconds:     int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix:    now.Unix(),
	}
	resp.Handles = make([]types.HandleStatus, 0, len(m.handles))
	for _, h := range m.handles {
		hs := types.HandleStatus{UserID: h.userID, State: string(h.state), Version: h.version}
		if !h.loadedAt.IsZero() {
			hs.LoadedAt = h.loadedAt.Unix()
		}
		if !h.lastUsed.IsZero() {
			hs.LastUsed = h.lastUsed.Unix()
		}
		resp.Handles = append(resp.Handles, hs)
	}
	sort.Slice(resp.Handles, func(i, j int) bool { return resp.Handles[i].UserID < resp.Handles[j].UserID })
	return resp
}

// HandleState reports the state of userID's handle, or StateUnloaded.
func (m *Manager) HandleState(userID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h := m.handles[userID]; h != nil {
		return h.state
	}
	return StateUnloaded
}

// Active returns the number of loading, ready or busy handles.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
