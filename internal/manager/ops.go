package manager

import (
	"context"
	"fmt"
	"sync/atomic"
)

func (m *Manager) nextOpID() string {
	return fmt.Sprintf("op-%d", atomic.AddUint64(&m.opSeq, 1))
}

// Warm kicks off an asynchronous load of userID's model and returns an
// operation ID. Callers poll Status to observe the transition.
func (m *Manager) Warm(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("manager: empty user id")
	}
	if !m.Ready() {
		return "", ErrShuttingDown
	}
	op := m.nextOpID()
	go func(opID string) {
		// detached: the request that asked for the warm-up may be gone already
		ctx, cancel := context.WithTimeout(context.Background(), m.maxWait+m.loadTimeout)
		defer cancel()
		h, err := m.Acquire(ctx, userID)
		if err != nil {
			m.log.Warn().Err(err).Str("user_id", userID).Str("op_id", opID).Msg("warm failed")
			m.publisher.Publish(Event{Name: "warm_failed", UserID: userID, Fields: map[string]any{"op_id": opID}})
			return
		}
		m.Release(h, true)
		m.publisher.Publish(Event{Name: "warm_done", UserID: userID, Fields: map[string]any{"op_id": opID}})
	}(op)
	return op, nil
}
