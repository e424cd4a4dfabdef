package runtime

import (
	"context"
	"testing"
	"time"
)

type mapResolver map[string]string

func (m mapResolver) ModelPath(userID string) (string, bool) {
	p, ok := m[userID]
	return p, ok
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
