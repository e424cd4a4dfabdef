package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"replyd/internal/runtime"
)

// fakeRuntime is a lightweight in-memory runtime used for tests.
type fakeRuntime struct {
	userID string
	mu     sync.Mutex
	loaded bool
	closed int
}

func (r *fakeRuntime) Status(ctx context.Context) (runtime.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return runtime.Status{Loaded: r.loaded, Version: "v-" + r.userID}, nil
}

func (r *fakeRuntime) Generate(ctx context.Context, prompt string, p runtime.Params) (runtime.Output, error) {
	return runtime.Output{Text: "ok"}, nil
}

func (r *fakeRuntime) Close() error {
	r.mu.Lock()
	r.closed++
	r.loaded = false
	r.mu.Unlock()
	return nil
}

func (r *fakeRuntime) crash() {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
}

func (r *fakeRuntime) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// fakeLoader hands out fakeRuntimes and records calls. gate, when set,
// blocks every load until it is closed or the load context ends.
type fakeLoader struct {
	mu       sync.Mutex
	calls    map[string]int
	runtimes map[string]*fakeRuntime
	gate     chan struct{}
	failFor  map[string]error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{calls: map[string]int{}, runtimes: map[string]*fakeRuntime{}, failFor: map[string]error{}}
}

func (l *fakeLoader) Load(ctx context.Context, userID string) (runtime.Runtime, error) {
	l.mu.Lock()
	l.calls[userID]++
	gate := l.gate
	ferr := l.failFor[userID]
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ferr != nil {
		return nil, ferr
	}
	rt := &fakeRuntime{userID: userID, loaded: true}
	l.mu.Lock()
	l.runtimes[userID] = rt
	l.mu.Unlock()
	return rt, nil
}

func (l *fakeLoader) callCount(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[userID]
}

func (l *fakeLoader) runtime(userID string) *fakeRuntime {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runtimes[userID]
}

var errBoom = errors.New("boom")

// tickClock returns a clock that advances one second per call.
func tickClock() func() time.Time {
	var n int64
	base := time.Unix(1_700_000_000, 0)
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeLoader) {
	t.Helper()
	l := newFakeLoader()
	if cfg.Loader == nil {
		cfg.Loader = l
	}
	m := New(cfg)
	m.now = tickClock()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, l
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func mustAcquire(t *testing.T, m *Manager, userID string) *Handle {
	t.Helper()
	h, err := m.Acquire(testCtx(t), userID)
	if err != nil {
		t.Fatalf("Acquire(%s): %v", userID, err)
	}
	return h
}
