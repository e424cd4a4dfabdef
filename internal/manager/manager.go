package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"replyd/internal/runtime"
)

// Manager schedules per-user model handles within a fixed capacity.
type Manager struct {
	mu      sync.Mutex
	handles map[string]*Handle
	// closed and replaced on every state change; waiters select on it
	changed chan struct{}

	capacity     int
	maxWait      time.Duration
	loadTimeout  time.Duration
	drainTimeout time.Duration
	probeTimeout time.Duration

	loader    runtime.Loader
	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time

	loads        uint64
	evictions    uint64
	exhausted    uint64
	loadFailures uint64
	opSeq        uint64
	closed       bool
	startTime    time.Time
}

// broadcastLocked wakes every waiter. Caller holds m.mu.
func (m *Manager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
	m.updateGaugesLocked()
}

// Acquire returns a busy handle for userID, loading the user's model when
// needed. The wait is bounded by ctx's deadline, or MaxWait when ctx has none.
//
// Errors: ErrPoolExhausted when no slot frees up in time, ErrModelLoadTimeout
// when the awaited load does not finish in time, ErrModelCrash when the load
// fails, ctx.Err() when the caller cancels.
func (m *Manager) Acquire(ctx context.Context, userID string) (*Handle, error) {
	if userID == "" {
		return nil, errors.New("manager: empty user id")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.maxWait)
		defer cancel()
	}
	start := m.now()
	var pending *Handle // load this call is waiting on

	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return nil, ErrShuttingDown
		}
		h := m.handles[userID]
		if pending != nil && h != pending {
			if pending.state == StateFailed {
				err := pending.err
				m.mu.Unlock()
				return nil, err
			}
			pending = nil
		}

		var victim *Handle
		switch {
		case h != nil && h.state == StateReady:
			h.state = StateBusy
			h.lastUsed = m.now()
			m.broadcastLocked()
			m.mu.Unlock()
			acquireWait.Observe(time.Since(start).Seconds())
			m.publisher.Publish(Event{Name: "acquire", UserID: userID})
			return h, nil
		case h != nil && h.state == StateLoading:
			pending = h
		case h == nil:
			if len(m.handles) >= m.capacity {
				victim = m.lruReadyLocked()
				if victim != nil {
					m.removeLocked(victim)
					m.evictions++
					evictionsTotal.WithLabelValues("capacity").Inc()
				}
			}
			if len(m.handles) < m.capacity {
				h = &Handle{userID: userID, state: StateLoading}
				m.handles[userID] = h
				pending = h
				m.broadcastLocked()
				go m.load(h)
			}
		}

		// busy, loading, or no free slot: wait for the next transition
		if h != nil {
			h.waiters++
		}
		wait := m.changed
		m.mu.Unlock()

		if victim != nil {
			m.closeRuntime(victim, "capacity")
		}

		var waitErr error
		select {
		case <-wait:
		case <-ctx.Done():
			waitErr = ctx.Err()
		}

		m.mu.Lock()
		if h != nil {
			h.waiters--
		}
		if waitErr != nil {
			err := m.waitFailedLocked(ctx, userID, pending)
			m.mu.Unlock()
			acquireWait.Observe(time.Since(start).Seconds())
			if IsPoolExhausted(err) {
				m.log.Warn().Str("user_id", userID).Dur("waited", time.Since(start)).Msg("pool exhausted")
				m.publisher.Publish(Event{Name: "exhausted", UserID: userID})
			}
			return nil, err
		}
	}
}

// waitFailedLocked classifies an Acquire whose context ended while waiting.
func (m *Manager) waitFailedLocked(ctx context.Context, userID string, pending *Handle) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if pending != nil && pending.state == StateLoading {
		return fmt.Errorf("%w: user %s", ErrModelLoadTimeout, userID)
	}
	m.exhausted++
	exhaustedTotal.Inc()
	return fmt.Errorf("%w: user %s", ErrPoolExhausted, userID)
}

// load runs the loader for h detached from any caller; its own deadline is LoadTimeout.
func (m *Manager) load(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), m.loadTimeout)
	defer cancel()
	start := m.now()
	m.log.Info().Str("user_id", h.userID).Msg("model load start")
	m.publisher.Publish(Event{Name: "load_start", UserID: h.userID})

	type result struct {
		rt  runtime.Runtime
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rt, err := m.loader.Load(ctx, h.userID)
		ch <- result{rt, err}
	}()
	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
		go func() {
			if late := <-ch; late.rt != nil {
				_ = late.rt.Close()
			}
		}()
	}

	var version string
	if res.err == nil {
		st, err := res.rt.Status(ctx)
		switch {
		case err != nil:
			res.err = err
		case !st.Loaded:
			res.err = errors.New("runtime reports not loaded")
		default:
			version = st.Version
		}
		if res.err != nil {
			_ = res.rt.Close()
			res.rt = nil
		}
	}

	var err error
	outcome := "ok"
	if res.err != nil {
		if ctx.Err() != nil && errors.Is(res.err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: user %s after %s", ErrModelLoadTimeout, h.userID, m.loadTimeout)
			outcome = "timeout"
		} else {
			err = fmt.Errorf("%w: user %s: %v", ErrModelCrash, h.userID, res.err)
			outcome = "crash"
		}
	}

	m.mu.Lock()
	if h.state != StateLoading {
		// evicted or shut down mid-load
		m.mu.Unlock()
		if res.rt != nil {
			_ = res.rt.Close()
		}
		return
	}
	now := m.now()
	if err != nil {
		h.state = StateFailed
		h.err = err
		if m.handles[h.userID] == h {
			delete(m.handles, h.userID)
		}
		m.loadFailures++
	} else {
		h.state = StateReady
		h.rt = res.rt
		h.version = version
		h.loadedAt = now
		h.lastUsed = now
		m.loads++
	}
	m.broadcastLocked()
	m.mu.Unlock()

	loadsTotal.WithLabelValues(outcome).Inc()
	loadDuration.Observe(now.Sub(start).Seconds())
	if err != nil {
		m.log.Error().Err(err).Str("user_id", h.userID).Msg("model load failed")
		m.publisher.Publish(Event{Name: "load_failed", UserID: h.userID, Fields: map[string]any{"reason": outcome, "error": err.Error()}})
		return
	}
	m.log.Info().Str("user_id", h.userID).Str("version", version).Dur("took", now.Sub(start)).Msg("model ready")
	m.publisher.Publish(Event{Name: "load_ready", UserID: h.userID, Fields: map[string]any{"version": version}})
}

// Release returns a held handle to the pool and stamps its last use. When
// success is false the runtime is probed; a runtime that errors or reports
// not loaded is torn down and its slot freed.
func (m *Manager) Release(h *Handle, success bool) {
	if h == nil {
		return
	}
	if !success && h.rt != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
		st, err := h.rt.Status(ctx)
		cancel()
		if err != nil || !st.Loaded {
			m.log.Warn().Err(err).Str("user_id", h.userID).Msg("runtime lost; tearing down handle")
			m.mu.Lock()
			removed := h.state == StateBusy
			if removed {
				m.removeLocked(h)
			}
			m.mu.Unlock()
			if removed {
				evictionsTotal.WithLabelValues("crash").Inc()
				m.closeRuntime(h, "crash")
			}
			return
		}
	}
	m.mu.Lock()
	if h.state != StateBusy {
		m.mu.Unlock()
		return
	}
	h.state = StateReady
	h.lastUsed = m.now()
	m.broadcastLocked()
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "release", UserID: h.userID, Fields: map[string]any{"success": success}})
}

// removeLocked marks h evicted and drops it from the table. Caller holds m.mu
// and closes the runtime outside the lock.
func (m *Manager) removeLocked(h *Handle) {
	h.state = StateEvicted
	if m.handles[h.userID] == h {
		delete(m.handles, h.userID)
	}
	m.broadcastLocked()
}

func (m *Manager) closeRuntime(h *Handle, reason string) {
	if h.rt != nil {
		if err := h.rt.Close(); err != nil {
			m.log.Warn().Err(err).Str("user_id", h.userID).Msg("runtime close failed")
		}
	}
	m.log.Info().Str("user_id", h.userID).Str("reason", reason).Msg("model evicted")
	m.publisher.Publish(Event{Name: "evict", UserID: h.userID, Fields: map[string]any{"reason": reason}})
}

// Ready reports whether the pool accepts work.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Capacity returns the configured pool capacity.
func (m *Manager) Capacity() int { return m.capacity }
