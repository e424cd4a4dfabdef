package manager

import (
	"time"

	"replyd/internal/runtime"
)

// State represents the lifecycle state of a handle.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateBusy     State = "busy"
	StateFailed   State = "failed"
	StateEvicted  State = "evicted"
)

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool { return s == StateFailed || s == StateEvicted }

// Handle is one user's loaded model. A caller owns a handle between a
// successful Acquire and the matching Release.
type Handle struct {
	userID   string
	rt       runtime.Runtime
	version  string
	loadedAt time.Time
	lastUsed time.Time
	state    State
	err      error
	// acquirers currently waiting on this handle; never evicted while > 0
	waiters int
}

// UserID returns the owner of the handle.
func (h *Handle) UserID() string { return h.userID }

// Runtime returns the loaded runtime. Only valid while the handle is held.
func (h *Handle) Runtime() runtime.Runtime { return h.rt }

// Version returns the runtime-reported model version.
func (h *Handle) Version() string { return h.version }
