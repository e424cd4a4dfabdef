// Package manager owns the capacity-bounded pool of loaded per-user models.
// It is structured into small files by concern:
//
//   - manager.go: Manager type, Acquire/Release and the load goroutine.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: handle lifecycle states and the Handle type.
//   - errors.go: pool error sentinels and IsX helpers.
//   - evict.go: LRU victim selection, explicit Evict and Shutdown.
//   - ops.go: background operations like Warm.
//   - status.go: Status reporting.
//   - events.go: lifecycle events and publishers.
//   - metrics.go: Prometheus collectors.
//
// All handle-table reads and writes happen under one mutex. Waiters block on
// a change channel that is closed and replaced on every transition.
//
// Handle lifecycle:
//
//	unloaded -> loading -> ready <-> busy -> evicted
//	               |
//	               +-> failed
//
// At most Capacity handles are loading, ready or busy at any instant. Busy and
// loading handles are never chosen for eviction.
package manager
