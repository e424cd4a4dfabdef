package manager

import (
	"time"

	"github.com/rs/zerolog"

	"replyd/internal/runtime"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultCapacity     = 3
	defaultMaxWait      = 10 * time.Second
	defaultLoadTimeout  = 60 * time.Second
	defaultDrainTimeout = 5 * time.Second
	defaultProbeTimeout = 2 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Capacity is the maximum number of concurrently loaded models.
	Capacity int
	// MaxWait bounds Acquire when the caller's context has no deadline.
	MaxWait time.Duration
	// LoadTimeout bounds a single model load.
	LoadTimeout time.Duration
	// DrainTimeout bounds how long Evict waits for a busy handle.
	DrainTimeout time.Duration
	// ProbeTimeout bounds the status probe after a failed generation.
	ProbeTimeout time.Duration
	Loader       runtime.Loader
	Publisher    EventPublisher
	Logger       *zerolog.Logger
}

// New constructs a Manager from Config.
func New(cfg Config) *Manager {
	m := &Manager{
		handles:      make(map[string]*Handle),
		changed:      make(chan struct{}),
		capacity:     cfg.Capacity,
		maxWait:      cfg.MaxWait,
		loadTimeout:  cfg.LoadTimeout,
		drainTimeout: cfg.DrainTimeout,
		probeTimeout: cfg.ProbeTimeout,
		loader:       cfg.Loader,
		publisher:    cfg.Publisher,
		now:          time.Now,
	}
	if m.capacity <= 0 {
		m.capacity = DefaultCapacity
	}
	if m.maxWait <= 0 {
		m.maxWait = defaultMaxWait
	}
	if m.loadTimeout <= 0 {
		m.loadTimeout = defaultLoadTimeout
	}
	if m.drainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	}
	if m.probeTimeout <= 0 {
		m.probeTimeout = defaultProbeTimeout
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "pool").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	if m.loader == nil {
		m.loader = runtime.StaticLoader{}
	}
	m.startTime = m.now()
	return m
}
