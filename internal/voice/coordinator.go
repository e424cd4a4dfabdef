package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 16
	DefaultTimeout   = 30 * time.Second
)

// Config configures a Coordinator. Zero values take defaults.
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds one synthesis including storage.
	Timeout time.Duration
	// VoiceID maps a user to a voice; nil uses the user id.
	VoiceID func(userID string) string
	Store   AudioStore
	Logger  *zerolog.Logger
}

type job struct {
	userID string
	text   string
	fut    *Future
}

// Coordinator runs voice synthesis jobs on a fixed set of workers.
type Coordinator struct {
	synth   Synthesizer
	store   AudioStore
	timeout time.Duration
	voiceID func(string) string
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewCoordinator starts cfg.Workers workers over synth.
func NewCoordinator(synth Synthesizer, cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.VoiceID == nil {
		cfg.VoiceID = func(u string) string { return u }
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	c := &Coordinator{
		synth:   synth,
		store:   cfg.Store,
		timeout: cfg.Timeout,
		voiceID: cfg.VoiceID,
		log:     log,
		jobs:    make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Enqueue schedules text for synthesis. It never blocks: a full queue or a
// closed coordinator yields an already-failed future.
func (c *Coordinator) Enqueue(userID, text string) *Future {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		voiceJobs.WithLabelValues("rejected").Inc()
		return failedFuture(fmt.Errorf("%w: coordinator closed", ErrVoiceSynthesisFailed))
	}
	f := newFuture()
	select {
	case c.jobs <- job{userID: userID, text: text, fut: f}:
		voiceQueueDepth.Set(float64(len(c.jobs)))
		return f
	default:
		voiceJobs.WithLabelValues("rejected").Inc()
		c.log.Warn().Str("user_id", userID).Msg("voice queue full")
		return failedFuture(fmt.Errorf("%w: queue full", ErrVoiceSynthesisFailed))
	}
}

// Close stops accepting work and waits for queued jobs to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for j := range c.jobs {
		voiceQueueDepth.Set(float64(len(c.jobs)))
		e, err := c.run(j)
		if err != nil {
			voiceJobs.WithLabelValues("failed").Inc()
			c.log.Warn().Err(err).Str("user_id", j.userID).Msg("voice synthesis failed")
			j.fut.resolve(Enrichment{}, fmt.Errorf("%w: %v", ErrVoiceSynthesisFailed, err))
			continue
		}
		voiceJobs.WithLabelValues("ok").Inc()
		j.fut.resolve(e, nil)
	}
}

func (c *Coordinator) run(j job) (Enrichment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	start := time.Now()
	a, err := c.synth.Synthesize(ctx, j.text, c.voiceID(j.userID))
	if err != nil {
		return Enrichment{}, err
	}
	ref := a.Ref
	if len(a.Data) > 0 && c.store != nil {
		if ref, err = c.store.Put(ctx, j.userID, a); err != nil {
			return Enrichment{}, fmt.Errorf("store audio: %w", err)
		}
	}
	if ref == "" {
		return Enrichment{}, fmt.Errorf("no audio reference")
	}
	d := a.Duration
	if d <= 0 {
		d = time.Since(start)
	}
	voiceDuration.Observe(d.Seconds())
	return Enrichment{AudioRef: ref, Duration: d, Quality: a.Quality}, nil
}
