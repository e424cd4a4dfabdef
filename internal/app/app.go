// Package app assembles replyd's components from configuration and exposes
// them as the service behind the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"replyd/internal/bridge"
	"replyd/internal/config"
	"replyd/internal/convo"
	"replyd/internal/dispatch"
	"replyd/internal/eventbus"
	"replyd/internal/fallback"
	"replyd/internal/manager"
	"replyd/internal/persist"
	"replyd/internal/registry"
	"replyd/internal/runtime"
	"replyd/internal/voice"
)

// App owns every long-lived component of a running server.
type App struct {
	cfg   config.Config
	log   zerolog.Logger
	store *convo.Store
	pool  *manager.Manager
	disp  *dispatch.Dispatcher
	reg   *registry.Registry

	closeOnce sync.Once
	closers   []func(context.Context) error
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

type options struct {
	loader runtime.Loader
	corpus fallback.Corpus
	synth  voice.Synthesizer
}

// WithLoader replaces the configured runtime backend.
func WithLoader(l runtime.Loader) Option { return func(o *options) { o.loader = l } }

// WithCorpus replaces the configured fallback corpus source.
func WithCorpus(c fallback.Corpus) Option { return func(o *options) { o.corpus = c } }

// WithSynthesizer replaces the HTTP voice synthesizer.
func WithSynthesizer(s voice.Synthesizer) Option { return func(o *options) { o.synth = s } }

// New builds an App from cfg. cfg should already have defaults applied.
// On error every component opened so far is closed.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	a := &App{cfg: cfg, log: log}
	if err := a.build(ctx, o); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) { a.closers = append(a.closers, fn) }

func (a *App) build(ctx context.Context, o options) error {
	cfg := a.cfg
	log := a.log

	if dir := strings.TrimSpace(cfg.Runtime.ModelsDir); dir != "" {
		reg, err := registry.Open(dir)
		if err != nil {
			return fmt.Errorf("open model registry: %w", err)
		}
		a.reg = reg
		log.Info().Str("dir", dir).Int("models", len(reg.Models())).Msg("model registry loaded")
	}

	loader := o.loader
	if loader == nil {
		var err error
		if loader, err = a.newLoader(); err != nil {
			return err
		}
	}

	var pub manager.EventPublisher
	if brokers := strings.TrimSpace(cfg.Events.KafkaBrokers); brokers != "" {
		kp := eventbus.NewKafkaPublisher(eventbus.Config{Brokers: brokers, Topic: cfg.Events.KafkaTopic, Logger: &log})
		a.onClose(func(context.Context) error { return kp.Close() })
		pub = kp
	}

	a.pool = manager.New(manager.Config{
		Capacity:     cfg.Pool.Capacity,
		MaxWait:      cfg.Pool.MaxWait.D(),
		LoadTimeout:  cfg.Pool.LoadTimeout.D(),
		DrainTimeout: cfg.Pool.DrainTimeout.D(),
		Loader:       loader,
		Publisher:    pub,
		Logger:       &log,
	})
	// registered after the publisher so it runs first: evictions on shutdown
	// are still published
	a.onClose(a.pool.Shutdown)

	turns, sqlite, err := a.openTurnStore(ctx)
	if err != nil {
		return err
	}
	a.store = convo.NewStore(convo.WithTurnStore(turns), convo.WithLogger(log))

	corpus := o.corpus
	if corpus == nil {
		if corpus, err = a.openCorpus(sqlite); err != nil {
			return err
		}
	}
	fb := fallback.New(corpus, fallback.WithTimeout(cfg.Fallback.Timeout.D()), fallback.WithLogger(log))

	dcfg := dispatch.Config{
		Store:      a.store,
		Pool:       a.pool,
		Generator:  bridge.New(bridge.Config{Timeout: cfg.Bridge.Timeout.D(), TokenCeiling: cfg.Bridge.TokenCeiling, Logger: &log}),
		Fallback:   fb,
		ChunkWords: cfg.Dispatch.ChunkWords,
		VoiceGrace: cfg.Voice.Grace.D(),
		Logger:     &log,
	}
	if cfg.Voice.Enabled {
		vc, err := a.newVoice(ctx, o.synth)
		if err != nil {
			return err
		}
		dcfg.Voice = vc
	}
	a.disp = dispatch.New(dcfg)
	return nil
}

// newLoader builds the configured runtime backend.
func (a *App) newLoader() (runtime.Loader, error) {
	rc := a.cfg.Runtime
	backend := strings.ToLower(strings.TrimSpace(rc.Backend))
	if backend == "static" {
		return runtime.StaticLoader{}, nil
	}
	if a.reg == nil {
		return nil, fmt.Errorf("runtime backend %q requires runtime.models_dir", backend)
	}
	rlog := a.log.With().Str("component", "runtime").Logger()
	switch backend {
	case "pipe":
		return runtime.PipeLoader{
			Command:      rc.Command,
			Args:         rc.Args,
			Resolver:     a.reg,
			ReadyTimeout: rc.ReadyTimeout.D(),
			Log:          rlog,
		}, nil
	case "llamaserver":
		return runtime.LlamaServerLoader{
			Bin:          rc.LlamaBin,
			Host:         rc.Host,
			PortStart:    rc.PortStart,
			PortEnd:      rc.PortEnd,
			CtxSize:      rc.CtxSize,
			NGL:          rc.NGL,
			Threads:      rc.Threads,
			Resolver:     a.reg,
			ReadyTimeout: rc.ReadyTimeout.D(),
			Log:          rlog,
		}, nil
	case "llama":
		if !runtime.LlamaBuilt {
			a.log.Warn().Msg("llama backend selected but binary built without the 'llama' tag; loads will fail")
		}
		return runtime.LlamaLoader{Resolver: a.reg, CtxSize: rc.CtxSize, Threads: rc.Threads}, nil
	default:
		return nil, fmt.Errorf("unknown runtime backend: %q", rc.Backend)
	}
}

// openTurnStore returns the configured TurnStore and, for the sqlite
// backend, the underlying store so the corpus can share it.
func (a *App) openTurnStore(ctx context.Context) (convo.TurnStore, *persist.SQLiteStore, error) {
	pc := a.cfg.Persist
	switch strings.ToLower(pc.Backend) {
	case "", "memory":
		return persist.NewMemoryStore(), nil, nil
	case "redis":
		rs, err := persist.NewRedisStore(ctx, persist.RedisOptions{
			Addr:     pc.RedisAddr,
			Password: pc.RedisPassword,
			DB:       pc.RedisDB,
			TTL:      pc.TTL.D(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis turn store: %w", err)
		}
		a.onClose(func(context.Context) error { return rs.Close() })
		return rs, nil, nil
	case "sqlite":
		ss, err := persist.OpenSQLite(pc.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite turn store: %w", err)
		}
		a.onClose(func(context.Context) error { return ss.Close() })
		return ss, ss, nil
	default:
		return nil, nil, fmt.Errorf("unknown persist backend: %q", pc.Backend)
	}
}

func (a *App) openCorpus(shared *persist.SQLiteStore) (fallback.Corpus, error) {
	fc := a.cfg.Fallback
	switch strings.ToLower(fc.Source) {
	case "", "memory":
		return fallback.NewMemoryCorpus(), nil
	case "dir":
		if strings.TrimSpace(fc.CorpusDir) == "" {
			return nil, errors.New("fallback source dir requires fallback.corpus_dir")
		}
		return fallback.FileCorpus{Dir: fc.CorpusDir}, nil
	case "sqlite":
		if shared != nil {
			return shared, nil
		}
		ss, err := persist.OpenSQLite(a.cfg.Persist.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite corpus: %w", err)
		}
		a.onClose(func(context.Context) error { return ss.Close() })
		return ss, nil
	default:
		return nil, fmt.Errorf("unknown fallback source: %q", fc.Source)
	}
}

func (a *App) newVoice(ctx context.Context, synth voice.Synthesizer) (*voice.Coordinator, error) {
	vc := a.cfg.Voice
	if synth == nil {
		if strings.TrimSpace(vc.URL) == "" {
			return nil, errors.New("voice enabled but voice.url is empty")
		}
		synth = voice.HTTPSynthesizer{BaseURL: vc.URL}
	}
	var store voice.AudioStore
	if m := vc.MinIO; strings.TrimSpace(m.Endpoint) != "" {
		ms, err := voice.NewMinIOStore(ctx, voice.MinIOConfig{
			Endpoint:        m.Endpoint,
			AccessKeyID:     m.AccessKeyID,
			SecretAccessKey: m.SecretAccessKey,
			UseSSL:          m.UseSSL,
			Bucket:          m.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("open voice store: %w", err)
		}
		store = ms
	}
	c := voice.NewCoordinator(synth, voice.Config{
		Workers:   vc.Workers,
		QueueSize: vc.Queue,
		Timeout:   vc.Timeout.D(),
		Store:     store,
		Logger:    &a.log,
	})
	a.onClose(func(context.Context) error { c.Close(); return nil })
	return c, nil
}

// Close shuts the pool down and releases every backing connection, newest
// first. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// ReloadModels rescans the models directory.
func (a *App) ReloadModels() error {
	if a.reg == nil {
		return nil
	}
	return a.reg.Reload()
}
