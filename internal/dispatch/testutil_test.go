package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"replyd/internal/bridge"
	"replyd/internal/convo"
	"replyd/internal/fallback"
	"replyd/internal/manager"
	"replyd/internal/runtime"
	"replyd/pkg/types"
)

// scriptRuntime answers Generate with gen and reports itself loaded.
type scriptRuntime struct {
	userID string
	gen    func(ctx context.Context, prompt string) (runtime.Output, error)
}

func (r *scriptRuntime) Status(context.Context) (runtime.Status, error) {
	return runtime.Status{Loaded: true, Version: "v-" + r.userID}, nil
}

func (r *scriptRuntime) Generate(ctx context.Context, prompt string, _ runtime.Params) (runtime.Output, error) {
	return r.gen(ctx, prompt)
}

func (r *scriptRuntime) Close() error { return nil }

func replyWith(text string) func(context.Context, string) (runtime.Output, error) {
	return func(context.Context, string) (runtime.Output, error) {
		return runtime.Output{Text: text, Tokens: len(text) / 4}, nil
	}
}

// recordSink records events; onSend, when set, runs after each record and
// its error is returned to the dispatcher.
type recordSink struct {
	mu     sync.Mutex
	events []types.StreamEvent
	onSend func(n int, e types.StreamEvent) error
}

func (s *recordSink) Send(e types.StreamEvent) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	n := len(s.events)
	hook := s.onSend
	s.mu.Unlock()
	if hook != nil {
		return hook(n, e)
	}
	return nil
}

func (s *recordSink) Events() []types.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.StreamEvent(nil), s.events...)
}

func (s *recordSink) last() types.StreamEvent {
	ev := s.Events()
	if len(ev) == 0 {
		return types.StreamEvent{}
	}
	return ev[len(ev)-1]
}

type harness struct {
	d      *Dispatcher
	store  *convo.Store
	pool   *manager.Manager
	corpus *fallback.MemoryCorpus
}

type harnessOpts struct {
	capacity   int
	maxWait    time.Duration
	genTimeout time.Duration
	fallback   Fallback
	voice      VoiceQueue
	voiceGrace time.Duration
}

func newHarness(t *testing.T, gen func(context.Context, string) (runtime.Output, error), o harnessOpts) *harness {
	t.Helper()
	pool := manager.New(manager.Config{
		Capacity: o.capacity,
		MaxWait:  o.maxWait,
		Loader: runtime.LoaderFunc(func(_ context.Context, userID string) (runtime.Runtime, error) {
			return &scriptRuntime{userID: userID, gen: gen}, nil
		}),
	})
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	corpus := fallback.NewMemoryCorpus()
	corpus.Add("u1", fallback.Entry{Category: "weekend", Prompt: "how was your weekend", Response: "Lazy and lovely, thanks for asking."})
	fb := o.fallback
	if fb == nil {
		fb = fallback.New(corpus)
	}
	store := convo.NewStore()
	d := New(Config{
		Store:      store,
		Pool:       pool,
		Generator:  bridge.New(bridge.Config{Timeout: o.genTimeout}),
		Fallback:   fb,
		Voice:      o.voice,
		VoiceGrace: o.voiceGrace,
	})
	return &harness{d: d, store: store, pool: pool, corpus: corpus}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func chatReq(sessionID, msg string) types.ChatRequest {
	return types.ChatRequest{SessionID: sessionID, Message: msg}
}

// waitFor polls cond until it holds or the test deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

type failingFallback struct{}

func (failingFallback) Synthesize(context.Context, string, string) (fallback.Response, error) {
	return fallback.Response{}, fallback.ErrCorpusUnavailable
}
