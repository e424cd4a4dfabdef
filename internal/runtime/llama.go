//go:build llama

package runtime

// The rpath of $ORIGIN lets the loader find libllama.so next to the binary;
// -L points the linker at ./bin when building the 'llama' variant.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBuilt reports whether this binary carries the in-process llama runtime.
const LlamaBuilt = true

// LlamaLoader loads a user's model in-process with go-llama.cpp.
type LlamaLoader struct {
	Resolver ModelResolver
	CtxSize  int
	Threads  int
}

func (l LlamaLoader) Load(ctx context.Context, userID string) (Runtime, error) {
	path, err := resolvePath(l.Resolver, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, ErrModelNotFound(userID)
	}
	type loaded struct {
		m   *llama.LLama
		err error
	}
	ch := make(chan loaded, 1)
	go func() {
		m, err := llama.New(path, llama.SetContext(zn(l.CtxSize, 2048)))
		ch <- loaded{m, err}
	}()
	select {
	case <-ctx.Done():
		// free the model once the load finishes
		go func() {
			if r := <-ch; r.m != nil {
				r.m.Free()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		version := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return &llamaRuntime{model: r.m, threads: l.Threads, version: version}, nil
	}
}

type llamaRuntime struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
	version string
}

func (r *llamaRuntime) Status(ctx context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Loaded: r.model != nil, Version: r.version}, nil
}

func (r *llamaRuntime) Generate(ctx context.Context, prompt string, p Params) (Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return Output{}, ErrClosed
	}
	start := time.Now()
	tokens := 0
	r.model.SetTokenCallback(func(string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		tokens++
		return true
	})
	text, err := r.model.Predict(prompt, predictOptions(p, r.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, err
	}
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}
	if strings.TrimSpace(text) == "" && tokens == 0 {
		return Output{}, errors.New("llama: empty prediction")
	}
	return Output{Text: text, Tokens: tokens, Duration: time.Since(start)}, nil
}

func (r *llamaRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func predictOptions(p Params, threads int) []llama.PredictOption {
	temp := float32(p.Temperature)
	if temp <= 0 {
		temp = llama.DefaultOptions.Temperature
	}
	po := []llama.PredictOption{
		llama.SetTokens(zn(p.MaxTokens, 1)),
		llama.SetThreads(zn(threads, 1)),
		llama.SetTemperature(temp),
		llama.SetTopP(llama.DefaultOptions.TopP),
		llama.SetTopK(llama.DefaultOptions.TopK),
		llama.SetPenalty(llama.DefaultOptions.Penalty),
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
