package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"replyd/internal/runtime"
)

// fnRuntime adapts a function to runtime.Runtime.
type fnRuntime struct {
	gen  func(ctx context.Context, prompt string, p runtime.Params) (runtime.Output, error)
	seen runtime.Params
}

func (f *fnRuntime) Status(context.Context) (runtime.Status, error) {
	return runtime.Status{Loaded: true}, nil
}

func (f *fnRuntime) Generate(ctx context.Context, prompt string, p runtime.Params) (runtime.Output, error) {
	f.seen = p
	return f.gen(ctx, prompt, p)
}

func (f *fnRuntime) Close() error { return nil }

func reply(text string, tokens int) *fnRuntime {
	return &fnRuntime{gen: func(context.Context, string, runtime.Params) (runtime.Output, error) {
		return runtime.Output{Text: text, Tokens: tokens}, nil
	}}
}

func TestGenerateSuccessClampsTokens(t *testing.T) {
	b := New(Config{TokenCeiling: 64})
	rt := reply("  I missed you today  ", 5)
	res, err := b.Generate(context.Background(), rt, Request{Prompt: "p", MaxTokens: 1000, Temperature: 0.7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "I missed you today" || res.Tokens != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if rt.seen.MaxTokens != 64 || rt.seen.Temperature != 0.7 {
		t.Fatalf("params not clamped/forwarded: %+v", rt.seen)
	}
}

func TestGenerateTruncatesOverlongOutput(t *testing.T) {
	b := New(Config{TokenCeiling: 3})
	res, err := b.Generate(context.Background(), reply("one two three four five", 5), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "one two three" || res.Tokens != 3 {
		t.Fatalf("not truncated: %+v", res)
	}
}

func TestGenerateTimeoutDoesNotWaitForRuntime(t *testing.T) {
	b := New(Config{Timeout: 30 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	rt := &fnRuntime{gen: func(ctx context.Context, _ string, _ runtime.Params) (runtime.Output, error) {
		// ignores cancellation, like a runtime without preemption
		<-release
		return runtime.Output{Text: "late"}, nil
	}}
	start := time.Now()
	_, err := b.Generate(context.Background(), rt, Request{Prompt: "p"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("timeout not enforced")
	}
	if Classify(err) != "generation_timeout" {
		t.Fatalf("classify: %q", Classify(err))
	}
}

func TestGenerateRequestDeadlineShortensTimeout(t *testing.T) {
	b := New(Config{Timeout: time.Minute})
	rt := &fnRuntime{gen: func(ctx context.Context, _ string, _ runtime.Params) (runtime.Output, error) {
		<-ctx.Done()
		return runtime.Output{}, ctx.Err()
	}}
	_, err := b.Generate(context.Background(), rt, Request{Prompt: "p", Deadline: time.Now().Add(20 * time.Millisecond)})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if _, err := b.Generate(context.Background(), rt, Request{Deadline: time.Now().Add(-time.Second)}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout for past deadline, got %v", err)
	}
}

func TestGenerateClassifiesFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		text string
		want error
		tag  string
	}{
		{"exited", runtime.ErrProcessExited, "", ErrProcessCrash, "model_crash"},
		{"malformed", fmt.Errorf("%w: bad json", runtime.ErrMalformed), "", ErrMalformed, "malformed_output"},
		{"empty", nil, "   ", ErrMalformed, "malformed_output"},
		{"other", errors.New("runtime error: oom"), "", ErrProcessCrash, "model_crash"},
		{"runtime deadline", context.DeadlineExceeded, "", ErrTimeout, "generation_timeout"},
	}
	b := New(Config{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := &fnRuntime{gen: func(context.Context, string, runtime.Params) (runtime.Output, error) {
				return runtime.Output{Text: tc.text}, tc.err
			}}
			_, err := b.Generate(context.Background(), rt, Request{Prompt: "p"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if Classify(err) != tc.tag {
				t.Fatalf("classify: got %q want %q", Classify(err), tc.tag)
			}
		})
	}
}

func TestGenerateNilRuntimeIsCrash(t *testing.T) {
	if _, err := New(Config{}).Generate(context.Background(), nil, Request{}); !errors.Is(err, ErrProcessCrash) {
		t.Fatalf("expected ErrProcessCrash, got %v", err)
	}
}

func TestGenerateCallerCancelIsForwarded(t *testing.T) {
	b := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	rt := &fnRuntime{gen: func(gctx context.Context, _ string, _ runtime.Params) (runtime.Output, error) {
		cancel()
		<-gctx.Done()
		return runtime.Output{}, gctx.Err()
	}}
	_, err := b.Generate(ctx, rt, Request{Prompt: "p"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if Classify(err) != "" {
		t.Fatalf("caller cancel classified as %q", Classify(err))
	}
}

func TestGenerateDropsOutOfRangeConfidence(t *testing.T) {
	bad := 3.0
	rt := &fnRuntime{gen: func(context.Context, string, runtime.Params) (runtime.Output, error) {
		return runtime.Output{Text: strings.Repeat("a ", 4), Confidence: &bad}, nil
	}}
	res, err := New(Config{}).Generate(context.Background(), rt, Request{Prompt: "p"})
	if err != nil || res.Confidence != nil {
		t.Fatalf("expected confidence dropped: %+v err=%v", res, err)
	}
}
