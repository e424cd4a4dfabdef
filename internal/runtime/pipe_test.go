package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// TestPipeHelperProcess is not a real test. It is the child process spawned
// by the pipe tests, selected via REPLYD_PIPE_HELPER.
func TestPipeHelperProcess(t *testing.T) {
	mode := os.Getenv("REPLYD_PIPE_HELPER")
	if mode == "" {
		return
	}
	defer os.Exit(0)
	if mode == "exit" {
		fmt.Fprintln(os.Stderr, "model file corrupt")
		os.Exit(3)
	}
	sc := bufio.NewScanner(os.Stdin)
	out := json.NewEncoder(os.Stdout)
	generates := 0
	for sc.Scan() {
		var req pipeRequest
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			continue
		}
		switch req.Op {
		case "status":
			_ = out.Encode(map[string]any{"id": req.ID, "loaded": true, "version": "v-" + os.Getenv("REPLYD_USER_ID")})
		case "generate":
			generates++
			switch mode {
			case "malformed":
				fmt.Fprintln(os.Stdout, "{not json")
			case "crash":
				os.Exit(2)
			case "slow":
				if generates == 1 {
					time.Sleep(300 * time.Millisecond)
				}
				_ = out.Encode(map[string]any{"id": req.ID, "text": fmt.Sprintf("reply %d", generates), "tokens": 2})
			default:
				_ = out.Encode(map[string]any{"id": req.ID, "text": "echo: " + req.Prompt, "tokens": 3, "ms": 12, "confidence": 0.8})
			}
		}
	}
}

func helperLoader(mode string) PipeLoader {
	return PipeLoader{
		Command:      os.Args[0],
		Args:         []string{"-test.run=TestPipeHelperProcess"},
		Env:          []string{"REPLYD_PIPE_HELPER=" + mode},
		ReadyTimeout: 5 * time.Second,
	}
}

func TestPipeLoadGenerateClose(t *testing.T) {
	rt, err := helperLoader("ok").Load(testCtx(t), "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	st, err := rt.Status(testCtx(t))
	if err != nil || !st.Loaded || st.Version != "v-u1" {
		t.Fatalf("status: %+v err=%v", st, err)
	}
	out, err := rt.Generate(testCtx(t), "hi", Params{MaxTokens: 8})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Text != "echo: hi" || out.Tokens != 3 || out.Duration != 12*time.Millisecond {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.Confidence == nil || *out.Confidence != 0.8 {
		t.Fatalf("confidence not propagated: %+v", out.Confidence)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := rt.Generate(testCtx(t), "again", Params{}); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestPipeMalformedFrame(t *testing.T) {
	rt, err := helperLoader("malformed").Load(testCtx(t), "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()
	_, err = rt.Generate(testCtx(t), "hi", Params{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestPipeCrashDuringGenerate(t *testing.T) {
	rt, err := helperLoader("crash").Load(testCtx(t), "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()
	_, err = rt.Generate(testCtx(t), "hi", Params{})
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("expected ErrProcessExited, got %v", err)
	}
	if _, err := rt.Status(testCtx(t)); !errors.Is(err, ErrProcessExited) {
		t.Fatalf("status after crash: %v", err)
	}
}

func TestPipeExitBeforeReady(t *testing.T) {
	_, err := helperLoader("exit").Load(testCtx(t), "u1")
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("expected ErrProcessExited, got %v", err)
	}
	if !strings.Contains(err.Error(), "model file corrupt") {
		t.Fatalf("stderr tail missing from %v", err)
	}
}

func TestPipeDropsAnswerToAbandonedCall(t *testing.T) {
	rt, err := helperLoader("slow").Load(testCtx(t), "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := rt.Generate(ctx, "first", Params{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	out, err := rt.Generate(testCtx(t), "second", Params{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Text != "reply 2" {
		t.Fatalf("got stale answer %q", out.Text)
	}
}

func TestPipeUnknownUser(t *testing.T) {
	l := helperLoader("ok")
	l.Resolver = mapResolver{}
	if _, err := l.Load(testCtx(t), "ghost"); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestPipeNoCommand(t *testing.T) {
	if _, err := (PipeLoader{}).Load(testCtx(t), "u1"); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}
