package runtime

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// buildFakeServer builds the fake llama server used for subprocess tests and returns its path.
func buildFakeServer(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "fake_llama_server")
	cmd := exec.Command("go", "build", "-o", bin, "./testdata/fake_llama_server.go")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build fake server: %v: %s", err, string(out))
	}
	return bin
}

func fakeModel(t *testing.T) (string, mapResolver) {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "u1.gguf")
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p, mapResolver{"u1": p}
}

func TestLlamaServerLoadGenerateStop(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	_, res := fakeModel(t)
	l := LlamaServerLoader{Bin: buildFakeServer(t), Resolver: res}
	rt, err := l.Load(testCtx(t), "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	st, err := rt.Status(testCtx(t))
	if err != nil || !st.Loaded || st.Version != "u1" {
		t.Fatalf("status: %+v err=%v", st, err)
	}
	out, err := rt.Generate(testCtx(t), "hello", Params{MaxTokens: 16})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Text != "I hear you, hello" || out.Tokens != 4 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if _, err := rt.Generate(testCtx(t), "garbage", Params{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	_ = rt.Close()
	if _, err := rt.Status(testCtx(t)); err == nil {
		t.Fatalf("expected status error after Close")
	}
}

func TestLlamaServerMissingBinary(t *testing.T) {
	_, res := fakeModel(t)
	l := LlamaServerLoader{Bin: filepath.Join(t.TempDir(), "nope"), Resolver: res}
	if _, err := l.Load(testCtx(t), "u1"); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestLlamaServerUnknownUser(t *testing.T) {
	self, _ := os.Executable()
	l := LlamaServerLoader{Bin: self, Resolver: mapResolver{}}
	if _, err := l.Load(testCtx(t), "ghost"); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestCheckBinary(t *testing.T) {
	dir := t.TempDir()
	if r := CheckBinary("pipe", dir, ""); r.Found || r.Error == "" {
		t.Fatalf("directory accepted: %+v", r)
	}
	f := filepath.Join(dir, "bin")
	_ = os.WriteFile(f, []byte("#!/bin/sh\n"), 0o755)
	if r := CheckBinary("pipe", f, ""); !r.Found || r.Path != f {
		t.Fatalf("file rejected: %+v", r)
	}
	if r := CheckBinary("pipe", "", ""); r.Found {
		t.Fatalf("empty path accepted: %+v", r)
	}
}
