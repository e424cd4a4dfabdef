package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LlamaServerLoader spawns a llama.cpp server per user model and talks to it
// over its OpenAI-compatible HTTP API.
type LlamaServerLoader struct {
	Bin          string
	Host         string
	PortStart    int
	PortEnd      int
	CtxSize      int
	NGL          int
	Threads      int
	ExtraArgs    []string
	Resolver     ModelResolver
	ReadyTimeout time.Duration
	Log          zerolog.Logger
	// Client defaults to a client without a global timeout; every call carries a context deadline.
	Client *http.Client
}

func (l LlamaServerLoader) Load(ctx context.Context, userID string) (Runtime, error) {
	bin := strings.TrimSpace(l.Bin)
	if bin == "" {
		bin = DiscoverLlamaBin()
	}
	if rep := CheckBinary("llama-server", bin, ""); !rep.Found {
		return nil, ErrDependencyUnavailable("llama-server not usable: " + rep.Error)
	}
	modelPath, err := resolvePath(l.Resolver, userID)
	if err != nil {
		return nil, err
	}
	if modelPath == "" {
		return nil, ErrModelNotFound(userID)
	}
	host := strings.TrimSpace(l.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	var port int
	if l.PortStart > 0 && l.PortEnd >= l.PortStart {
		port, err = pickPortInRange(host, l.PortStart, l.PortEnd)
	} else {
		port, err = pickFreePort(host)
	}
	if err != nil {
		return nil, err
	}
	args := []string{"-m", modelPath, "--host", host, "--port", strconv.Itoa(port)}
	if l.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(l.CtxSize))
	}
	if l.NGL > 0 {
		args = append(args, "-ngl", strconv.Itoa(l.NGL))
	}
	if l.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(l.Threads))
	}
	args = append(args, expandArgs(l.ExtraArgs, userID, modelPath)...)

	cmd := exec.Command(bin, args...)
	cmd.Dir = filepath.Dir(modelPath)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	cli := l.Client
	if cli == nil {
		cli = &http.Client{}
	}
	r := &llamaServerRuntime{
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		version: strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
		client:  cli,
		cmd:     cmd,
		exited:  make(chan struct{}),
		closed:  make(chan struct{}),
		log:     l.Log.With().Str("runtime", "llama_server").Str("user_id", userID).Int("pid", cmd.Process.Pid).Logger(),
	}
	go func() {
		r.exitErr = cmd.Wait()
		close(r.exited)
	}()
	r.log.Info().Str("model", modelPath).Int("port", port).Msg("runtime started")

	wait := l.ReadyTimeout
	if wait <= 0 {
		wait = 30 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for {
		select {
		case <-r.exited:
			return nil, fmt.Errorf("%w before ready: %v; stderr tail: %s", ErrProcessExited, r.exitErr, stderr.String())
		default:
		}
		if r.healthy(rctx, time.Second) {
			r.log.Info().Str("url", r.baseURL).Msg("runtime ready")
			return r, nil
		}
		select {
		case <-rctx.Done():
			_ = r.Close()
			return nil, fmt.Errorf("llama-server not ready at %s: %w", r.baseURL, rctx.Err())
		case <-r.exited:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

type llamaServerRuntime struct {
	baseURL string
	version string
	client  *http.Client
	cmd     *exec.Cmd
	log     zerolog.Logger

	exited  chan struct{}
	exitErr error
	once    sync.Once
	closed  chan struct{}
}

// healthy checks that the server answers /v1/models with 2xx.
func (r *llamaServerRuntime) healthy(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (r *llamaServerRuntime) gone() error {
	select {
	case <-r.exited:
		return ErrProcessExited
	default:
	}
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}
	return nil
}

func (r *llamaServerRuntime) Status(ctx context.Context) (Status, error) {
	if err := r.gone(); err != nil {
		return Status{}, err
	}
	return Status{Loaded: r.healthy(ctx, 2*time.Second), Version: r.version}, nil
}

type completionRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (r *llamaServerRuntime) Generate(ctx context.Context, prompt string, p Params) (Output, error) {
	if err := r.gone(); err != nil {
		return Output{}, err
	}
	start := time.Now()
	body, _ := json.Marshal(completionRequest{
		Prompt:      prompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Stop:        p.Stop,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return Output{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		if gerr := r.gone(); gerr != nil {
			return Output{}, fmt.Errorf("%w: %v", gerr, err)
		}
		return Output{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tail := string(raw)
		if len(tail) > 512 {
			tail = tail[:512]
		}
		return Output{}, fmt.Errorf("llama server http error: %s: %s", resp.Status, tail)
	}
	var cr completionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(cr.Choices) == 0 {
		return Output{}, fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return Output{
		Text:     cr.Choices[0].Text,
		Tokens:   cr.Usage.CompletionTokens,
		Duration: time.Since(start),
	}, nil
}

func (r *llamaServerRuntime) Close() error {
	r.once.Do(func() {
		close(r.closed)
		terminate(r.cmd, r.exited)
		r.log.Info().Msg("runtime stopped")
	})
	return nil
}
