package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PipeLoader spawns one child process per user. The child reads one JSON
// request per line on stdin and writes one JSON response per line on stdout:
//
//	-> {"id":1,"op":"status"}
//	<- {"id":1,"loaded":true,"version":"u42-2024-05"}
//	-> {"id":2,"op":"generate","prompt":"...","max_tokens":256,"temperature":0.7}
//	<- {"id":2,"text":"...","tokens":41,"ms":812,"confidence":0.71}
//
// A response carrying "error" fails that call. Args may reference {user} and
// {model}; the child also sees REPLYD_USER_ID and REPLYD_MODEL_PATH.
type PipeLoader struct {
	Command      string
	Args         []string
	Env          []string
	Resolver     ModelResolver
	ReadyTimeout time.Duration
	Log          zerolog.Logger
}

type pipeRequest struct {
	ID          uint64   `json:"id"`
	Op          string   `json:"op"`
	Prompt      string   `json:"prompt,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type pipeResponse struct {
	ID         uint64   `json:"id"`
	Loaded     bool     `json:"loaded,omitempty"`
	Version    string   `json:"version,omitempty"`
	Text       *string  `json:"text,omitempty"`
	Tokens     int      `json:"tokens,omitempty"`
	MS         int64    `json:"ms,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type pipeFrame struct {
	resp pipeResponse
	err  error
}

// Load starts the child and waits until it reports loaded.
func (l PipeLoader) Load(ctx context.Context, userID string) (Runtime, error) {
	if strings.TrimSpace(l.Command) == "" {
		return nil, ErrDependencyUnavailable("pipe runtime command not configured")
	}
	path, err := resolvePath(l.Resolver, userID)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(l.Command, expandArgs(l.Args, userID, path)...)
	cmd.Env = append(append(os.Environ(), l.Env...), "REPLYD_USER_ID="+userID, "REPLYD_MODEL_PATH="+path)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pipe runtime: %w", err)
	}
	r := &pipeRuntime{
		userID: userID,
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		frames: make(chan pipeFrame, 8),
		exited: make(chan struct{}),
		done:   make(chan struct{}),
		log:    l.Log.With().Str("runtime", "pipe").Str("user_id", userID).Int("pid", cmd.Process.Pid).Logger(),
	}
	go r.readLoop(stdout)
	r.log.Info().Str("command", l.Command).Msg("runtime started")

	wait := l.ReadyTimeout
	if wait <= 0 {
		wait = 30 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for {
		st, err := r.Status(rctx)
		if err == nil && st.Loaded {
			r.log.Info().Str("version", st.Version).Msg("runtime ready")
			return r, nil
		}
		if errors.Is(err, ErrProcessExited) {
			_ = r.Close()
			return nil, fmt.Errorf("%w before ready: %v; stderr tail: %s", ErrProcessExited, r.exitErr, stderr.String())
		}
		if err != nil && rctx.Err() == nil && !errors.Is(err, ErrMalformed) {
			_ = r.Close()
			return nil, err
		}
		select {
		case <-rctx.Done():
			_ = r.Close()
			return nil, fmt.Errorf("pipe runtime not ready: %w", rctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

type pipeRuntime struct {
	userID string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	log    zerolog.Logger

	mu     sync.Mutex // one call on the wire at a time
	seq    uint64
	frames chan pipeFrame

	exited  chan struct{}
	exitErr error
	done    chan struct{}
	once    sync.Once
}

func (r *pipeRuntime) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var f pipeFrame
		if err := json.Unmarshal([]byte(line), &f.resp); err != nil {
			f.err = fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		select {
		case r.frames <- f:
		case <-r.done:
		}
	}
	// Wait only after stdout is drained.
	r.exitErr = r.cmd.Wait()
	close(r.exited)
	close(r.frames)
	r.log.Debug().AnErr("exit", r.exitErr).Msg("runtime exited")
}

func (r *pipeRuntime) call(ctx context.Context, req pipeRequest) (pipeResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return pipeResponse{}, ErrClosed
	case <-r.exited:
		return pipeResponse{}, ErrProcessExited
	default:
	}
	r.seq++
	req.ID = r.seq
	b, err := json.Marshal(req)
	if err != nil {
		return pipeResponse{}, err
	}
	if _, err := r.stdin.Write(append(b, '\n')); err != nil {
		return pipeResponse{}, fmt.Errorf("%w: write: %v", ErrProcessExited, err)
	}
	for {
		select {
		case <-ctx.Done():
			return pipeResponse{}, ctx.Err()
		case f, ok := <-r.frames:
			if !ok {
				return pipeResponse{}, ErrProcessExited
			}
			if f.err != nil {
				return pipeResponse{}, f.err
			}
			if f.resp.ID != req.ID {
				// answer to an abandoned call
				continue
			}
			if f.resp.Error != "" {
				return pipeResponse{}, fmt.Errorf("runtime error: %s", f.resp.Error)
			}
			return f.resp, nil
		}
	}
}

func (r *pipeRuntime) Status(ctx context.Context) (Status, error) {
	resp, err := r.call(ctx, pipeRequest{Op: "status"})
	if err != nil {
		return Status{}, err
	}
	return Status{Loaded: resp.Loaded, Version: resp.Version}, nil
}

func (r *pipeRuntime) Generate(ctx context.Context, prompt string, p Params) (Output, error) {
	start := time.Now()
	resp, err := r.call(ctx, pipeRequest{
		Op:          "generate",
		Prompt:      prompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Stop:        p.Stop,
	})
	if err != nil {
		return Output{}, err
	}
	if resp.Text == nil {
		return Output{}, fmt.Errorf("%w: generate response without text", ErrMalformed)
	}
	d := time.Duration(resp.MS) * time.Millisecond
	if d <= 0 {
		d = time.Since(start)
	}
	return Output{Text: *resp.Text, Tokens: resp.Tokens, Duration: d, Confidence: resp.Confidence}, nil
}

func (r *pipeRuntime) Close() error {
	r.once.Do(func() {
		close(r.done)
		_ = r.stdin.Close()
		terminate(r.cmd, r.exited)
		r.log.Info().Msg("runtime stopped")
	})
	return nil
}
