// Package runtime defines the per-user model runtime contract and its backends.
//
// A Runtime is one loaded model owned by one user. It answers two questions:
// is the model still loaded (Status), and what does it say to a prompt
// (Generate). Backends differ only in where the model lives:
//
//   - pipe: a child process speaking line-delimited JSON on stdin/stdout
//   - llamaserver: a llama-server child process spoken to over HTTP
//   - llama: an in-process go-llama.cpp model (build tag 'llama')
//   - static: canned replies for development and tests
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrMalformed is returned when the runtime answers with output that cannot be parsed.
	ErrMalformed = errors.New("runtime: malformed output")
	// ErrProcessExited is returned when the backing process is gone.
	ErrProcessExited = errors.New("runtime: process exited")
	// ErrClosed is returned by calls on a runtime after Close.
	ErrClosed = errors.New("runtime: closed")
)

// Params are the sampling parameters of a single generation.
type Params struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Output is the result of a single generation.
type Output struct {
	Text     string
	Tokens   int
	Duration time.Duration
	// Confidence is reported by some runtimes; nil when absent.
	Confidence *float64
}

// Status is the runtime's self-report.
type Status struct {
	Loaded  bool
	Version string
}

// Runtime is one loaded per-user model.
type Runtime interface {
	Status(ctx context.Context) (Status, error)
	Generate(ctx context.Context, prompt string, p Params) (Output, error)
	Close() error
}

// Loader brings up a Runtime for a user. Load must honor ctx cancellation.
type Loader interface {
	Load(ctx context.Context, userID string) (Runtime, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, userID string) (Runtime, error)

func (f LoaderFunc) Load(ctx context.Context, userID string) (Runtime, error) { return f(ctx, userID) }

// ModelResolver maps a user id to the path of that user's trained model.
type ModelResolver interface {
	ModelPath(userID string) (string, bool)
}

// modelNotFoundError signals that no model is registered for a user.
type modelNotFoundError struct{ userID string }

func (e modelNotFoundError) Error() string { return "no model for user: " + e.userID }

// ErrModelNotFound returns an error for a user without a registered model.
func ErrModelNotFound(userID string) error { return modelNotFoundError{userID: userID} }

// IsModelNotFound reports whether err indicates a user without a registered model.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing external dependency (e.g., llama.cpp).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

func resolvePath(r ModelResolver, userID string) (string, error) {
	if r == nil {
		return "", nil
	}
	p, ok := r.ModelPath(userID)
	if !ok {
		return "", ErrModelNotFound(userID)
	}
	return p, nil
}

// tailBuffer keeps the last n bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

func newTailBuffer(n int) *tailBuffer { return &tailBuffer{n: n} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.n {
		t.buf = t.buf[len(t.buf)-t.n:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
