// Package bridge is the uniform request/response contract to a loaded model
// runtime. It enforces a hard wall-clock timeout and a token ceiling, and
// classifies every failure as a timeout, a process crash or malformed output.
// It never retries.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"replyd/internal/runtime"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultTokenCeiling = 512
)

var (
	// ErrTimeout is returned when the runtime does not answer within the timeout.
	ErrTimeout = errors.New("generation timeout")
	// ErrProcessCrash is returned when the runtime process is gone or failed.
	ErrProcessCrash = errors.New("model process crash")
	// ErrMalformed is returned when the runtime output cannot be used.
	ErrMalformed = errors.New("malformed model output")
)

// Request is one generation request.
type Request struct {
	SessionID   string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Deadline, when set and earlier than now+Timeout, bounds the call instead.
	Deadline time.Time
}

// Result is one successful generation.
type Result struct {
	Text     string
	Tokens   int
	Duration time.Duration
	// Confidence as reported by the runtime; nil when absent.
	Confidence *float64
}

// Config tunes a Bridge.
type Config struct {
	Timeout      time.Duration
	TokenCeiling int
	Stop         []string
	Logger       *zerolog.Logger
}

// Bridge calls runtimes on behalf of the dispatcher.
type Bridge struct {
	timeout time.Duration
	ceiling int
	stop    []string
	log     zerolog.Logger
}

// New constructs a Bridge, applying defaults.
func New(cfg Config) *Bridge {
	b := &Bridge{timeout: cfg.Timeout, ceiling: cfg.TokenCeiling, stop: cfg.Stop}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	if b.ceiling <= 0 {
		b.ceiling = DefaultTokenCeiling
	}
	if b.stop == nil {
		b.stop = []string{"\nUser:"}
	}
	if cfg.Logger != nil {
		b.log = cfg.Logger.With().Str("component", "bridge").Logger()
	} else {
		b.log = zerolog.Nop()
	}
	return b
}

// Timeout returns the configured hard timeout.
func (b *Bridge) Timeout() time.Duration { return b.timeout }

type outcome struct {
	out runtime.Output
	err error
}

// Generate runs req against rt. The runtime call runs on its own goroutine;
// the caller's cancellation is forwarded to it but Generate only returns once
// the call finishes or the hard timeout fires. A result arriving after that
// is dropped.
func (b *Bridge) Generate(ctx context.Context, rt runtime.Runtime, req Request) (Result, error) {
	if rt == nil {
		return Result{}, fmt.Errorf("%w: no runtime", ErrProcessCrash)
	}
	limit := b.timeout
	if !req.Deadline.IsZero() {
		if d := time.Until(req.Deadline); d < limit {
			limit = d
		}
	}
	if limit <= 0 {
		return Result{}, fmt.Errorf("%w: deadline already passed", ErrTimeout)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > b.ceiling {
		maxTokens = b.ceiling
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		out, err := rt.Generate(genCtx, req.Prompt, runtime.Params{
			MaxTokens:   maxTokens,
			Temperature: req.Temperature,
			Stop:        b.stop,
		})
		done <- outcome{out, err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()
	var oc outcome
	select {
	case oc = <-done:
	case <-timer.C:
		b.log.Warn().Str("session_id", req.SessionID).Dur("limit", limit).Msg("generation timed out")
		return Result{}, fmt.Errorf("%w after %s", ErrTimeout, limit)
	}
	took := time.Since(start)

	if oc.err != nil {
		return Result{}, b.classify(ctx, req.SessionID, oc.err)
	}
	text := strings.TrimSpace(oc.out.Text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: empty text", ErrMalformed)
	}
	tokens := oc.out.Tokens
	if tokens > maxTokens {
		text = truncateWords(text, maxTokens)
		tokens = maxTokens
	}
	if c := oc.out.Confidence; c != nil && (*c < 0 || *c > 1) {
		oc.out.Confidence = nil
	}
	if oc.out.Duration > 0 {
		took = oc.out.Duration
	}
	return Result{Text: text, Tokens: tokens, Duration: took, Confidence: oc.out.Confidence}, nil
}

func (b *Bridge) classify(ctx context.Context, sessionID string, err error) error {
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// caller went away; not a runtime failure
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, runtime.ErrMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		b.log.Error().Err(err).Str("session_id", sessionID).Msg("runtime call failed")
		return fmt.Errorf("%w: %v", ErrProcessCrash, err)
	}
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

// Classify maps a bridge error to a short reason tag for completion metadata.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "generation_timeout"
	case errors.Is(err, ErrMalformed):
		return "malformed_output"
	case errors.Is(err, ErrProcessCrash):
		return "model_crash"
	default:
		return ""
	}
}
