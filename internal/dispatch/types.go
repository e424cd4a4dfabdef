package dispatch

import (
	"context"
	"time"

	"replyd/internal/bridge"
	"replyd/internal/fallback"
	"replyd/internal/manager"
	"replyd/internal/runtime"
	"replyd/internal/voice"
	"replyd/pkg/types"
)

// Fallback reasons recorded on completion metadata.
const (
	ReasonPoolExhausted    = "pool_exhausted"
	ReasonModelLoadTimeout = "model_load_timeout"
	ReasonModelCrash       = "model_crash"
	ReasonModelUnavailable = "model_unavailable"
	ReasonLowConfidence    = "low_confidence"
	// ReasonFallbackUnavailable is the reason on the error event.
	ReasonFallbackUnavailable = "fallback_unavailable"
)

// Scored is the response chosen for delivery.
type Scored struct {
	Text         string
	Confidence   float64
	Source       types.Source
	Duration     time.Duration
	ModelVersion string
	// Reason is set when the response came from fallback.
	Reason string
}

// Pool hands out per-user model handles.
type Pool interface {
	Acquire(ctx context.Context, userID string) (*manager.Handle, error)
	Release(h *manager.Handle, success bool)
}

// Generator runs one generation against a runtime.
type Generator interface {
	Generate(ctx context.Context, rt runtime.Runtime, req bridge.Request) (bridge.Result, error)
}

// Fallback answers from a user's corpus.
type Fallback interface {
	Synthesize(ctx context.Context, userID, promptContext string) (fallback.Response, error)
}

// VoiceQueue accepts voice work without blocking.
type VoiceQueue interface {
	Enqueue(userID, text string) *voice.Future
}

// Sink receives stream events in order. A Send error means the client is gone.
type Sink interface {
	Send(types.StreamEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(types.StreamEvent) error

func (f SinkFunc) Send(e types.StreamEvent) error { return f(e) }
