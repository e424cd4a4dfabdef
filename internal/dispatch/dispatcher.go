// Package dispatch runs one generate-or-fallback cycle per chat message and
// streams the chosen response to the client as ordered events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"replyd/internal/bridge"
	"replyd/internal/convo"
	"replyd/internal/manager"
	"replyd/internal/quality"
	"replyd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultChunkWords  = 4
	DefaultTemperature = 0.7
)

// Config wires a Dispatcher to its collaborators.
type Config struct {
	Store     *convo.Store
	Pool      Pool
	Generator Generator
	Fallback  Fallback
	// Voice is optional; without it voice requests complete text-only.
	Voice VoiceQueue
	// ChunkWords is the number of words per chunk event.
	ChunkWords int
	// VoiceGrace is how long to wait after complete for a voice rendition.
	// Zero never waits.
	VoiceGrace time.Duration
	Tracer     trace.Tracer
	Logger     *zerolog.Logger
}

// Dispatcher serves chat streams.
type Dispatcher struct {
	store      *convo.Store
	pool       Pool
	gen        Generator
	fb         Fallback
	voice      VoiceQueue
	chunkWords int
	voiceGrace time.Duration
	tracer     trace.Tracer
	log        zerolog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

// New constructs a Dispatcher.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		store:      cfg.Store,
		pool:       cfg.Pool,
		gen:        cfg.Generator,
		fb:         cfg.Fallback,
		voice:      cfg.Voice,
		chunkWords: cfg.ChunkWords,
		voiceGrace: cfg.VoiceGrace,
		tracer:     cfg.Tracer,
		busy:       make(map[string]struct{}),
	}
	if d.chunkWords <= 0 {
		d.chunkWords = DefaultChunkWords
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("replyd/dispatch")
	}
	if cfg.Logger != nil {
		d.log = cfg.Logger.With().Str("component", "dispatch").Logger()
	} else {
		d.log = zerolog.Nop()
	}
	return d
}

// Active returns the number of sessions with a stream in progress.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.busy)
}

func (d *Dispatcher) lock(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.busy[sessionID]; ok {
		return false
	}
	d.busy[sessionID] = struct{}{}
	activeStreams.Inc()
	return true
}

func (d *Dispatcher) unlock(sessionID string) {
	d.mu.Lock()
	delete(d.busy, sessionID)
	d.mu.Unlock()
	activeStreams.Dec()
}

type cycleResult struct {
	scored Scored
	err    error
}

// Handle runs one cycle for req on behalf of userID and writes its events to
// sink: chunks, then exactly one complete or error event, then an optional
// voice event. Errors returned before the first event (unknown session,
// busy session, invalid request) mean nothing was sent. ErrDiscarded means
// the client went away; nothing from the cycle is kept.
func (d *Dispatcher) Handle(ctx context.Context, userID string, req types.ChatRequest, sink Sink) error {
	msg := strings.TrimSpace(req.Message)
	if req.SessionID == "" || msg == "" {
		return fmt.Errorf("%w: session_id and message are required", ErrInvalidRequest)
	}
	if err := d.store.Resume(ctx, req.SessionID, userID); err != nil {
		return err
	}
	sess, err := d.store.Get(req.SessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		// do not reveal sessions owned by someone else
		return fmt.Errorf("%w: %s", convo.ErrSessionNotFound, req.SessionID)
	}
	if !d.lock(req.SessionID) {
		streamsTotal.WithLabelValues("busy").Inc()
		return fmt.Errorf("%w: %s", ErrSessionBusy, req.SessionID)
	}
	defer d.unlock(req.SessionID)

	ctx, span := d.tracer.Start(ctx, "dispatch.handle", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("session_id", req.SessionID),
	))
	defer span.End()
	log := d.log.With().Str("user_id", userID).Str("session_id", req.SessionID).Logger()

	prompt := convo.BuildPrompt(sess.Turns, msg, req.Settings.PersonalityMode)
	start := time.Now()
	done := make(chan cycleResult, 1)
	go func() {
		s, err := d.cycle(ctx, userID, req.SessionID, msg, prompt, req.Settings)
		if ctx.Err() != nil {
			log.Debug().Msg("late cycle result dropped")
		}
		done <- cycleResult{s, err}
	}()

	var res cycleResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return d.discard(span, log, "cycle")
	}
	if ctx.Err() != nil {
		return d.discard(span, log, "cycle")
	}

	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, "fallback unavailable")
		log.Error().Err(res.err).Msg("no response available")
		streamsTotal.WithLabelValues("error").Inc()
		if err := sink.Send(types.StreamEvent{Type: types.EventError, Reason: ReasonFallbackUnavailable}); err != nil {
			return d.discard(span, log, "error")
		}
		return nil
	}
	s := res.scored
	cyclesTotal.WithLabelValues(string(s.Source)).Inc()
	cycleDuration.WithLabelValues(string(s.Source)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("source", string(s.Source)), attribute.String("reason", s.Reason))

	for _, c := range chunkText(s.Text, d.chunkWords) {
		if ctx.Err() != nil {
			return d.discard(span, log, "chunk")
		}
		if err := sink.Send(types.StreamEvent{Type: types.EventChunk, Content: c}); err != nil {
			return d.discard(span, log, "chunk")
		}
	}
	if ctx.Err() != nil {
		return d.discard(span, log, "complete")
	}

	conf := s.Confidence
	if err := sink.Send(types.StreamEvent{
		Type:         types.EventComplete,
		Response:     s.Text,
		Confidence:   &conf,
		Source:       s.Source,
		ModelVersion: s.ModelVersion,
		DurationMS:   s.Duration.Milliseconds(),
		Reason:       s.Reason,
	}); err != nil {
		return d.discard(span, log, "complete")
	}
	// turns are kept only once the client has the complete event
	now := time.Now().UTC()
	if err := d.store.Commit(ctx, req.SessionID,
		convo.Turn{Role: convo.RoleUser, Text: msg, At: now},
		convo.Turn{Role: convo.RoleAssistant, Text: s.Text, At: now},
	); err != nil {
		log.Error().Err(err).Msg("commit turns failed")
	}
	streamsTotal.WithLabelValues("complete").Inc()
	log.Info().Str("source", string(s.Source)).Str("reason", s.Reason).Float64("confidence", s.Confidence).Msg("reply delivered")

	if req.Settings.IncludeVoice && d.voice != nil {
		d.enrich(ctx, userID, s.Text, sink, log)
	}
	return nil
}

func (d *Dispatcher) discard(span trace.Span, log zerolog.Logger, stage string) error {
	streamsTotal.WithLabelValues("discarded").Inc()
	span.SetAttributes(attribute.Bool("discarded", true))
	log.Info().Str("stage", stage).Msg("client gone, stream discarded")
	return ErrDiscarded
}

// enrich hands text to the voice queue and, within the grace period, emits
// the rendition as a trailing voice event.
func (d *Dispatcher) enrich(ctx context.Context, userID, text string, sink Sink, log zerolog.Logger) {
	fut := d.voice.Enqueue(userID, text)
	if d.voiceGrace <= 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, d.voiceGrace)
	defer cancel()
	e, err := fut.Wait(wctx)
	if err != nil {
		log.Debug().Err(err).Msg("voice not ready within grace period")
		return
	}
	_ = sink.Send(types.StreamEvent{Type: types.EventVoice, Voice: &types.VoiceInfo{
		AudioRef:   e.AudioRef,
		Quality:    e.Quality,
		DurationMS: e.Duration.Milliseconds(),
	}})
}

// cycle produces the response to deliver: model output when it loads,
// generates and scores well, otherwise a fallback answer. Only a fallback
// failure is returned as an error.
func (d *Dispatcher) cycle(ctx context.Context, userID, sessionID, msg, prompt string, st types.ChatSettings) (Scored, error) {
	start := time.Now()

	actx, span := d.tracer.Start(ctx, "pool.acquire")
	h, err := d.pool.Acquire(actx, userID)
	span.End()
	if err != nil {
		if ctx.Err() != nil {
			return Scored{}, ctx.Err()
		}
		return d.fallback(ctx, userID, msg, acquireReason(err), err, start)
	}

	temp := st.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}
	gctx, span := d.tracer.Start(ctx, "bridge.generate")
	res, err := d.gen.Generate(gctx, h.Runtime(), bridge.Request{
		SessionID:   sessionID,
		Prompt:      prompt,
		MaxTokens:   st.MaxTokens,
		Temperature: temp,
	})
	span.End()
	version := h.Version()
	d.pool.Release(h, err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return Scored{}, ctx.Err()
		}
		reason := bridge.Classify(err)
		if reason == "" {
			reason = ReasonModelCrash
		}
		return d.fallback(ctx, userID, msg, reason, err, start)
	}

	_, span = d.tracer.Start(ctx, "quality.score")
	score, ok := quality.Accept(res.Text)
	span.SetAttributes(attribute.Float64("score", score))
	span.End()
	if !ok {
		err := fmt.Errorf("%w: score %.2f", ErrLowConfidence, score)
		return d.fallback(ctx, userID, msg, ReasonLowConfidence, err, start)
	}
	return Scored{
		Text:         res.Text,
		Confidence:   quality.Blend(score, res.Confidence),
		Source:       types.SourceModel,
		Duration:     res.Duration,
		ModelVersion: version,
	}, nil
}

func (d *Dispatcher) fallback(ctx context.Context, userID, msg, reason string, cause error, start time.Time) (Scored, error) {
	ctx, span := d.tracer.Start(ctx, "fallback.synthesize", trace.WithAttributes(attribute.String("reason", reason)))
	defer span.End()
	fallbacksTotal.WithLabelValues(reason).Inc()
	d.log.Warn().Err(cause).Str("user_id", userID).Str("reason", reason).Msg("routing to fallback")
	r, err := d.fb.Synthesize(ctx, userID, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback failed")
		return Scored{}, err
	}
	return Scored{
		Text:       r.Text,
		Confidence: r.Confidence,
		Source:     r.Source,
		Duration:   time.Since(start),
		Reason:     reason,
	}, nil
}

func acquireReason(err error) string {
	switch {
	case errors.Is(err, manager.ErrPoolExhausted):
		return ReasonPoolExhausted
	case errors.Is(err, manager.ErrModelLoadTimeout):
		return ReasonModelLoadTimeout
	case errors.Is(err, manager.ErrModelCrash):
		return ReasonModelCrash
	default:
		return ReasonModelUnavailable
	}
}
