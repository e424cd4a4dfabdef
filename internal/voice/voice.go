// Package voice renders completed replies as audio on a bounded worker pool,
// separate from inference capacity. Callers get a Future and never block on
// enqueue.
package voice

import (
	"context"
	"errors"
	"time"
)

// ErrVoiceSynthesisFailed covers every voice failure: a full queue, a closed
// coordinator, or a synthesizer or store error. It is never fatal to a reply.
var ErrVoiceSynthesisFailed = errors.New("voice synthesis failed")

// Audio is what a Synthesizer returns. A backend either hands back bytes for
// an AudioStore to keep, or a Ref it already stored itself.
type Audio struct {
	Data        []byte
	ContentType string
	Ref         string
	Quality     string
	Duration    time.Duration
}

// Synthesizer turns text into audio in the voice identified by voiceID.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (Audio, error)
}

// AudioStore keeps audio bytes and returns a reference to them.
type AudioStore interface {
	Put(ctx context.Context, userID string, a Audio) (string, error)
}

// Enrichment is the voice rendition attached to a completed reply.
type Enrichment struct {
	AudioRef string
	Duration time.Duration
	Quality  string
}

// Future resolves once with an Enrichment or an error.
type Future struct {
	done chan struct{}
	res  Enrichment
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func failedFuture(err error) *Future {
	f := newFuture()
	f.resolve(Enrichment{}, err)
	return f
}

func (f *Future) resolve(e Enrichment, err error) {
	f.res, f.err = e, err
	close(f.done)
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Enrichment, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Enrichment{}, ctx.Err()
	}
}
