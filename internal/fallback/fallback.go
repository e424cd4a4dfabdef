// Package fallback answers from a user's existing corpus when model output is
// unavailable or weak. It never calls a model or the network beyond the
// corpus source, and every answer is bounded by a short deadline.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"replyd/pkg/types"
)

const (
	// FallbackConfidence marks a corpus-drawn answer.
	FallbackConfidence = 0.3
	// EmptyConfidence marks the fixed answer given to users without a corpus.
	EmptyConfidence = 0.1
	// DefaultTimeout bounds one Synthesize call.
	DefaultTimeout = 250 * time.Millisecond

	categoryBonus = 0.2
)

// EmptyMessage is returned when a user's corpus has no entries.
const EmptyMessage = "I'm here with you. I don't have the right words at the moment, but I'm listening, and I'd love to hear more."

// ErrCorpusUnavailable is returned when the corpus source cannot be read.
var ErrCorpusUnavailable = errors.New("fallback corpus unavailable")

// Response is a fallback answer.
type Response struct {
	Text       string
	Confidence float64
	Source     types.Source
	Category   string
}

// Synthesizer picks the best-matching corpus entry for a prompt context.
type Synthesizer struct {
	corpus  Corpus
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Synthesizer) { s.log = l } }

// New constructs a Synthesizer over corpus.
func New(corpus Corpus, opts ...Option) *Synthesizer {
	s := &Synthesizer{corpus: corpus, timeout: DefaultTimeout, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize returns the corpus entry that best matches promptContext.
func (s *Synthesizer) Synthesize(ctx context.Context, userID, promptContext string) (Response, error) {
	if s.corpus == nil {
		return emptyResponse(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	entries, err := s.corpus.Entries(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("corpus lookup failed")
		return Response{}, fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	best := rank(promptContext, entries)
	if best < 0 {
		return emptyResponse(), nil
	}
	e := entries[best]
	return Response{
		Text:       strings.TrimSpace(e.Response),
		Confidence: FallbackConfidence,
		Source:     types.SourceFallback,
		Category:   e.Category,
	}, nil
}

func emptyResponse() Response {
	return Response{Text: EmptyMessage, Confidence: EmptyConfidence, Source: types.SourceFallbackEmpty}
}

// rank returns the index of the best entry, or -1 when no entry has text.
// Ties keep the earliest entry.
func rank(promptContext string, entries []Entry) int {
	ctxTokens := tokenSet(promptContext)
	best, bestScore := -1, -1.0
	for i, e := range entries {
		if strings.TrimSpace(e.Response) == "" {
			continue
		}
		text := e.Prompt
		if strings.TrimSpace(text) == "" {
			text = e.Response
		}
		score := jaccard(ctxTokens, tokenSet(text))
		if c := strings.ToLower(strings.TrimSpace(e.Category)); c != "" && ctxTokens[c] {
			score += categoryBonus
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "to": true, "of": true,
	"is": true, "it": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"user": true, "assistant": true,
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !stopwords[w] {
			out[w] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
