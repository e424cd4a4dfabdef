package runtime

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Static is an in-process runtime that answers every prompt with Reply.
// It is used for development servers and tests.
type Static struct {
	Reply   func(prompt string) string
	Version string
	Delay   time.Duration

	mu     sync.Mutex
	closed bool
}

// NewStatic returns a Static runtime that always answers text.
func NewStatic(text, version string) *Static {
	return &Static{Reply: func(string) string { return text }, Version: version}
}

func (s *Static) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Loaded: !s.closed, Version: s.Version}, nil
}

func (s *Static) Generate(ctx context.Context, prompt string, p Params) (Output, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Output{}, ErrClosed
	}
	start := time.Now()
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return Output{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	text := ""
	if s.Reply != nil {
		text = s.Reply(prompt)
	}
	words := strings.Fields(text)
	if p.MaxTokens > 0 && len(words) > p.MaxTokens {
		words = words[:p.MaxTokens]
		text = strings.Join(words, " ")
	}
	return Output{Text: text, Tokens: len(words), Duration: time.Since(start)}, nil
}

func (s *Static) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// StaticLoader hands out a fresh Static runtime per user.
type StaticLoader struct {
	Reply string
	Delay time.Duration
}

func (l StaticLoader) Load(ctx context.Context, userID string) (Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := l.Reply
	if reply == "" {
		reply = "I am here and I am listening to you, tell me more about how your day went."
	}
	s := NewStatic(reply, "static-"+userID)
	s.Delay = l.Delay
	return s, nil
}
