package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"replyd/internal/convo"
	"replyd/pkg/types"
)

type mockService struct {
	mu sync.Mutex

	ready bool
	// events are sent in order by Chat; chatErr is returned before any
	// event when set, errAfter after all events.
	events   []types.StreamEvent
	chatErr  error
	errAfter error
	// block makes Chat wait for ctx cancellation after sending events.
	block    bool
	canceled chan struct{}

	windowErr error
	warmErr   error
	unloadErr error

	lastUser string
	lastReq  types.ChatRequest
	unloaded string
}

func newMockService() *mockService {
	return &mockService{ready: true, canceled: make(chan struct{}, 8)}
}

func (m *mockService) CreateSession(userID string) string {
	m.mu.Lock()
	m.lastUser = userID
	m.mu.Unlock()
	return "s-1"
}

func (m *mockService) Window(_ context.Context, userID, sessionID string) (types.WindowResponse, error) {
	if m.windowErr != nil {
		return types.WindowResponse{}, m.windowErr
	}
	if sessionID != "s-1" {
		return types.WindowResponse{}, convo.ErrSessionNotFound
	}
	return types.WindowResponse{SessionID: sessionID, Turns: []types.TurnView{
		{Role: "user", Text: "hi", At: 1},
		{Role: "assistant", Text: "hello", At: 2},
	}}, nil
}

func (m *mockService) Chat(ctx context.Context, userID string, req types.ChatRequest, send func(types.StreamEvent) error) error {
	m.mu.Lock()
	m.lastUser, m.lastReq = userID, req
	m.mu.Unlock()
	if m.chatErr != nil {
		return m.chatErr
	}
	for _, ev := range m.events {
		if err := send(ev); err != nil {
			return err
		}
	}
	if m.block {
		<-ctx.Done()
		m.canceled <- struct{}{}
		return ctx.Err()
	}
	return m.errAfter
}

func (m *mockService) Warm(userID string) (string, error) {
	if m.warmErr != nil {
		return "", m.warmErr
	}
	return "op-1", nil
}

func (m *mockService) Unload(_ context.Context, userID string) error {
	if m.unloadErr != nil {
		return m.unloadErr
	}
	m.mu.Lock()
	m.unloaded = userID
	m.mu.Unlock()
	return nil
}

func (m *mockService) Status() types.StatusResponse {
	return types.StatusResponse{Capacity: 3, ActiveStreams: 1}
}

func (m *mockService) Ready() bool { return m.ready }

func (m *mockService) request() (string, types.ChatRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUser, m.lastReq
}

func replyEvents() []types.StreamEvent {
	conf := 0.8
	return []types.StreamEvent{
		{Type: types.EventChunk, Content: "Quiet, mostly. "},
		{Type: types.EventChunk, Content: "I read."},
		{Type: types.EventComplete, Response: "Quiet, mostly. I read.", Confidence: &conf, Source: types.SourceModel},
	}
}

type teapotError struct{}

func (teapotError) Error() string   { return "short and stout" }
func (teapotError) StatusCode() int { return http.StatusTeapot }

var errBoom = errors.New("boom")
