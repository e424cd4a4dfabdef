package app

import (
	"context"
	"fmt"

	"replyd/internal/convo"
	"replyd/internal/dispatch"
	"replyd/internal/httpapi"
	"replyd/pkg/types"
)

// CreateSession opens a new conversation for userID.
func (a *App) CreateSession(userID string) string { return a.store.Create(userID) }

// Window returns the current context window of a session owned by userID.
func (a *App) Window(ctx context.Context, userID, sessionID string) (types.WindowResponse, error) {
	if err := a.store.Resume(ctx, sessionID, userID); err != nil {
		return types.WindowResponse{}, err
	}
	sess, err := a.store.Get(sessionID)
	if err != nil {
		return types.WindowResponse{}, err
	}
	if sess.UserID != userID {
		return types.WindowResponse{}, fmt.Errorf("%w: %s", convo.ErrSessionNotFound, sessionID)
	}
	resp := types.WindowResponse{SessionID: sessionID, Turns: make([]types.TurnView, 0, len(sess.Turns))}
	for _, t := range sess.Turns {
		resp.Turns = append(resp.Turns, types.TurnView{
			Role: string(t.Role),
			Text: t.Text,
			At:   t.At.UnixMilli(),
			Tone: t.Tone,
		})
	}
	return resp, nil
}

// Chat runs one dispatch cycle, streaming events through send.
func (a *App) Chat(ctx context.Context, userID string, req types.ChatRequest, send func(types.StreamEvent) error) error {
	return a.disp.Handle(ctx, userID, req, dispatch.SinkFunc(send))
}

// Warm preloads userID's model in the background.
func (a *App) Warm(userID string) (string, error) { return a.pool.Warm(userID) }

// Unload evicts userID's model.
func (a *App) Unload(ctx context.Context, userID string) error { return a.pool.Evict(ctx, userID) }

// Status reports pool state and the number of active streams.
func (a *App) Status() types.StatusResponse {
	st := a.pool.Status()
	st.ActiveStreams = a.disp.Active()
	return st
}

// Ready reports whether the pool accepts work.
func (a *App) Ready() bool { return a.pool.Ready() }

// Models lists the registered per-user models.
func (a *App) Models() []types.Model {
	if a.reg == nil {
		return []types.Model{}
	}
	return a.reg.Models()
}

var _ httpapi.Service = (*App)(nil)
