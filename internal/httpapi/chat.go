package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"replyd/pkg/types"
)

const wsWriteTimeout = 10 * time.Second

// chatHandler godoc
// @Summary Send a chat message and stream the reply
// @Description Streams NDJSON events: chunk lines, then exactly one complete or error line, then an optional voice line.
// @Tags chat
// @Accept json
// @Produce application/x-ndjson
// @Param X-User-ID header string true "User id"
// @Param request body types.ChatRequest true "Chat request"
// @Success 200 {object} types.StreamEvent
// @Failure 400 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Failure 409 {object} types.ErrorResponse
// @Router /v1/chat [post]
func chatHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			IncrementRejection("bad_json")
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		uid := userFrom(r)
		sl := newStreamLog(r, uid, req.SessionID)
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()

		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)
		started := false
		send := func(ev types.StreamEvent) error {
			if !started {
				w.Header().Set("Content-Type", "application/x-ndjson")
				w.Header().Set("Cache-Control", "no-cache")
				w.WriteHeader(http.StatusOK)
				started = true
				sl.start("ndjson")
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			streamEventsTotal.WithLabelValues("ndjson", ev.Type).Inc()
			sl.event(ev)
			return nil
		}

		err := svc.Chat(ctx, uid, req, send)
		if err != nil && !started {
			status := statusFor(err)
			IncrementRejection(errorReason(err))
			sl.end(status, err)
			writeJSONError(w, status, err.Error())
			return
		}
		sl.end(http.StatusOK, err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts configured CORS origins, or same-host origins when CORS
// is off. Requests without an Origin header are not from browsers.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if corsEnabled {
		for _, o := range corsAllowedOrigins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// chatWSHandler godoc
// @Summary Chat over a WebSocket
// @Description Each text frame is a ChatRequest; replies are StreamEvent frames tagged with session_id. Messages for different sessions run concurrently; a second message for a session that is still streaming gets an error frame with reason session_busy.
// @Tags chat
// @Param X-User-ID header string false "User id"
// @Param user_id query string false "User id when headers cannot be set"
// @Success 101
// @Failure 401 {object} types.ErrorResponse
// @Router /v1/chat/ws [get]
func chatWSHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userFrom(r)
		if uid == "" {
			IncrementRejection("missing_user")
			writeJSONError(w, http.StatusUnauthorized, "missing "+UserHeader+" header or user_id parameter")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader has already replied
			logger().Warn().Err(err).Str("user_id", uid).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxBodyBytes)

		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, func() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		})
		defer stop()

		var wmu sync.Mutex
		write := func(ev types.StreamEvent) error {
			wmu.Lock()
			defer wmu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return conn.WriteJSON(ev)
		}

		var wg sync.WaitGroup
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
					logger().Debug().Err(err).Str("user_id", uid).Msg("websocket read ended")
				}
				break
			}
			var req types.ChatRequest
			if err := json.Unmarshal(data, &req); err != nil {
				IncrementRejection("bad_json")
				_ = write(types.StreamEvent{Type: types.EventError, Reason: "invalid_request"})
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				serveWSChat(ctx, svc, r, uid, req, write)
			}()
		}
		// the client is gone; in-flight cycles are discarded
		cancel()
		wg.Wait()
	}
}

func serveWSChat(ctx context.Context, svc Service, r *http.Request, uid string, req types.ChatRequest, write func(types.StreamEvent) error) {
	sl := newStreamLog(r, uid, req.SessionID)
	started := false
	err := svc.Chat(ctx, uid, req, func(ev types.StreamEvent) error {
		if !started {
			started = true
			sl.start("ws")
		}
		ev.SessionID = req.SessionID
		if err := write(ev); err != nil {
			return err
		}
		streamEventsTotal.WithLabelValues("ws", ev.Type).Inc()
		sl.event(ev)
		return nil
	})
	if err != nil && !started {
		reason := errorReason(err)
		IncrementRejection(reason)
		sl.end(statusFor(err), err)
		_ = write(types.StreamEvent{Type: types.EventError, Reason: reason, SessionID: req.SessionID})
		return
	}
	sl.end(http.StatusOK, err)
}
