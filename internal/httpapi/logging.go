package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"replyd/pkg/types"
)

// zlog is the structured logger used by the HTTP layer; Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "http").Logger() }

func logger() *zerolog.Logger { return &zlog }

// LogLevel controls per-request logging of chat streams.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from REPLYD_HTTP_LOG_LEVEL.
var defaultLogLevel = parseLevel(os.Getenv("REPLYD_HTTP_LOG_LEVEL"))

// requestLogLevel honors ?log= and X-Log-Level overrides.
func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// streamLog logs chat stream milestones at the request's level.
type streamLog struct {
	lvl       LogLevel
	requestID string
	userID    string
	sessionID string
}

func newStreamLog(r *http.Request, userID, sessionID string) streamLog {
	return streamLog{
		lvl:       requestLogLevel(r),
		requestID: middleware.GetReqID(r.Context()),
		userID:    userID,
		sessionID: sessionID,
	}
}

func (s streamLog) with(e *zerolog.Event) *zerolog.Event {
	e = e.Str("user_id", s.userID).Str("session_id", s.sessionID)
	if s.requestID != "" {
		e = e.Str("request_id", s.requestID)
	}
	return e
}

func (s streamLog) start(transport string) {
	if s.lvl >= LevelInfo {
		s.with(zlog.Info()).Str("transport", transport).Msg("chat start")
	}
}

func (s streamLog) event(ev types.StreamEvent) {
	if s.lvl >= LevelDebug {
		s.with(zlog.Debug()).Str("type", ev.Type).Str("content", ev.Content).Str("source", string(ev.Source)).Msg("chat>")
	}
}

func (s streamLog) end(status int, err error) {
	switch {
	case err != nil && s.lvl >= LevelError:
		s.with(zlog.Error()).Int("status", status).Err(err).Msg("chat end")
	case err == nil && s.lvl >= LevelInfo:
		s.with(zlog.Info()).Int("status", status).Msg("chat end")
	}
}
