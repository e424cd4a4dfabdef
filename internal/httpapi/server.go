// Package httpapi exposes replyd over HTTP: session management, NDJSON and
// WebSocket chat streams, model pool controls and operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"replyd/pkg/types"
)

// UserHeader carries the authenticated user id, set by the fronting gateway.
const UserHeader = "X-User-ID"

// Service is the application surface served over HTTP.
type Service interface {
	CreateSession(userID string) string
	Window(ctx context.Context, userID, sessionID string) (types.WindowResponse, error)
	// Chat runs one chat cycle, calling send for each stream event in order.
	// An error returned before send was first called means nothing was streamed.
	Chat(ctx context.Context, userID string, req types.ChatRequest, send func(types.StreamEvent) error) error
	Warm(userID string) (string, error)
	Unload(ctx context.Context, userID string) error
	Status() types.StatusResponse
	Ready() bool
}

// ModelLister is optionally implemented by a Service to expose GET /v1/models.
type ModelLister interface {
	Models() []types.Model
}

// NewMux wires the HTTP routes for svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   corsAllowedMethods,
			AllowedHeaders:   corsAllowedHeaders,
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})
	r.Handle("/metrics", promhttp.Handler())
	MountSwagger(r)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/sessions", createSessionHandler(svc))
			r.Get("/sessions/{id}/window", windowHandler(svc))
			r.Post("/chat", chatHandler(svc))
		})
		// browsers cannot set headers on a WebSocket handshake, so the user
		// id may also arrive as a query parameter
		r.Get("/chat/ws", chatWSHandler(svc))

		r.Post("/models/{user}/warm", warmHandler(svc))
		r.Delete("/models/{user}", unloadHandler(svc))
		if ml, ok := svc.(ModelLister); ok {
			r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"models": ml.Models()})
			})
		}
	})
	return r
}

type userKey struct{}

// requireUser rejects requests without a user id.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(UserHeader))
		if uid == "" {
			IncrementRejection("missing_user")
			writeJSONError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, uid)))
	})
}

func userFrom(r *http.Request) string {
	if v, ok := r.Context().Value(userKey{}).(string); ok && v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get(UserHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// createSessionHandler godoc
// @Summary Create a conversation session
// @Tags sessions
// @Produce json
// @Param X-User-ID header string true "User id"
// @Success 201 {object} types.SessionResponse
// @Failure 401 {object} types.ErrorResponse
// @Router /v1/sessions [post]
func createSessionHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := svc.CreateSession(userFrom(r))
		writeJSON(w, http.StatusCreated, types.SessionResponse{SessionID: id})
	}
}

// windowHandler godoc
// @Summary Read a session's context window
// @Tags sessions
// @Produce json
// @Param X-User-ID header string true "User id"
// @Param id path string true "Session id"
// @Success 200 {object} types.WindowResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /v1/sessions/{id}/window [get]
func windowHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := svc.Window(r.Context(), userFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// warmHandler godoc
// @Summary Preload a user's model
// @Tags models
// @Produce json
// @Param user path string true "User id"
// @Success 202 {object} types.WarmResponse
// @Failure 503 {object} types.ErrorResponse
// @Router /v1/models/{user}/warm [post]
func warmHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, err := svc.Warm(chi.URLParam(r, "user"))
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, types.WarmResponse{OpID: op})
	}
}

// unloadHandler godoc
// @Summary Unload a user's model
// @Tags models
// @Param user path string true "User id"
// @Success 204
// @Failure 404 {object} types.ErrorResponse
// @Router /v1/models/{user} [delete]
func unloadHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Unload(r.Context(), chi.URLParam(r, "user")); err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
