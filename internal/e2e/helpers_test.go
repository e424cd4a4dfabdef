// Package e2e drives the assembled server over HTTP: configuration, app
// wiring, routing and streaming together.
package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"replyd/internal/app"
	"replyd/internal/config"
	"replyd/internal/httpapi"
	"replyd/pkg/types"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.ApplyDefaults()
	cfg.Persist.SQLitePath = filepath.Join(t.TempDir(), "replyd.db")
	return cfg
}

func newServer(t *testing.T, cfg config.Config, opts ...app.Option) (*httptest.Server, *app.App) {
	t.Helper()
	a, err := app.New(context.Background(), cfg, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(a))
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close(context.Background())
	})
	return srv, a
}

func do(t *testing.T, method, url, user string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(httpapi.UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func createSession(t *testing.T, srv *httptest.Server, user string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/sessions", user, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: %d %s", resp.StatusCode, body)
	}
	var sr types.SessionResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.SessionID == "" {
		t.Fatalf("session response: %v %s", err, body)
	}
	return sr.SessionID
}

func chat(t *testing.T, srv *httptest.Server, user, sessionID, msg string) (int, []types.StreamEvent) {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/chat", user, types.ChatRequest{SessionID: sessionID, Message: msg})
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	var evs []types.StreamEvent
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var ev types.StreamEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("ndjson line %q: %v", sc.Text(), err)
		}
		evs = append(evs, ev)
	}
	return resp.StatusCode, evs
}

func terminal(t *testing.T, evs []types.StreamEvent) types.StreamEvent {
	t.Helper()
	for _, ev := range evs {
		if ev.Type == types.EventComplete || ev.Type == types.EventError {
			return ev
		}
	}
	t.Fatalf("no terminal event in %+v", evs)
	return types.StreamEvent{}
}

func status(t *testing.T, srv *httptest.Server) types.StatusResponse {
	t.Helper()
	resp, body := do(t, http.MethodGet, srv.URL+"/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status decode: %v", err)
	}
	return st
}
