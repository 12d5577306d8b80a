package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"memchat/api/internal/session"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := serve(t, server, http.MethodGet, "/api/health", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok := response["ok"]; ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if got := rr.Header().Get("X-Request-ID"); got == "" {
		t.Errorf("expected X-Request-ID header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr := serve(t, server, http.MethodGet, "/api/ready", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response struct {
		OK     bool                      `json:"ok"`
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.OK || response.Status != "ready" {
		t.Fatalf("expected ready, got %+v", response)
	}
	if response.Checks["database"]["status"] != "ok" {
		t.Errorf("expected database ok, got %v", response.Checks["database"])
	}
	if _, ok := response.Checks["sessions"]; ok {
		t.Errorf("postgres-backed sessions should not be reported separately")
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	fs := &fakeStore{pingFn: func(context.Context) error { return errors.New("connection refused") }}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := serve(t, server, http.MethodGet, "/api/ready", "", "")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Errorf("expected error detail in body, got %s", rr.Body.String())
	}
}

func TestReadyEndpoint_ReportsRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	fs := &fakeStore{}
	svc := newTestService(fs)
	svc.sessions = session.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), fs)
	server := NewHTTPServer(svc, "*")

	rr := serve(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"sessions":{"status":"ok"}`) {
		t.Errorf("expected sessions check, got %s", rr.Body.String())
	}

	mr.Close()
	rr = serve(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 once redis is gone, got %d", rr.Code)
	}
}

func TestOptionsShortCircuits(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "https://app.example.com")

	rr := serve(t, server, http.MethodOptions, "/api/chats", "", "")

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("unexpected CORS origin %q", got)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Errorf("PATCH must be allowed for visibility updates")
	}
}
