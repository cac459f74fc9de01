package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.Engine.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthzOK(t *testing.T) {
	r := NewRouter(zap.NewNop(), func(context.Context) error { return nil })

	rec := serve(r, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec := serve(r, http.MethodHead, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d", rec.Code)
	}
}

func TestHealthzReportsFailure(t *testing.T) {
	r := NewRouter(zap.NewNop(), func(context.Context) error { return errors.New("mq publisher disconnected") })

	rec := serve(r, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mq publisher disconnected") {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec := serve(r, http.MethodHead, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("HEAD status = %d", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	r := NewRouter(zap.NewNop(), nil)
	rec := serve(r, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("expected default collectors in output")
	}
}
