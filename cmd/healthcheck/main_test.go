package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheck(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	if code := check(context.Background(), srv.URL); code != 0 {
		t.Errorf("check(ready) = %d, want 0", code)
	}
	ready = false
	if code := check(context.Background(), srv.URL); code != 1 {
		t.Errorf("check(not ready) = %d, want 1", code)
	}
	if code := check(context.Background(), "http://127.0.0.1:1/readyz"); code != 1 {
		t.Errorf("check(unreachable) = %d, want 1", code)
	}
}

func TestTarget(t *testing.T) {
	t.Setenv("HEALTHCHECK_URL", "")
	t.Setenv("HTTP_ADDR", ":9090")
	if got := target(); got != "http://localhost:9090/readyz" {
		t.Errorf("target() = %q", got)
	}
	t.Setenv("HEALTHCHECK_URL", "http://copilot/readyz")
	if got := target(); got != "http://copilot/readyz" {
		t.Errorf("target() = %q", got)
	}
}
