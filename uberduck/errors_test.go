package uberduck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorClassRetryable, "retryable"},
		{ErrorClassFatal, "fatal"},
		{ErrorClassUnknown, "unknown"},
		{ErrorClass(999), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.class.String(); got != tt.want {
				t.Errorf("ErrorClass.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	status := func(code int) error {
		return fmt.Errorf("poll: %w", &StatusError{Method: "GET", Path: "/speak-status", Code: code})
	}
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"401", status(http.StatusUnauthorized), ErrorClassFatal},
		{"403", status(http.StatusForbidden), ErrorClassFatal},
		{"404", status(http.StatusNotFound), ErrorClassFatal},
		{"422", status(http.StatusUnprocessableEntity), ErrorClassFatal},
		{"429", status(http.StatusTooManyRequests), ErrorClassRetryable},
		{"502", status(http.StatusBadGateway), ErrorClassRetryable},
		{"409", status(http.StatusConflict), ErrorClassRetryable},
		{"network timeout", timeoutErr{}, ErrorClassRetryable},
		{"bad scheme", errors.New(`Get "ftp://x": unsupported protocol scheme "ftp"`), ErrorClassFatal},
		{"unknown", errors.New("something odd"), ErrorClassRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWaitForAudioStopsOnFatalPollError(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		maxPolls  int
		wantPolls int32
		wantFatal bool
	}{
		{name: "bad credentials", code: http.StatusUnauthorized, maxPolls: 5, wantPolls: 1, wantFatal: true},
		{name: "server error retried", code: http.StatusServiceUnavailable, maxPolls: 3, wantPolls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var polls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				polls.Add(1)
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			c := &Client{BaseURL: srv.URL}
			_, err := c.WaitForAudio(context.Background(), "job-1", time.Millisecond, tt.maxPolls)
			if err == nil {
				t.Fatal("expected error")
			}
			if IsFatalError(err) != tt.wantFatal {
				t.Errorf("IsFatalError(%v) = %v, want %v", err, !tt.wantFatal, tt.wantFatal)
			}
			if !tt.wantFatal && !errors.Is(err, ErrTimeout) {
				t.Errorf("error = %v, want ErrTimeout", err)
			}
			if got := polls.Load(); got != tt.wantPolls {
				t.Errorf("polls = %d, want %d", got, tt.wantPolls)
			}
		})
	}
}
