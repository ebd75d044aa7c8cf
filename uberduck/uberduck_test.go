package uberduck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/copilot/testutil"
)

func TestBeginSynthesis(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speak" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["speech"] != "hello chat" || body["voice"] != "brock-samson" {
			t.Errorf("payload = %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"uuid": "job-1"})
	}))
	defer server.Close()

	c := &Client{BaseURL: server.URL, Key: "key", Secret: "secret"}
	id, err := c.BeginSynthesis(context.Background(), "hello chat", "brock-samson")
	if err != nil {
		t.Fatalf("BeginSynthesis() error = %v", err)
	}
	if id != "job-1" {
		t.Errorf("id = %q, want job-1", id)
	}
	if _, err := c.BeginSynthesis(context.Background(), "", "x"); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestBeginSynthesisHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"bad credentials"}`))
	}))
	defer server.Close()

	c := &Client{BaseURL: server.URL}
	_, err := c.BeginSynthesis(context.Background(), "hi", "v")
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "bad credentials") {
		t.Errorf("error = %v, want status 401 with body", err)
	}
}

func TestWaitForAudio(t *testing.T) {
	tests := []struct {
		name     string
		pending  int
		failed   bool
		maxPolls int
		wantErr  error
		wantPoll int
	}{
		{name: "ready after two polls", pending: 2, maxPolls: 5, wantPoll: 3},
		{name: "vendor failure", pending: 1, failed: true, maxPolls: 5, wantErr: ErrFailed, wantPoll: 2},
		{name: "poll budget exhausted", pending: 10, maxPolls: 3, wantErr: ErrTimeout, wantPoll: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockUberduckServer(t)
			mock.MockStatusResponse(tt.pending, tt.failed)
			c := &Client{BaseURL: mock.URL}

			path, err := c.WaitForAudio(context.Background(), "job-1", time.Millisecond, tt.maxPolls)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("WaitForAudio() error = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("WaitForAudio() error = %v", err)
				}
				if path != mock.URL+"/audio.wav" {
					t.Errorf("path = %q", path)
				}
			}
			if got := mock.Polls(); got != tt.wantPoll {
				t.Errorf("polls = %d, want %d", got, tt.wantPoll)
			}
		})
	}
}

func TestWaitForAudioHonoursContext(t *testing.T) {
	mock := testutil.NewMockUberduckServer(t)
	mock.MockStatusResponse(1000, false)
	c := &Client{BaseURL: mock.URL}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.WaitForAudio(ctx, "job-1", 5*time.Millisecond, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestDownloadReplacesFile(t *testing.T) {
	mock := testutil.NewMockUberduckServer(t)
	mock.MockAudio([]byte("RIFFdata"))
	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, []byte("old audio, longer than the new one"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Client{}
	if err := c.Download(context.Background(), mock.URL+"/audio.wav", path); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "RIFFdata" {
		t.Errorf("file = %q", got)
	}
	if err := c.Download(context.Background(), mock.URL+"/missing.wav", path); err == nil {
		t.Error("expected error for 404")
	}
}
