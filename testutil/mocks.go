package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockUberduckServer mocks the Uberduck speak, speak-status and audio endpoints.
type MockUberduckServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	polls int
}

// NewMockUberduckServer creates a new mock Uberduck API server.
func NewMockUberduckServer(t *testing.T) *MockUberduckServer {
	t.Helper()
	m := &MockUberduckServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Polls returns how many status requests were served.
func (m *MockUberduckServer) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// MockSpeakResponse adds a handler for /speak returning uuid.
func (m *MockUberduckServer) MockSpeakResponse(uuid string) {
	m.Handlers["/speak"] = func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"uuid": uuid}) //nolint:errcheck // test mock response
	}
}

// MockStatusResponse adds a handler for /speak-status that reports the job
// pending for pendingPolls requests, then finished with the audio served by
// this server (or failed when failed is true).
func (m *MockUberduckServer) MockStatusResponse(pendingPolls int, failed bool) {
	m.Handlers["/speak-status"] = func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.polls++
		n := m.polls
		m.mu.Unlock()

		response := map[string]interface{}{"path": nil, "failed_at": nil, "finished_at": nil}
		switch {
		case n <= pendingPolls:
		case failed:
			response["failed_at"] = "2023-01-01T00:00:00Z"
		default:
			response["path"] = m.URL + "/audio.wav"
			response["finished_at"] = "2023-01-01T00:00:00Z"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockAudio adds a handler for /audio.wav serving body.
func (m *MockUberduckServer) MockAudio(body []byte) {
	m.Handlers["/audio.wav"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(body) //nolint:errcheck // test mock response
	}
}
