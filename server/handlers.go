package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/copilot/db"
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/eventloop"
	"github.com/onnwee/copilot/telemetry"
)

var errNotRunning = errors.New("one or more handlers are not running")

// Check is one named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Deps are the runtime pieces the API reports on and publishes into.
type Deps struct {
	Loop *eventloop.Loop
	Bus  *event.Bus
	// DB is optional; without it /chat/recent answers 404.
	DB     *sql.DB
	Checks []Check
	// OperatorLogin is the sender name for injected commands.
	OperatorLogin string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps    Deps
	started time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	if deps.OperatorLogin == "" {
		deps.OperatorLogin = "operator"
	}
	return &Handlers{deps: deps, started: time.Now()}
}

// HandleHealthz is the liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready only while every handler runs and every check passes.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := append([]Check{{Name: "handlers", Fn: func(context.Context) error {
		if h.deps.Loop == nil || !h.deps.Loop.Healthy() {
			return errNotRunning
		}
		return nil
	}}}, h.deps.Checks...)

	for _, check := range checks {
		if err := check.Fn(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.Name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Handlers      []eventloop.HandlerStatus `json:"handlers"`
	Bus           event.Stats               `json:"bus"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
}

// HandleStatus returns handler states and bus counters.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{UptimeSeconds: int64(time.Since(h.started).Seconds())}
	if h.deps.Loop != nil {
		resp.Handlers = h.deps.Loop.States()
	}
	if h.deps.Bus != nil {
		resp.Bus = h.deps.Bus.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleChatRecent lists a user's recent logged chat lines.
func (h *Handlers) HandleChatRecent(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil {
		http.Error(w, "chat log disabled", http.StatusNotFound)
		return
	}
	login := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("login")))
	if login == "" {
		http.Error(w, "login required", http.StatusBadRequest)
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	if limit > 200 {
		limit = 200
	}
	rows, err := db.RecentMessages(r.Context(), h.deps.DB, login, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("recent chat query failed", slog.Any("error", err), slog.String("component", "http"))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	type row struct {
		ID      string    `json:"id"`
		Message string    `json:"message"`
		Role    string    `json:"role"`
		SentAt  time.Time `json:"sent_at"`
	}
	out := make([]row, 0, len(rows))
	for _, m := range rows {
		out = append(out, row{ID: m.ID, Message: m.Message, Role: m.Role, SentAt: m.SentAt})
	}
	writeJSON(w, http.StatusOK, out)
}

type commandRequest struct {
	Text  string `json:"text"`
	Login string `json:"login,omitempty"`
}

// HandleAdminCommand injects a chat line with broadcaster rights.
func (h *Handlers) HandleAdminCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "body must be {\"text\": \"!command ...\"}", http.StatusBadRequest)
		return
	}
	login := req.Login
	if login == "" {
		login = h.deps.OperatorLogin
	}
	msg := event.ChatMessage{
		ID:     telemetry.GetCorrelation(r.Context()),
		Login:  strings.ToLower(login),
		Text:   req.Text,
		Roles:  event.Roles{Broadcaster: true},
		SentAt: time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	h.publish(w, r, msg, msg.ID)
}

type speakRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// HandleAdminSpeak injects a speech request.
func (h *Handlers) HandleAdminSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "body must be {\"username\": \"...\", \"message\": \"...\"}", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		req.Username = h.deps.OperatorLogin
	}
	h.publish(w, r, event.SpeechRequest{Username: strings.ToLower(req.Username), Message: req.Message}, telemetry.GetCorrelation(r.Context()))
}

func (h *Handlers) publish(w http.ResponseWriter, r *http.Request, ev event.Event, id string) {
	if h.deps.Bus == nil {
		http.Error(w, "bus unavailable", http.StatusServiceUnavailable)
		return
	}
	n := h.deps.Bus.Publish(ev)
	telemetry.LoggerWithCorr(r.Context()).Info("operator event published",
		slog.String("kind", string(ev.Kind())), slog.Int("receivers", n), slog.String("component", "http"))
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "kind": ev.Kind(), "receivers": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}
