// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once    sync.Once
	busOnce sync.Once

	// Counters
	ChatMessages     prometheus.Counter
	CommandsRouted   *prometheus.CounterVec // labels: command, outcome
	RemoteCalls      *prometheus.CounterVec // labels: op, result
	ReceiverLag      *prometheus.CounterVec // labels: handler
	HandlerErrors    *prometheus.CounterVec // labels: handler
	SpeechRequests   *prometheus.CounterVec // labels: result
	OrchestratorRuns *prometheus.CounterVec // labels: op, result

	// Histograms (seconds)
	OrchestratorDuration *prometheus.HistogramVec // labels: op
	SpeechDuration       prometheus.Observer

	// Gauges
	HandlerState *prometheus.GaugeVec // labels: handler; 0=registered 1=running 2=completed 3=failed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_chat_messages_total", Help: "Chat lines received from IRC"})
		CommandsRouted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "copilot_commands_total", Help: "Parsed chat commands by outcome"}, []string{"command", "outcome"})
		RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{Name: "copilot_obs_requests_total", Help: "OBS websocket requests by type and result"}, []string{"op", "result"})
		ReceiverLag = promauto.NewCounterVec(prometheus.CounterOpts{Name: "copilot_receiver_lagged_events_total", Help: "Events a handler missed because its queue was full"}, []string{"handler"})
		HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "copilot_handler_errors_total", Help: "Per-event handler failures"}, []string{"handler"})
		SpeechRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "copilot_speech_requests_total", Help: "Speech requests by result"}, []string{"result"})
		OrchestratorRuns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "copilot_transform_runs_total", Help: "Transform orchestrator operations by result"}, []string{"op", "result"})
		OrchestratorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "copilot_transform_duration_seconds", Help: "Transform orchestrator operation duration seconds", Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5}}, []string{"op"})
		SpeechDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "copilot_speech_duration_seconds", Help: "Speech request duration from synthesis to hide", Buckets: []float64{1, 2, 5, 10, 20, 30, 60}})
		HandlerState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "copilot_handler_state", Help: "Handler state: 0=registered 1=running 2=completed 3=failed"}, []string{"handler"})
	})
}

// BusStats is what the bus exposes to the metric collectors.
type BusStats func() (published, discarded, dropped uint64, receivers int)

// RegisterBus exposes bus counters as function-backed metrics. Only the first
// call registers.
func RegisterBus(stats BusStats) {
	busOnce.Do(func() {
		promauto.NewCounterFunc(prometheus.CounterOpts{Name: "copilot_bus_published_total", Help: "Events published on the bus"}, func() float64 {
			p, _, _, _ := stats()
			return float64(p)
		})
		promauto.NewCounterFunc(prometheus.CounterOpts{Name: "copilot_bus_discarded_total", Help: "Events published with no receivers"}, func() float64 {
			_, d, _, _ := stats()
			return float64(d)
		})
		promauto.NewCounterFunc(prometheus.CounterOpts{Name: "copilot_bus_dropped_total", Help: "Events dropped from lagging receivers"}, func() float64 {
			_, _, d, _ := stats()
			return float64(d)
		})
		promauto.NewGaugeFunc(prometheus.GaugeOpts{Name: "copilot_bus_receivers", Help: "Live bus receivers"}, func() float64 {
			_, _, _, r := stats()
			return float64(r)
		})
	})
}

// SetHandlerState records a handler's lifecycle state.
func SetHandlerState(handler string, state int) {
	if HandlerState != nil {
		HandlerState.WithLabelValues(handler).Set(float64(state))
	}
}

// CountRemoteCall records one OBS request outcome.
func CountRemoteCall(op string, err error) {
	if RemoteCalls == nil {
		return
	}
	RemoteCalls.WithLabelValues(op, result(err)).Inc()
}

// CountChatMessage records one received chat line.
func CountChatMessage() {
	if ChatMessages != nil {
		ChatMessages.Inc()
	}
}

// CountLag records events a handler missed.
func CountLag(handler string, missed uint64) {
	if ReceiverLag != nil {
		ReceiverLag.WithLabelValues(handler).Add(float64(missed))
	}
}

// CountHandlerError records a failed event iteration.
func CountHandlerError(handler string) {
	if HandlerErrors != nil {
		HandlerErrors.WithLabelValues(handler).Inc()
	}
}

// CountCommand records a routed command outcome (ok, denied, invalid, failed, ignored).
func CountCommand(command, outcome string) {
	if CommandsRouted != nil {
		CommandsRouted.WithLabelValues(command, outcome).Inc()
	}
}

// CountSpeech records a finished speech request.
func CountSpeech(err error) {
	if SpeechRequests != nil {
		SpeechRequests.WithLabelValues(result(err)).Inc()
	}
}

// ObserveOrchestration records an orchestrator operation's duration and result.
func ObserveOrchestration(op string, start time.Time, err error) {
	if OrchestratorDuration != nil {
		OrchestratorDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if OrchestratorRuns != nil {
		OrchestratorRuns.WithLabelValues(op, result(err)).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
