// Package eventloop owns the event bus and supervises the long-running handlers
// subscribed to it.
//
// Each registered handler gets its own bus receiver and runs in its own
// goroutine until it returns. A failing handler is reported but never cancels
// its siblings: the loop keeps running degraded until every handler is done.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/telemetry"
)

// Handler is a unit of work consuming one bus subscription.
type Handler interface {
	Handle(ctx context.Context, pub event.Publisher, rx *event.Receiver) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, pub event.Publisher, rx *event.Receiver) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, pub event.Publisher, rx *event.Receiver) error {
	return f(ctx, pub, rx)
}

// State is a handler's lifecycle state.
type State int

const (
	StateRegistered State = iota
	StateRunning
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HandlerStatus is a snapshot of one registration.
type HandlerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type registration struct {
	name    string
	handler Handler
	state   State
	err     error
}

// Loop registers handlers and runs them against one bus.
type Loop struct {
	bus *event.Bus

	mu      sync.Mutex
	regs    []*registration
	started bool
}

// New returns a loop over bus.
func New(bus *event.Bus) *Loop {
	return &Loop{bus: bus}
}

// Bus returns the loop's bus.
func (l *Loop) Bus() *event.Bus { return l.bus }

// Register adds a handler. Names must be unique; registering after Run has
// started is an error.
func (l *Loop) Register(name string, h Handler) error {
	if h == nil {
		return fmt.Errorf("register %q: nil handler", name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return fmt.Errorf("register %q: loop already running", name)
	}
	for _, r := range l.regs {
		if r.name == name {
			return fmt.Errorf("register %q: duplicate handler name", name)
		}
	}
	l.regs = append(l.regs, &registration{name: name, handler: h})
	telemetry.SetHandlerState(name, int(StateRegistered))
	return nil
}

// Run subscribes every handler, starts them, and blocks until all of them
// return. The returned error joins every handler failure.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("eventloop: loop already started")
	}
	l.started = true
	regs := append([]*registration(nil), l.regs...)
	// subscribe everyone before any handler can publish
	rxs := make([]*event.Receiver, len(regs))
	for i := range regs {
		rxs[i] = l.bus.Subscribe()
	}
	l.mu.Unlock()

	slog.Info("eventloop: starting handlers", slog.Int("count", len(regs)), slog.String("component", "eventloop"))

	var wg sync.WaitGroup
	errs := make([]error, len(regs))
	for i, reg := range regs {
		l.setState(reg, StateRunning, nil)
		wg.Add(1)
		go func(i int, reg *registration, rx *event.Receiver) {
			defer wg.Done()
			defer rx.Close()
			err := l.runOne(ctx, reg, rx)
			if err != nil && !isShutdown(ctx, err) {
				l.setState(reg, StateFailed, err)
				slog.Error("eventloop: handler failed", slog.String("handler", reg.name), slog.Any("err", err), slog.String("component", "eventloop"))
				errs[i] = fmt.Errorf("handler %s: %w", reg.name, err)
				return
			}
			l.setState(reg, StateCompleted, nil)
			slog.Info("eventloop: handler completed", slog.String("handler", reg.name), slog.String("component", "eventloop"))
		}(i, reg, rxs[i])
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (l *Loop) runOne(ctx context.Context, reg *registration, rx *event.Receiver) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return reg.handler.Handle(ctx, l.bus, rx)
}

func isShutdown(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, event.ErrClosed)
}

func (l *Loop) setState(reg *registration, s State, err error) {
	l.mu.Lock()
	reg.state = s
	reg.err = err
	l.mu.Unlock()
	telemetry.SetHandlerState(reg.name, int(s))
}

// States returns a snapshot of every registration in registration order.
func (l *Loop) States() []HandlerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]HandlerStatus, 0, len(l.regs))
	for _, r := range l.regs {
		st := HandlerStatus{Name: r.name, State: r.state.String()}
		if r.err != nil {
			st.Error = r.err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Healthy reports whether every handler is running.
func (l *Loop) Healthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return false
	}
	for _, r := range l.regs {
		if r.state != StateRunning {
			return false
		}
	}
	return true
}
