package eventloop

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/telemetry"
)

// Consume runs the standard receive loop for a handler: lag is logged and
// skipped, an error from fn is logged and the loop moves on to the next event.
// It returns only when the receiver is closed or ctx is done.
func Consume(ctx context.Context, name string, rx *event.Receiver, fn func(context.Context, event.Event) error) error {
	for {
		ev, err := rx.Recv(ctx)
		if err != nil {
			var lag *event.LaggedError
			if errors.As(err, &lag) {
				slog.Warn("handler lagged behind bus", slog.String("handler", name), slog.Uint64("missed", lag.Missed))
				telemetry.CountLag(name, lag.Missed)
				continue
			}
			return err
		}
		if err := fn(ctx, ev); err != nil {
			telemetry.CountHandlerError(name)
			slog.Error("handler event failed", slog.String("handler", name), slog.String("kind", string(ev.Kind())), slog.Any("err", err))
		}
	}
}
