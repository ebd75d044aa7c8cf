// Package handlers holds the long-running bus consumers: the chat command
// handler, the OBS side-effect handlers and the speech handler.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/copilot/command"
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/eventloop"
	"github.com/onnwee/copilot/telemetry"
	"github.com/onnwee/copilot/transform"
)

// CommandLog stores command outcomes.
type CommandLog interface {
	RecordCommand(ctx context.Context, messageID, command, outcome string) error
}

// Commands turns chat commands into OBS effects.
type Commands struct {
	Orchestrator *transform.Orchestrator
	Defaults     command.Defaults
	// Log is optional.
	Log CommandLog
}

// Handle consumes chat messages until the receiver closes.
func (h *Commands) Handle(ctx context.Context, pub event.Publisher, rx *event.Receiver) error {
	return eventloop.Consume(ctx, "commands", rx, func(ctx context.Context, ev event.Event) error {
		switch e := ev.(type) {
		case event.ChatMessage:
			return h.HandleMessage(ctx, pub, e)
		default:
			return nil
		}
	})
}

// HandleMessage runs one chat line. Non-commands and unknown commands are
// ignored; a command the sender may not run is dropped silently.
func (h *Commands) HandleMessage(ctx context.Context, pub event.Publisher, msg event.ChatMessage) error {
	if !command.IsCommand(msg.Text) {
		return nil
	}
	if msg.ID != "" {
		ctx = telemetry.WithCorrelation(ctx, msg.ID)
	}
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("user", msg.Login), slog.String("component", "commands"))

	cmd, err := command.Parse(msg.Text)
	if err != nil {
		h.outcome(ctx, msg.ID, "invalid", "invalid")
		return fmt.Errorf("parse %q from %s: %w", msg.Text, msg.Login, err)
	}
	if _, ok := cmd.(command.Unknown); ok {
		return nil
	}
	caller := command.Caller{Login: msg.Login, Roles: msg.Roles}
	if !command.Allowed(cmd, caller) {
		h.outcome(ctx, msg.ID, cmd.Word(), "denied")
		log.Debug("command denied", slog.String("command", cmd.Word()), slog.String("role", msg.Roles.Tier().String()))
		return nil
	}

	var errs []error
	for _, req := range command.Route(cmd, caller, h.Defaults) {
		if err := h.Orchestrator.Execute(ctx, pub, req); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", req.Op(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		h.outcome(ctx, msg.ID, cmd.Word(), "failed")
		return fmt.Errorf("%s from %s: %w", cmd.Word(), msg.Login, err)
	}
	h.outcome(ctx, msg.ID, cmd.Word(), "ok")
	log.Info("command applied", slog.String("command", cmd.Word()))
	return nil
}

func (h *Commands) outcome(ctx context.Context, messageID, word, outcome string) {
	telemetry.CountCommand(word, outcome)
	if h.Log == nil {
		return
	}
	if err := h.Log.RecordCommand(ctx, messageID, word, outcome); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("record command outcome", slog.String("command", word), slog.Any("error", err))
	}
}

// SpeechRelay voices every non-command chat line.
type SpeechRelay struct{}

// Handle republishes chat lines as speech requests.
func (SpeechRelay) Handle(ctx context.Context, pub event.Publisher, rx *event.Receiver) error {
	return eventloop.Consume(ctx, "speech-relay", rx, func(ctx context.Context, ev event.Event) error {
		msg, ok := ev.(event.ChatMessage)
		if !ok || command.IsCommand(msg.Text) {
			return nil
		}
		pub.Publish(event.SpeechRequest{Username: msg.Login, Message: msg.Text})
		return nil
	})
}
