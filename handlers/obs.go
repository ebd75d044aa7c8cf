package handlers

import (
	"context"
	"fmt"

	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/eventloop"
	"github.com/onnwee/copilot/obs"
	"github.com/onnwee/copilot/transform"
)

// Text applies TextUpdateRequests through the orchestrator's text variant.
type Text struct {
	Orchestrator *transform.Orchestrator
	// Filter is used when a request names none.
	Filter   string
	Duration int
}

// Handle consumes text update requests.
func (h *Text) Handle(ctx context.Context, _ event.Publisher, rx *event.Receiver) error {
	return eventloop.Consume(ctx, "text", rx, func(ctx context.Context, ev event.Event) error {
		e, ok := ev.(event.TextUpdateRequest)
		if !ok {
			return nil
		}
		filter := e.Filter
		if filter == "" {
			filter = h.Filter
		}
		return h.Orchestrator.UpdateText(ctx, e.Source, filter, e.Text, h.Duration)
	})
}

// Visibility applies scene item and filter toggles.
type Visibility struct {
	Client obs.Controller
	// Scene is used for SourceVisibilityRequests without a scene.
	Scene string
	// CharactersScene holds the stream character sources.
	CharactersScene string
}

// Handle consumes visibility, character and filter trigger requests.
func (h *Visibility) Handle(ctx context.Context, _ event.Publisher, rx *event.Receiver) error {
	return eventloop.Consume(ctx, "visibility", rx, h.apply)
}

func (h *Visibility) apply(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case event.SourceVisibilityRequest:
		scene := e.Scene
		if scene == "" {
			scene = h.Scene
		}
		if err := h.Client.SetSceneItemEnabled(ctx, scene, e.Source, e.Enabled); err != nil {
			return fmt.Errorf("set %s/%s enabled=%t: %w", scene, e.Source, e.Enabled, err)
		}
	case event.StreamCharacterRequest:
		if err := h.Client.SetSceneItemEnabled(ctx, h.CharactersScene, e.Source, e.Enabled); err != nil {
			return fmt.Errorf("set character %s enabled=%t: %w", e.Source, e.Enabled, err)
		}
	case event.FilterTriggerRequest:
		if err := h.Client.SetFilterEnabled(ctx, e.Source, e.Filter, true); err != nil {
			return fmt.Errorf("trigger %s/%s: %w", e.Source, e.Filter, err)
		}
	default:
	}
	return nil
}
