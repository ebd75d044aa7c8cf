package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/obs"
	"github.com/onnwee/copilot/telemetry"
)

// Settle is how long OBS gets to apply written settings before the filter is
// enabled. Text writes need less time than value writes.
type Settle struct {
	Filter time.Duration
	Text   time.Duration
}

// DefaultSettle returns the delays used in production.
func DefaultSettle() Settle {
	return Settle{Filter: 400 * time.Millisecond, Text: 300 * time.Millisecond}
}

const tracer = "copilot/transform"

// Orchestrator runs transform sequences against one OBS connection.
type Orchestrator struct {
	client obs.Controller
	settle Settle
	// sleep is not interrupted by ctx: a started sequence always reaches its enable step.
	sleep func(time.Duration)
}

// New returns an orchestrator driving client.
func New(client obs.Controller, settle Settle) *Orchestrator {
	return &Orchestrator{client: client, settle: settle, sleep: time.Sleep}
}

// Execute performs one routed request. Publish requests go to pub.
func (o *Orchestrator) Execute(ctx context.Context, pub event.Publisher, r Request) error {
	switch req := r.(type) {
	case FilterValue:
		return o.UpdateFilterValue(ctx, req)
	case FilterValues:
		return o.UpdateFilterValues(ctx, req)
	case SourceMove:
		return o.MoveSource(ctx, req)
	case Grow:
		return o.Grow(ctx, req)
	case Follow:
		return o.Follow(ctx, req)
	case Hotkey:
		return o.client.TriggerHotkey(ctx, req.Key, req.Modifiers)
	case SceneSwitch:
		return o.client.SetCurrentScene(ctx, req.Scene)
	case Publish:
		if req.Event == nil {
			return errors.New("publish request without event")
		}
		pub.Publish(req.Event)
		return nil
	default:
		return fmt.Errorf("unsupported request %T", r)
	}
}

// UpdateFilterValue animates one setting of a filter through its move filter.
// Fetch or decode failures fall back to empty settings; only the write can fail
// the operation.
func (o *Orchestrator) UpdateFilterValue(ctx context.Context, req FilterValue) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracer, "UpdateFilterValue", telemetry.SourceAttr(req.Source), telemetry.FilterAttr(req.Filter))
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.ObserveOrchestration("filter_value", start, err)
	}()

	base, _ := fetchSettings[SingleValueSettings](ctx, o.client, req.Source, req.Filter)
	merged := MergeSingleValue(base, req.Setting, req.Value, req.Duration)

	if err := o.client.SetFilterSettings(ctx, req.Source, req.Filter, merged, true); err != nil {
		return fmt.Errorf("write %s/%s: %w", req.Source, req.Filter, err)
	}
	o.sleep(o.settle.Filter)
	o.enable(ctx, req.Source, req.Filter)
	return nil
}

// UpdateFilterValues animates several orthographic values at once.
func (o *Orchestrator) UpdateFilterValues(ctx context.Context, req FilterValues) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracer, "UpdateFilterValues", telemetry.SourceAttr(req.Source), telemetry.FilterAttr(req.Filter))
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.ObserveOrchestration("filter_values", start, err)
	}()

	base, _ := fetchSettings[MultiValueSettings](ctx, o.client, req.Source, req.Filter)
	merged, err := MergeMultiValue(base, req.Values, req.Duration)
	if err != nil {
		return err
	}
	if err := o.client.SetFilterSettings(ctx, req.Source, req.Filter, merged, true); err != nil {
		return fmt.Errorf("write %s/%s: %w", req.Source, req.Filter, err)
	}
	o.sleep(o.settle.Filter)
	o.enable(ctx, req.Source, req.Filter)
	return nil
}

// UpdateText overwrites a text move filter's settings and replays it.
func (o *Orchestrator) UpdateText(ctx context.Context, source, filter, text string, duration int) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracer, "UpdateText", telemetry.SourceAttr(source), telemetry.FilterAttr(filter))
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.ObserveOrchestration("text", start, err)
	}()

	if err := o.client.SetFilterSettings(ctx, source, filter, NewTextSettings(text, duration), false); err != nil {
		return fmt.Errorf("write text %s/%s: %w", source, filter, err)
	}
	o.sleep(o.settle.Text)
	o.enable(ctx, source, filter)
	return nil
}

// MoveSource animates a scene item through the move_source_filter on its
// scene, creating the filter the first time the item is moved.
func (o *Orchestrator) MoveSource(ctx context.Context, req SourceMove) (err error) {
	start := time.Now()
	filter := req.Filter
	if filter == "" {
		filter = MoveFilterName(req.Source)
	}
	ctx, span := telemetry.StartSpan(ctx, tracer, "MoveSource", telemetry.SourceAttr(req.Source), telemetry.FilterAttr(filter))
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.ObserveOrchestration("source_move", start, err)
	}()

	exists := true
	var base MoveSourceSettings
	st, err := o.client.GetFilter(ctx, req.Scene, filter)
	switch {
	case errors.Is(err, obs.ErrNotFound):
		exists = false
		base = DefaultMoveSource(req.Source)
	case err != nil:
		slog.Warn("move filter fetch failed, using defaults", slog.String("scene", req.Scene), slog.String("filter", filter), slog.Any("err", err))
		base = DefaultMoveSource(req.Source)
	default:
		if err := json.Unmarshal(orEmpty(st.Settings), &base); err != nil {
			slog.Warn("move filter settings undecodable, using defaults", slog.String("filter", filter), slog.Any("err", err))
			base = DefaultMoveSource(req.Source)
		}
	}

	change := MoveChange{X: req.X, Y: req.Y, Rotation: req.Rotation, Duration: &req.Duration}
	if req.Scale != nil {
		sx, sy := 1.0, 1.0
		if tr, err := o.client.GetTransform(ctx, req.Scene, req.Source); err != nil {
			slog.Warn("transform fetch failed, scaling from 1", slog.String("source", req.Source), slog.Any("err", err))
		} else {
			if tr.ScaleX != 0 {
				sx = tr.ScaleX
			}
			if tr.ScaleY != 0 {
				sy = tr.ScaleY
			}
		}
		sx, sy = sx*(*req.Scale), sy*(*req.Scale)
		change.ScaleX, change.ScaleY = &sx, &sy
	}
	merged := MergeMove(base, change)

	if exists {
		err = o.client.SetFilterSettings(ctx, req.Scene, filter, merged, true)
	} else {
		err = o.client.CreateFilter(ctx, req.Scene, filter, MoveSourceKind, merged)
	}
	if err != nil {
		return fmt.Errorf("write move %s/%s: %w", req.Scene, filter, err)
	}
	o.sleep(o.settle.Filter)
	o.enable(ctx, req.Scene, filter)
	return nil
}

// Grow scales every source by the same factor, concurrently. Each source runs
// its own sequence; one failing leaves the others untouched.
func (o *Orchestrator) Grow(ctx context.Context, req Grow) error {
	factor := req.Factor
	return o.each(req.Sources, func(src string) error {
		return o.MoveSource(ctx, SourceMove{Scene: req.Scene, Source: src, Scale: &factor, Duration: req.Duration})
	})
}

// Follow reads the leader's transform and moves every follower onto it.
func (o *Orchestrator) Follow(ctx context.Context, req Follow) error {
	lead, err := o.client.GetTransform(ctx, req.Scene, req.Leader)
	if err != nil {
		return fmt.Errorf("read leader %s: %w", req.Leader, err)
	}
	x, y := lead.PositionX, lead.PositionY
	followers := make([]string, 0, len(req.Followers))
	for _, src := range req.Followers {
		if src != req.Leader {
			followers = append(followers, src)
		}
	}
	return o.each(followers, func(src string) error {
		return o.MoveSource(ctx, SourceMove{Scene: req.Scene, Source: src, X: &x, Y: &y, Duration: req.Duration})
	})
}

// each runs fn for every source concurrently and joins the failures. The
// group carries no derived context: a failure never cancels a sibling.
func (o *Orchestrator) each(sources []string, fn func(src string) error) error {
	var g errgroup.Group
	errs := make([]error, len(sources))
	for i, src := range sources {
		g.Go(func() error {
			errs[i] = fn(src)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// fetchSettings decodes the current settings of filter. It reports false and
// returns the zero value when the snapshot is unavailable or undecodable.
func fetchSettings[T any](ctx context.Context, client obs.Controller, source, filter string) (T, bool) {
	var out T
	st, err := client.GetFilter(ctx, source, filter)
	if err != nil {
		slog.Warn("filter fetch failed, using defaults", slog.String("source", source), slog.String("filter", filter), slog.Any("err", err))
		return out, false
	}
	if err := json.Unmarshal(orEmpty(st.Settings), &out); err != nil {
		slog.Warn("filter settings undecodable, using defaults", slog.String("source", source), slog.String("filter", filter), slog.Any("err", err))
		var zero T
		return zero, false
	}
	return out, true
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

// enable replays the filter. A failure here is logged only: the settings are
// already written and the next trigger will pick them up.
func (o *Orchestrator) enable(ctx context.Context, source, filter string) {
	if err := o.client.SetFilterEnabled(ctx, source, filter, true); err != nil {
		slog.Warn("filter enable failed", slog.String("source", source), slog.String("filter", filter), slog.Any("err", err))
	}
}
