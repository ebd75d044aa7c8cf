package transform

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/obs"
	"github.com/onnwee/copilot/testutil"
)

func newTestOrchestrator(fake *testutil.FakeOBS) (*Orchestrator, *[]time.Duration) {
	o := New(fake, DefaultSettle())
	var (
		mu    sync.Mutex
		slept []time.Duration
	)
	o.sleep = func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, d)
	}
	return o, &slept
}

func decode[T any](t *testing.T, v any) T {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestMergeSingleValuePreservesUnnamedFields(t *testing.T) {
	base := SingleValueSettings{
		Source:    ptr("BeginCam"),
		Filter:    ptr("Blur"),
		BlurSize:  ptr(3.0),
		GlowOuter: ptr(true),
	}
	got := MergeSingleValue(base, "Filter.Blur.Size", 50, 3000)

	if *got.Source != "BeginCam" || *got.Filter != "Blur" || *got.BlurSize != 3 || !*got.GlowOuter {
		t.Errorf("unnamed fields changed: %+v", got)
	}
	if *got.SettingName != "Filter.Blur.Size" || *got.SettingFloat != 50 || *got.Duration != 3000 {
		t.Errorf("named fields not written: %+v", got)
	}
	if *got.ValueType != ValueTypeFloat || *got.MoveValueType != MoveValueSingle {
		t.Errorf("type tags = %d/%d", *got.ValueType, *got.MoveValueType)
	}
	if base.SettingName != nil {
		t.Error("base was mutated")
	}
	if again := MergeSingleValue(got, "Filter.Blur.Size", 50, 3000); !reflect.DeepEqual(again, got) {
		t.Error("merge is not idempotent")
	}
}

func TestMergeMultiValue(t *testing.T) {
	base := DefaultOrthographic()
	got, err := MergeMultiValue(base, []Value{{Name: "rotation.z", Value: 360}}, 5000)
	if err != nil {
		t.Fatalf("MergeMultiValue() error = %v", err)
	}
	if *got.RotationZ != 360 || *got.Duration != 5000 {
		t.Errorf("named values not written: %+v", got)
	}
	if *got.ScaleX != 100 || *got.RotationX != 0 || *got.Filter != OrthographicFilter {
		t.Errorf("other values changed: %+v", got)
	}
	if *base.RotationZ != 0 {
		t.Error("base was mutated")
	}
	if _, err := MergeMultiValue(base, []Value{{Name: "Wobble", Value: 1}}, 0); err == nil {
		t.Error("expected unknown setting error")
	}
}

func TestOrthographicValuesMatchDefaults(t *testing.T) {
	got, err := MergeMultiValue(MultiValueSettings{}, OrthographicValues(), 0)
	if err != nil {
		t.Fatalf("MergeMultiValue() error = %v", err)
	}
	def := DefaultOrthographic()
	if *got.ScaleX != *def.ScaleX || *got.ShearY != *def.ShearY || *got.RotationZ != *def.RotationZ {
		t.Errorf("reset values = %+v", got)
	}
}

func TestMergeMoveKeepsUntouchedParts(t *testing.T) {
	base := DefaultMoveSource("BeginCam")
	x := 100.0
	got := MergeMove(base, MoveChange{X: &x})
	if *got.Position.X != 100 || *got.Position.Y != 13 {
		t.Errorf("position = %v,%v", *got.Position.X, *got.Position.Y)
	}
	if *base.Position.X != 1662 {
		t.Error("base was mutated")
	}
	if *got.Bounds.X != 251 || *got.Duration != 300 || *got.Source != "BeginCam" {
		t.Errorf("untouched parts changed: %+v", got)
	}
	want := "pos: x 100.0 y 13.0 rot: 0.0 bounds: x 251.000 y 234.000 crop: l 0 t 0 r 0 b 0"
	if *got.TransformText != want {
		t.Errorf("transform_text = %q, want %q", *got.TransformText, want)
	}
}

func TestUpdateFilterValueWritesOnceAndEnables(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.SetFilter("BeginCam", "Move_Blur", map[string]any{"filter": "Blur", "setting_float_max": 100.0})
	o, slept := newTestOrchestrator(fake)

	err := o.UpdateFilterValue(context.Background(), FilterValue{Source: "BeginCam", Filter: "Move_Blur", Setting: "Filter.Blur.Size", Value: 50, Duration: 3000})
	if err != nil {
		t.Fatalf("UpdateFilterValue() error = %v", err)
	}
	writes := fake.Writes()
	if len(writes) != 2 || writes[0].Method != "SetFilterSettings" || writes[1].Method != "SetFilterEnabled" {
		t.Fatalf("writes = %+v", writes)
	}
	if !writes[0].Overlay || !writes[1].Enabled || writes[1].Target != "BeginCam" || writes[1].Name != "Move_Blur" {
		t.Errorf("unexpected write details: %+v", writes)
	}
	s := decode[SingleValueSettings](t, writes[0].Settings)
	if *s.Filter != "Blur" || *s.SettingFloatMax != 100 || *s.SettingFloat != 50 {
		t.Errorf("written settings = %+v", s)
	}
	if len(*slept) != 1 || (*slept)[0] != 400*time.Millisecond {
		t.Errorf("settle = %v, want [400ms]", *slept)
	}
}

func TestUpdateFilterValueFallsBackWhenFetchFails(t *testing.T) {
	for name, setup := range map[string]func(*testutil.FakeOBS){
		"fetch error": func(f *testutil.FakeOBS) { f.FailWith("GetFilter", errors.New("socket closed")) },
		"not found":   func(f *testutil.FakeOBS) {},
		"undecodable": func(f *testutil.FakeOBS) {
			f.Filters["BeginCam/Move_Blur"] = obs.FilterState{Settings: json.RawMessage(`{"setting_float":"lots"}`)}
		},
	} {
		t.Run(name, func(t *testing.T) {
			fake := testutil.NewFakeOBS()
			setup(fake)
			o, _ := newTestOrchestrator(fake)
			if err := o.UpdateFilterValue(context.Background(), FilterValue{Source: "BeginCam", Filter: "Move_Blur", Setting: "Filter.Blur.Size", Value: 10, Duration: 100}); err != nil {
				t.Fatalf("UpdateFilterValue() error = %v", err)
			}
			writes := fake.Calls("SetFilterSettings")
			if len(writes) != 1 {
				t.Fatalf("writes = %d, want 1", len(writes))
			}
			s := decode[SingleValueSettings](t, writes[0].Settings)
			if s.Filter != nil || s.SettingFloat == nil || *s.SettingFloat != 10 {
				t.Errorf("fallback settings = %+v", s)
			}
		})
	}
}

func TestUpdateFilterValueIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.SetFilter("BeginCam", "Move_Blur", map[string]any{"filter": "Blur"})
	o, _ := newTestOrchestrator(fake)
	req := FilterValue{Source: "BeginCam", Filter: "Move_Blur", Setting: "Filter.Blur.Size", Value: 25, Duration: 100}

	_ = o.UpdateFilterValue(context.Background(), req)
	first := string(fake.Filters["BeginCam/Move_Blur"].Settings)
	_ = o.UpdateFilterValue(context.Background(), req)
	if second := string(fake.Filters["BeginCam/Move_Blur"].Settings); first != second {
		t.Errorf("second update changed state:\n%s\n%s", first, second)
	}
}

func TestEnableFailureStillSucceeds(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.FailWith("SetFilterEnabled", errors.New("boom"))
	o, _ := newTestOrchestrator(fake)
	if err := o.UpdateFilterValue(context.Background(), FilterValue{Source: "s", Filter: "f", Setting: "x", Value: 1}); err != nil {
		t.Errorf("UpdateFilterValue() error = %v, want nil", err)
	}
}

func TestWriteFailureSkipsEnable(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.FailWith("SetFilterSettings", errors.New("boom"))
	o, slept := newTestOrchestrator(fake)
	if err := o.UpdateFilterValue(context.Background(), FilterValue{Source: "s", Filter: "f", Setting: "x", Value: 1}); err == nil {
		t.Fatal("expected write error")
	}
	if n := len(fake.Calls("SetFilterEnabled")); n != 0 {
		t.Errorf("enable calls = %d, want 0", n)
	}
	if len(*slept) != 0 {
		t.Error("settled after a failed write")
	}
}

func TestUpdateFilterValuesCarriesRemoteStateWhenFetchFails(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.SetFilter("BeginCam", "Move_3D", MultiValueSettings{
		Filter:    ptr(OrthographicFilter),
		RotationX: ptr(45.0),
		ScaleX:    ptr(150.0),
	})
	fake.FailWith("GetFilter", errors.New("transient"))
	o, _ := newTestOrchestrator(fake)

	err := o.UpdateFilterValues(context.Background(), FilterValues{Source: "BeginCam", Filter: "Move_3D", Values: []Value{{Name: "Rotation.Z", Value: 90}}, Duration: 5000})
	if err != nil {
		t.Fatalf("UpdateFilterValues() error = %v", err)
	}
	w := fake.Calls("SetFilterSettings")[0]
	if !w.Overlay {
		t.Error("write should overlay")
	}
	sent := decode[MultiValueSettings](t, w.Settings)
	if sent.RotationX != nil || sent.ScaleX != nil || sent.Filter != nil {
		t.Errorf("unnamed values sent: %+v", sent)
	}
	if *sent.RotationZ != 90 || *sent.Duration != 5000 || *sent.MoveValueType != MoveValueSettings {
		t.Errorf("named values = %+v", sent)
	}

	var stored MultiValueSettings
	if err := json.Unmarshal(fake.Filters["BeginCam/Move_3D"].Settings, &stored); err != nil {
		t.Fatal(err)
	}
	if *stored.RotationX != 45 || *stored.ScaleX != 150 || *stored.RotationZ != 90 || *stored.Filter != OrthographicFilter {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpdateTextOverwritesWithoutFetch(t *testing.T) {
	fake := testutil.NewFakeOBS()
	o, slept := newTestOrchestrator(fake)
	if err := o.UpdateText(context.Background(), "Seal-text", "TextMove", "hello chat", 300); err != nil {
		t.Fatalf("UpdateText() error = %v", err)
	}
	if n := len(fake.Calls("GetFilter")); n != 0 {
		t.Errorf("fetches = %d, want 0", n)
	}
	w := fake.Calls("SetFilterSettings")[0]
	if w.Overlay {
		t.Error("text write should replace settings")
	}
	ts := w.Settings.(TextSettings)
	if ts.SettingText != "hello chat" || ts.SettingName != "text" || ts.ValueType != ValueTypeText || !ts.CustomDuration {
		t.Errorf("text settings = %+v", ts)
	}
	if (*slept)[0] != 300*time.Millisecond {
		t.Errorf("settle = %v, want 300ms", (*slept)[0])
	}
}

func TestMoveSourceCreatesFilterOnce(t *testing.T) {
	fake := testutil.NewFakeOBS()
	o, _ := newTestOrchestrator(fake)
	x, y := 10.0, 20.0
	req := SourceMove{Scene: "Primary", Source: "BeginCam", X: &x, Y: &y, Duration: 500}

	if err := o.MoveSource(context.Background(), req); err != nil {
		t.Fatalf("MoveSource() error = %v", err)
	}
	if n := len(fake.Calls("CreateFilter")); n != 1 {
		t.Fatalf("creates = %d, want 1", n)
	}
	if st := fake.Filters["Primary/Move_BeginCam"]; st.Kind != MoveSourceKind {
		t.Errorf("kind = %q", st.Kind)
	}
	if err := o.MoveSource(context.Background(), req); err != nil {
		t.Fatalf("second MoveSource() error = %v", err)
	}
	if n := len(fake.Calls("CreateFilter")); n != 1 {
		t.Errorf("creates after second move = %d, want 1", n)
	}
	s := decode[MoveSourceSettings](t, fake.Calls("SetFilterSettings")[0].Settings)
	if *s.Position.X != 10 || *s.Position.Y != 20 || *s.Bounds.X != 251 || *s.Duration != 500 {
		t.Errorf("move settings = %+v", s)
	}
}

func TestGrowScalesRelativeToCurrentTransform(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.Transforms["Primary/BeginCam"] = obs.Transform{ScaleX: 0.5, ScaleY: 0.5}
	o, _ := newTestOrchestrator(fake)

	err := o.Grow(context.Background(), Grow{Scene: "Primary", Sources: []string{"BeginCam", "Screen"}, Factor: 2, Duration: 300})
	if err != nil {
		t.Fatalf("Grow() error = %v", err)
	}
	scale := func(key string) float64 {
		var s MoveSourceSettings
		if err := json.Unmarshal(fake.Filters[key].Settings, &s); err != nil {
			t.Fatalf("decode %s: %v", key, err)
		}
		return *s.Scale.X
	}
	if got := scale("Primary/Move_BeginCam"); got != 1 {
		t.Errorf("BeginCam scale = %v, want 1", got)
	}
	// no transform for Screen: scaling starts from 1
	if got := scale("Primary/Move_Screen"); got != 2 {
		t.Errorf("Screen scale = %v, want 2", got)
	}
}

func TestFollowMovesFollowersToLeader(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.Transforms["Primary/Leader"] = obs.Transform{PositionX: 640, PositionY: 360}
	o, _ := newTestOrchestrator(fake)

	err := o.Follow(context.Background(), Follow{Scene: "Primary", Leader: "Leader", Followers: []string{"A", "Leader", "B"}})
	if err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if n := len(fake.Calls("CreateFilter")); n != 2 {
		t.Errorf("moves = %d, want 2", n)
	}
	var s MoveSourceSettings
	_ = json.Unmarshal(fake.Filters["Primary/Move_B"].Settings, &s)
	if *s.Position.X != 640 || *s.Position.Y != 360 {
		t.Errorf("B position = %v,%v", *s.Position.X, *s.Position.Y)
	}

	if err := o.Follow(context.Background(), Follow{Scene: "Primary", Leader: "Ghost", Followers: []string{"A"}}); err == nil {
		t.Error("expected error for missing leader")
	}
}

// rejectingOBS fails the creation of one move filter and refuses enables
// issued under a cancelled context.
type rejectingOBS struct {
	*testutil.FakeOBS
	reject string
	failed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	enabled []string
}

func (r *rejectingOBS) CreateFilter(ctx context.Context, source, filter, kind string, settings any) error {
	if filter == r.reject {
		r.once.Do(func() { close(r.failed) })
		return errors.New("create rejected")
	}
	return r.FakeOBS.CreateFilter(ctx, source, filter, kind, settings)
}

func (r *rejectingOBS) SetFilterEnabled(ctx context.Context, source, filter string, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.enabled = append(r.enabled, filter)
	r.mu.Unlock()
	return r.FakeOBS.SetFilterEnabled(ctx, source, filter, enabled)
}

func TestCompoundEffectsRunIndependently(t *testing.T) {
	tests := []struct {
		name string
		run  func(o *Orchestrator) error
	}{
		{"grow", func(o *Orchestrator) error {
			return o.Grow(context.Background(), Grow{Scene: "Primary", Sources: []string{"A", "B"}, Factor: 2, Duration: 300})
		}},
		{"follow", func(o *Orchestrator) error {
			return o.Follow(context.Background(), Follow{Scene: "Primary", Leader: "Leader", Followers: []string{"A", "B"}, Duration: 300})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &rejectingOBS{FakeOBS: testutil.NewFakeOBS(), reject: "Move_A", failed: make(chan struct{})}
			ctrl.Transforms["Primary/Leader"] = obs.Transform{PositionX: 10, PositionY: 20}
			o := New(ctrl, DefaultSettle())
			// B settles only once A has already failed.
			o.sleep = func(time.Duration) {
				<-ctrl.failed
				time.Sleep(20 * time.Millisecond)
			}

			err := tt.run(o)
			if err == nil || !strings.Contains(err.Error(), "Move_A") {
				t.Fatalf("error = %v, want Move_A failure", err)
			}
			ctrl.mu.Lock()
			defer ctrl.mu.Unlock()
			if !reflect.DeepEqual(ctrl.enabled, []string{"Move_B"}) {
				t.Errorf("enabled = %v, want [Move_B]", ctrl.enabled)
			}
			if _, ok := ctrl.Filters["Primary/Move_B"]; !ok {
				t.Error("Move_B was not written")
			}
		})
	}
}

func TestCompoundEffectsJoinEveryFailure(t *testing.T) {
	fake := testutil.NewFakeOBS()
	fake.FailWith("CreateFilter", errors.New("create rejected"))
	o, _ := newTestOrchestrator(fake)
	err := o.Grow(context.Background(), Grow{Scene: "Primary", Sources: []string{"A", "B"}, Factor: 2})
	if err == nil || !strings.Contains(err.Error(), "Move_A") || !strings.Contains(err.Error(), "Move_B") {
		t.Errorf("error = %v, want both sources reported", err)
	}
}

type countingPublisher struct{ events []event.Event }

func (p *countingPublisher) Publish(ev event.Event) int {
	p.events = append(p.events, ev)
	return 1
}

func TestExecuteDispatches(t *testing.T) {
	fake := testutil.NewFakeOBS()
	o, _ := newTestOrchestrator(fake)
	pub := &countingPublisher{}
	ctx := context.Background()

	reqs := []Request{
		Hotkey{Key: "OBS_KEY_L", Modifiers: obs.SuperKey},
		SceneSwitch{Scene: "SBF"},
		Publish{Event: event.TextUpdateRequest{Source: "Overlay", Text: "hi"}},
	}
	for _, r := range reqs {
		if err := o.Execute(ctx, pub, r); err != nil {
			t.Fatalf("Execute(%s) error = %v", r.Op(), err)
		}
	}
	if n := len(fake.Calls("TriggerHotkey")); n != 1 {
		t.Errorf("hotkeys = %d", n)
	}
	if c := fake.Calls("SetCurrentScene"); len(c) != 1 || c[0].Target != "SBF" {
		t.Errorf("scene switch calls = %+v", c)
	}
	if len(pub.events) != 1 || pub.events[0].Kind() != event.KindTextUpdate {
		t.Errorf("published = %+v", pub.events)
	}
	if err := o.Execute(ctx, pub, Publish{}); err == nil {
		t.Error("expected error for empty publish")
	}
}
