package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/onnwee/copilot/obs"
)

// Call is one recorded FakeOBS method invocation. Target is the source (or
// scene) the call addressed and Name the filter, scene item or key.
type Call struct {
	Method   string
	Target   string
	Name     string
	Settings any
	Overlay  bool
	Enabled  bool
}

// FakeOBS is an in-memory obs.Controller that records every call.
type FakeOBS struct {
	mu sync.Mutex

	calls      []Call
	Filters    map[string]obs.FilterState // key: source + "/" + filter
	Transforms map[string]obs.Transform   // key: scene + "/" + source
	Items      map[string][]obs.SceneItem // key: scene
	// Errors makes the named method fail with the given error.
	Errors map[string]error
}

// NewFakeOBS returns an empty fake.
func NewFakeOBS() *FakeOBS {
	return &FakeOBS{
		Filters:    map[string]obs.FilterState{},
		Transforms: map[string]obs.Transform{},
		Items:      map[string][]obs.SceneItem{},
		Errors:     map[string]error{},
	}
}

// SetFilter seeds a filter snapshot with settings marshalled to JSON.
func (f *FakeOBS) SetFilter(source, filter string, settings any) {
	raw, _ := json.Marshal(settings) //nolint:errcheck // test fixture
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Filters[source+"/"+filter] = obs.FilterState{Name: filter, Settings: raw}
}

// FailWith makes method return err from now on.
func (f *FakeOBS) FailWith(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[method] = err
}

// Calls returns the recorded calls, optionally only those of the given methods.
func (f *FakeOBS) Calls(methods ...string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(methods) == 0 {
		return append([]Call(nil), f.calls...)
	}
	var out []Call
	for _, c := range f.calls {
		for _, m := range methods {
			if c.Method == m {
				out = append(out, c)
			}
		}
	}
	return out
}

// Writes returns every call that changes remote state.
func (f *FakeOBS) Writes() []Call {
	return f.Calls("SetFilterSettings", "SetFilterEnabled", "CreateFilter", "SetTransform",
		"SetSceneItemEnabled", "SetCurrentScene", "TriggerHotkey")
}

func (f *FakeOBS) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.Errors[c.Method]
}

func (f *FakeOBS) GetFilter(_ context.Context, source, filter string) (obs.FilterState, error) {
	if err := f.record(Call{Method: "GetFilter", Target: source, Name: filter}); err != nil {
		return obs.FilterState{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.Filters[source+"/"+filter]
	if !ok {
		return obs.FilterState{}, &obs.RequestError{Type: "GetSourceFilter", Code: obs.StatusResourceNotFound}
	}
	return st, nil
}

func (f *FakeOBS) SetFilterSettings(_ context.Context, source, filter string, settings any, overlay bool) error {
	if err := f.record(Call{Method: "SetFilterSettings", Target: source, Name: filter, Settings: settings, Overlay: overlay}); err != nil {
		return err
	}
	f.store(source, filter, settings, overlay)
	return nil
}

func (f *FakeOBS) store(source, filter string, settings any, overlay bool) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := source + "/" + filter
	st := f.Filters[key]
	st.Name = filter
	if overlay && len(st.Settings) > 0 {
		merged := map[string]json.RawMessage{}
		_ = json.Unmarshal(st.Settings, &merged) //nolint:errcheck // best effort overlay
		patch := map[string]json.RawMessage{}
		_ = json.Unmarshal(raw, &patch) //nolint:errcheck // best effort overlay
		for k, v := range patch {
			merged[k] = v
		}
		raw, _ = json.Marshal(merged) //nolint:errcheck // map of raw messages
	}
	st.Settings = raw
	f.Filters[key] = st
}

func (f *FakeOBS) SetFilterEnabled(_ context.Context, source, filter string, enabled bool) error {
	if err := f.record(Call{Method: "SetFilterEnabled", Target: source, Name: filter, Enabled: enabled}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.Filters[source+"/"+filter]; ok {
		st.Enabled = enabled
		f.Filters[source+"/"+filter] = st
	}
	return nil
}

func (f *FakeOBS) CreateFilter(_ context.Context, source, filter, kind string, settings any) error {
	if err := f.record(Call{Method: "CreateFilter", Target: source, Name: filter, Settings: settings}); err != nil {
		return err
	}
	f.store(source, filter, settings, false)
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.Filters[source+"/"+filter]
	st.Kind = kind
	f.Filters[source+"/"+filter] = st
	return nil
}

func (f *FakeOBS) GetTransform(_ context.Context, scene, source string) (obs.Transform, error) {
	if err := f.record(Call{Method: "GetTransform", Target: scene, Name: source}); err != nil {
		return obs.Transform{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tr, ok := f.Transforms[scene+"/"+source]
	if !ok {
		return obs.Transform{}, &obs.RequestError{Type: "GetSceneItemId", Code: obs.StatusResourceNotFound}
	}
	return tr, nil
}

func (f *FakeOBS) SetTransform(_ context.Context, scene, source string, t obs.Transform) error {
	if err := f.record(Call{Method: "SetTransform", Target: scene, Name: source, Settings: t}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transforms[scene+"/"+source] = t
	return nil
}

func (f *FakeOBS) ListSceneItems(_ context.Context, scene string) ([]obs.SceneItem, error) {
	if err := f.record(Call{Method: "ListSceneItems", Target: scene}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]obs.SceneItem(nil), f.Items[scene]...), nil
}

func (f *FakeOBS) SetSceneItemEnabled(_ context.Context, scene, source string, enabled bool) error {
	return f.record(Call{Method: "SetSceneItemEnabled", Target: scene, Name: source, Enabled: enabled})
}

func (f *FakeOBS) SetCurrentScene(_ context.Context, scene string) error {
	return f.record(Call{Method: "SetCurrentScene", Target: scene})
}

func (f *FakeOBS) TriggerHotkey(_ context.Context, key string, mods obs.KeyModifiers) error {
	return f.record(Call{Method: "TriggerHotkey", Name: key, Settings: mods})
}

var _ obs.Controller = (*FakeOBS)(nil)
