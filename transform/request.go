package transform

import (
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/obs"
)

// Request is one remote operation produced by the command router. The set of
// requests is closed; Execute handles every variant.
type Request interface {
	Op() string
	isRequest()
}

// FilterValue animates a single setting of the filter behind move filter Filter.
type FilterValue struct {
	Source   string
	Filter   string
	Setting  string
	Value    float64
	Duration int
}

// FilterValues animates several 3-D orthographic values at once.
type FilterValues struct {
	Source   string
	Filter   string
	Values   []Value
	Duration int
}

// SourceMove animates a scene item through its move_source_filter. Scale is a
// factor relative to the item's current scale; nil fields keep their value.
type SourceMove struct {
	Scene    string
	Source   string
	Filter   string
	X, Y     *float64
	Scale    *float64
	Rotation *float64
	Duration int
}

// Grow scales several scene items concurrently.
type Grow struct {
	Scene    string
	Sources  []string
	Factor   float64
	Duration int
}

// Follow moves every follower onto the leader's current position.
type Follow struct {
	Scene     string
	Leader    string
	Followers []string
	Duration  int
}

// Hotkey presses a key sequence in OBS.
type Hotkey struct {
	Key       string
	Modifiers obs.KeyModifiers
}

// SceneSwitch changes the program scene.
type SceneSwitch struct {
	Scene string
}

// Publish feeds an event back onto the bus instead of calling OBS.
type Publish struct {
	Event event.Event
}

func (FilterValue) Op() string  { return "filter_value" }
func (FilterValues) Op() string { return "filter_values" }
func (SourceMove) Op() string   { return "source_move" }
func (Grow) Op() string         { return "grow" }
func (Follow) Op() string       { return "follow" }
func (Hotkey) Op() string       { return "hotkey" }
func (SceneSwitch) Op() string  { return "scene_switch" }
func (Publish) Op() string      { return "publish" }

func (FilterValue) isRequest()  {}
func (FilterValues) isRequest() {}
func (SourceMove) isRequest()   {}
func (Grow) isRequest()         {}
func (Follow) isRequest()       {}
func (Hotkey) isRequest()       {}
func (SceneSwitch) isRequest()  {}
func (Publish) isRequest()      {}

// MoveFilterName is the conventional move_source_filter name for a source.
func MoveFilterName(source string) string { return "Move_" + source }
