package command

import (
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/obs"
	"github.com/onnwee/copilot/transform"
)

// Defaults fill in whatever a command leaves out.
type Defaults struct {
	Scene         string
	Source        string
	BlurFilter    string
	BlurSetting   string
	ScrollFilter  string
	ScrollSetting string
	OrthoFilter   string
	TextSource    string
	TextFilter    string
	Duration      int // milliseconds
	GrowSources   []string
	FollowLeader  string
	Followers     []string
}

// Per-command magnitudes used when an argument is missing or malformed.
const (
	DefaultBlur       = 100.0
	DefaultScroll     = 5.0
	DefaultSpin       = 360.0
	DefaultGrowFactor = 1.5
	DefaultMoveX      = 1662.0
	DefaultMoveY      = 13.0
)

// StandardDefaults returns the defaults of the stock stream layout.
func StandardDefaults() Defaults {
	return Defaults{
		Scene:         "Primary",
		Source:        "BeginCam",
		BlurFilter:    "Move_Blur",
		BlurSetting:   "Filter.Blur.Size",
		ScrollFilter:  "Move_Scroll",
		ScrollSetting: "speed_x",
		OrthoFilter:   "Move_3D",
		TextSource:    "Overlay",
		TextFilter:    "TextMove",
		Duration:      3000,
		GrowSources:   []string{"BeginCam"},
		FollowLeader:  "BeginCam",
	}
}

// Caller is who sent the command.
type Caller struct {
	Login string
	Roles event.Roles
}

// Allowed reports whether caller may run cmd.
func Allowed(cmd Command, caller Caller) bool {
	return caller.Roles.Allows(cmd.MinRole())
}

// Route maps a command to the requests that perform it. A caller without the
// required role gets no requests and no error; so does an Unknown command.
func Route(cmd Command, caller Caller, d Defaults) []transform.Request {
	if cmd == nil || !Allowed(cmd, caller) {
		return nil
	}
	switch c := cmd.(type) {
	case Blur:
		return []transform.Request{transform.FilterValue{
			Source:   or(c.Source, d.Source),
			Filter:   d.BlurFilter,
			Setting:  d.BlurSetting,
			Value:    orNum(c.Amount, DefaultBlur),
			Duration: d.Duration,
		}}
	case Unblur:
		return []transform.Request{transform.FilterValue{
			Source: or(c.Source, d.Source), Filter: d.BlurFilter, Setting: d.BlurSetting, Value: 0, Duration: d.Duration,
		}}
	case Scroll:
		return []transform.Request{transform.FilterValue{
			Source:   or(c.Source, d.Source),
			Filter:   d.ScrollFilter,
			Setting:  d.ScrollSetting,
			Value:    orNum(c.Speed, DefaultScroll),
			Duration: d.Duration,
		}}
	case NoScroll:
		return []transform.Request{transform.FilterValue{
			Source: or(c.Source, d.Source), Filter: d.ScrollFilter, Setting: d.ScrollSetting, Value: 0, Duration: d.Duration,
		}}
	case Transform3D:
		return []transform.Request{transform.FilterValues{
			Source:   or(c.Source, d.Source),
			Filter:   d.OrthoFilter,
			Values:   []transform.Value{{Name: c.Setting, Value: orNum(c.Value, 0)}},
			Duration: orInt(c.Duration, d.Duration),
		}}
	case Spin:
		return []transform.Request{transform.FilterValues{
			Source:   or(c.Source, d.Source),
			Filter:   d.OrthoFilter,
			Values:   []transform.Value{{Name: "Rotation.Z", Value: orNum(c.Degrees, DefaultSpin)}},
			Duration: orInt(c.Duration, d.Duration),
		}}
	case Reset:
		return []transform.Request{transform.FilterValues{
			Source:   or(c.Source, d.Source),
			Filter:   d.OrthoFilter,
			Values:   transform.OrthographicValues(),
			Duration: d.Duration,
		}}
	case Move:
		x, y := orNum(c.X, DefaultMoveX), orNum(c.Y, DefaultMoveY)
		return []transform.Request{transform.SourceMove{
			Scene: d.Scene, Source: or(c.Source, d.Source), X: &x, Y: &y, Duration: d.Duration,
		}}
	case Grow:
		sources := c.Sources
		if len(sources) == 0 {
			sources = d.GrowSources
		}
		if len(sources) == 0 {
			sources = []string{d.Source}
		}
		return []transform.Request{transform.Grow{
			Scene: d.Scene, Sources: sources, Factor: orNum(c.Factor, DefaultGrowFactor), Duration: d.Duration,
		}}
	case Follow:
		followers := c.Followers
		if len(followers) == 0 {
			followers = d.Followers
		}
		if len(followers) == 0 {
			return nil
		}
		return []transform.Request{transform.Follow{
			Scene: d.Scene, Leader: or(c.Leader, or(d.FollowLeader, d.Source)), Followers: followers, Duration: d.Duration,
		}}
	case Text:
		return []transform.Request{transform.Publish{Event: event.TextUpdateRequest{
			Source: d.TextSource, Filter: d.TextFilter, Text: c.Text,
		}}}
	case Speak:
		return []transform.Request{transform.Publish{Event: event.SpeechRequest{
			Username: caller.Login, Message: c.Text, VoiceText: c.Text,
		}}}
	case Visibility:
		return []transform.Request{transform.Publish{Event: event.SourceVisibilityRequest{
			Scene: d.Scene, Source: c.Source, Enabled: c.Enabled,
		}}}
	case Hotkey:
		return []transform.Request{transform.Hotkey{Key: c.Key, Modifiers: obs.SuperKey}}
	case Scene:
		return []transform.Request{transform.SceneSwitch{Scene: c.Name}}
	default:
		return nil
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orNum(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func orInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
