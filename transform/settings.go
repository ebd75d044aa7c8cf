// Package transform implements the read-modify-write protocol for animated
// effects on OBS sources: fetch a move filter's settings, merge in only the
// values a command names, write them back, let OBS settle, then enable the
// filter so the move plugin plays the transition.
package transform

import (
	"fmt"
	"strings"
)

// Move-value plugin enums.
const (
	MoveValueSingle   = 0
	MoveValueSettings = 1
	MoveValueTyping   = 4

	ValueTypeAuto  = 0
	ValueTypeFloat = 2
	ValueTypeText  = 4
)

// MoveSourceKind is the OBS filter kind of a move_source_filter.
const MoveSourceKind = "move_source_filter"

// OrthographicFilter is the default 3-D transform filter targeted by FilterValues.
const OrthographicFilter = "3D_Orthographic"

// SingleValueSettings are the settings of a move_value_filter animating one
// setting of its target filter. A nil field is absent and left alone on write.
type SingleValueSettings struct {
	Source          *string  `json:"source,omitempty"`
	Filter          *string  `json:"filter,omitempty"`
	Duration        *int     `json:"duration,omitempty"`
	MoveValueType   *int     `json:"move_value_type,omitempty"`
	SettingFloat    *float64 `json:"setting_float,omitempty"`
	SettingFloatMin *float64 `json:"setting_float_min,omitempty"`
	SettingFloatMax *float64 `json:"setting_float_max,omitempty"`
	SettingName     *string  `json:"setting_name,omitempty"`
	ValueType       *int     `json:"value_type,omitempty"`

	BlurSize *float64 `json:"Filter.Blur.Size,omitempty"`

	GlowInner   *bool `json:"Filter.SDFEffects.Glow.Inner,omitempty"`
	GlowOuter   *bool `json:"Filter.SDFEffects.Glow.Outer,omitempty"`
	ShadowOuter *bool `json:"Filter.SDFEffects.Shadow.Outer,omitempty"`
	ShadowInner *bool `json:"Filter.SDFEffects.Shadow.Inner,omitempty"`
	Outline     *bool `json:"Filter.SDFEffects.Outline,omitempty"`
}

// MultiValueSettings are the settings of a move_value_filter moving every
// value of a 3-D orthographic filter at once.
type MultiValueSettings struct {
	Filter        *string `json:"filter,omitempty"`
	Duration      *int    `json:"duration,omitempty"`
	MoveValueType *int    `json:"move_value_type,omitempty"`
	ValueType     *int    `json:"value_type,omitempty"`

	ScaleX    *float64 `json:"Scale.X,omitempty"`
	ScaleY    *float64 `json:"Scale.Y,omitempty"`
	ShearX    *float64 `json:"Shear.X,omitempty"`
	ShearY    *float64 `json:"Shear.Y,omitempty"`
	PositionX *float64 `json:"Position.X,omitempty"`
	PositionY *float64 `json:"Position.Y,omitempty"`
	RotationX *float64 `json:"Rotation.X,omitempty"`
	RotationY *float64 `json:"Rotation.Y,omitempty"`
	RotationZ *float64 `json:"Rotation.Z,omitempty"`
}

// TextSettings drive a move_value_filter typing text into a text source.
type TextSettings struct {
	SettingName     string `json:"setting_name"`
	ValueType       int    `json:"value_type"`
	SettingText     string `json:"setting_text"`
	Duration        *int   `json:"duration,omitempty"`
	CustomDuration  bool   `json:"custom_duration"`
	EasingMatch     *int   `json:"easing_match,omitempty"`
	SettingDecimals *int   `json:"setting_decimals,omitempty"`
	MoveValueType   *int   `json:"move_value_type,omitempty"`
}

// Coordinates is an x/y pair inside move_source_filter settings.
type Coordinates struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

// Crop is the crop block of move_source_filter settings.
type Crop struct {
	Left   *float64 `json:"left,omitempty"`
	Top    *float64 `json:"top,omitempty"`
	Right  *float64 `json:"right,omitempty"`
	Bottom *float64 `json:"bottom,omitempty"`
}

// MoveSourceSettings are the settings of a move_source_filter, which lives on
// a scene and animates one of its items.
type MoveSourceSettings struct {
	Source        *string      `json:"source,omitempty"`
	Position      *Coordinates `json:"pos,omitempty"`
	Scale         *Coordinates `json:"scale,omitempty"`
	Rotation      *float64     `json:"rot,omitempty"`
	Bounds        *Coordinates `json:"bounds,omitempty"`
	Crop          *Crop        `json:"crop,omitempty"`
	Duration      *int         `json:"duration,omitempty"`
	EasingMatch   *int         `json:"easing_match,omitempty"`
	TransformText *string      `json:"transform_text,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// DefaultOrthographic returns the neutral 3-D orthographic values.
func DefaultOrthographic() MultiValueSettings {
	return MultiValueSettings{
		Filter:        ptr(OrthographicFilter),
		MoveValueType: ptr(MoveValueSettings),
		ValueType:     ptr(ValueTypeAuto),
		ScaleX:        ptr(100.0),
		ScaleY:        ptr(100.0),
		ShearX:        ptr(0.0),
		ShearY:        ptr(0.0),
		PositionX:     ptr(0.0),
		PositionY:     ptr(0.0),
		RotationX:     ptr(0.0),
		RotationY:     ptr(0.0),
		RotationZ:     ptr(0.0),
	}
}

// OrthographicValues returns DefaultOrthographic as named values, in a stable order.
func OrthographicValues() []Value {
	def := DefaultOrthographic()
	out := make([]Value, 0, len(orthoNames))
	for _, name := range orthoNames {
		out = append(out, Value{Name: name, Value: **def.field(name)})
	}
	return out
}

// DefaultMoveSource returns the settings a fresh move_source_filter for source starts with.
func DefaultMoveSource(source string) MoveSourceSettings {
	s := MoveSourceSettings{
		Source:   ptr(source),
		Position: &Coordinates{X: ptr(1662.0), Y: ptr(13.0)},
		Scale:    &Coordinates{X: ptr(1.0), Y: ptr(1.0)},
		Rotation: ptr(0.0),
		Bounds:   &Coordinates{X: ptr(251.0), Y: ptr(234.0)},
		Crop:     &Crop{Left: ptr(0.0), Top: ptr(0.0), Right: ptr(0.0), Bottom: ptr(0.0)},
		Duration: ptr(300),
	}
	s.TransformText = ptr(s.describe())
	return s
}

// Value is one named orthographic value.
type Value struct {
	Name  string
	Value float64
}

var orthoNames = []string{
	"Scale.X", "Scale.Y", "Shear.X", "Shear.Y",
	"Position.X", "Position.Y", "Rotation.X", "Rotation.Y", "Rotation.Z",
}

// OrthographicSetting resolves a user-typed setting name (case-insensitive)
// to its canonical form.
func OrthographicSetting(name string) (string, bool) {
	for _, n := range orthoNames {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

func (s *MultiValueSettings) field(name string) **float64 {
	switch name {
	case "Scale.X":
		return &s.ScaleX
	case "Scale.Y":
		return &s.ScaleY
	case "Shear.X":
		return &s.ShearX
	case "Shear.Y":
		return &s.ShearY
	case "Position.X":
		return &s.PositionX
	case "Position.Y":
		return &s.PositionY
	case "Rotation.X":
		return &s.RotationX
	case "Rotation.Y":
		return &s.RotationY
	case "Rotation.Z":
		return &s.RotationZ
	}
	return nil
}

// MergeSingleValue writes the setting name, value, duration and the float
// value-type tags into a copy of base. Every other field is carried forward.
func MergeSingleValue(base SingleValueSettings, setting string, value float64, duration int) SingleValueSettings {
	out := base
	out.SettingName = ptr(setting)
	out.SettingFloat = ptr(value)
	out.Duration = ptr(duration)
	out.ValueType = ptr(ValueTypeFloat)
	out.MoveValueType = ptr(MoveValueSingle)
	return out
}

// MergeMultiValue writes the named values and duration into a copy of base.
// Unknown names are reported and nothing else is touched.
func MergeMultiValue(base MultiValueSettings, values []Value, duration int) (MultiValueSettings, error) {
	out := base
	out.MoveValueType = ptr(MoveValueSettings)
	out.Duration = ptr(duration)
	for _, v := range values {
		name, ok := OrthographicSetting(v.Name)
		if !ok {
			return base, fmt.Errorf("unknown orthographic setting %q", v.Name)
		}
		*out.field(name) = ptr(v.Value)
	}
	return out, nil
}

// NewTextSettings builds the full text settings; text writes never merge.
func NewTextSettings(text string, duration int) TextSettings {
	return TextSettings{
		SettingName:     "text",
		ValueType:       ValueTypeText,
		SettingText:     text,
		Duration:        ptr(duration),
		CustomDuration:  true,
		SettingDecimals: ptr(1),
		MoveValueType:   ptr(MoveValueTyping),
	}
}

// MoveChange names the parts of a move_source_filter a command changes. Nil
// fields are carried forward.
type MoveChange struct {
	X, Y     *float64
	ScaleX   *float64
	ScaleY   *float64
	Rotation *float64
	Duration *int
}

// MergeMove applies change to a copy of base and refreshes transform_text.
func MergeMove(base MoveSourceSettings, change MoveChange) MoveSourceSettings {
	out := base
	if change.X != nil || change.Y != nil {
		pos := Coordinates{}
		if base.Position != nil {
			pos = *base.Position
		}
		if change.X != nil {
			pos.X = ptr(*change.X)
		}
		if change.Y != nil {
			pos.Y = ptr(*change.Y)
		}
		out.Position = &pos
	}
	if change.ScaleX != nil || change.ScaleY != nil {
		sc := Coordinates{}
		if base.Scale != nil {
			sc = *base.Scale
		}
		if change.ScaleX != nil {
			sc.X = ptr(*change.ScaleX)
		}
		if change.ScaleY != nil {
			sc.Y = ptr(*change.ScaleY)
		}
		out.Scale = &sc
	}
	if change.Rotation != nil {
		out.Rotation = ptr(*change.Rotation)
	}
	if change.Duration != nil {
		out.Duration = ptr(*change.Duration)
	}
	out.TransformText = ptr(out.describe())
	return out
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// describe renders the summary string the move plugin shows in its UI.
func (s MoveSourceSettings) describe() string {
	var pos, bounds Coordinates
	var crop Crop
	if s.Position != nil {
		pos = *s.Position
	}
	if s.Bounds != nil {
		bounds = *s.Bounds
	}
	if s.Crop != nil {
		crop = *s.Crop
	}
	return fmt.Sprintf("pos: x %.1f y %.1f rot: %.1f bounds: x %.3f y %.3f crop: l %.0f t %.0f r %.0f b %.0f",
		deref(pos.X), deref(pos.Y), deref(s.Rotation),
		deref(bounds.X), deref(bounds.Y),
		deref(crop.Left), deref(crop.Top), deref(crop.Right), deref(crop.Bottom))
}
