// Package command parses chat command lines and routes them to transform
// requests. Routing is a pure function of the command, the caller and the
// configured defaults.
package command

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/transform"
)

var (
	// ErrMissingArgument marks a command invoked without a mandatory argument.
	ErrMissingArgument = errors.New("missing argument")
	// ErrInvalidArgument marks a mandatory argument that is present but unusable.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Command is a parsed chat command. The variant set is closed.
type Command interface {
	// Word is the command word including the leading '!'.
	Word() string
	// MinRole is the lowest role allowed to run the command.
	MinRole() event.Role
	isCommand()
}

// Blur raises the blur on a source. Nil or empty fields take their defaults.
type Blur struct {
	Amount *float64
	Source string
}

// Unblur clears the blur on a source.
type Unblur struct{ Source string }

// Scroll starts a scroll filter.
type Scroll struct {
	Speed  *float64
	Source string
}

// NoScroll stops a scroll filter.
type NoScroll struct{ Source string }

// Transform3D sets one orthographic value.
type Transform3D struct {
	Setting  string
	Value    *float64
	Duration *int
	Source   string
}

// Spin rotates a source around Z.
type Spin struct {
	Degrees  *float64
	Duration *int
	Source   string
}

// Reset restores the orthographic defaults.
type Reset struct{ Source string }

// Move animates a scene item to x/y.
type Move struct {
	X, Y   *float64
	Source string
}

// Grow scales scene items by Factor.
type Grow struct {
	Factor  *float64
	Sources []string
}

// Follow moves followers onto a leader.
type Follow struct {
	Leader    string
	Followers []string
}

// Text shows text on the overlay.
type Text struct{ Text string }

// Speak voices text as the caller's character.
type Speak struct{ Text string }

// Visibility shows or hides a scene item.
type Visibility struct {
	Source  string
	Enabled bool
}

// Hotkey presses an OBS key sequence.
type Hotkey struct {
	Name string
	Key  string
}

// Scene switches the program scene.
type Scene struct {
	Name  string
	Alias string
}

// Unknown is any line that is not a known command.
type Unknown struct{ Name string }

func (Blur) Word() string        { return "!blur" }
func (Unblur) Word() string      { return "!unblur" }
func (Scroll) Word() string      { return "!scroll" }
func (NoScroll) Word() string    { return "!noscroll" }
func (Transform3D) Word() string { return "!3d" }
func (Spin) Word() string        { return "!spin" }
func (Reset) Word() string       { return "!reset" }
func (Move) Word() string        { return "!move" }
func (Grow) Word() string        { return "!grow" }
func (Follow) Word() string      { return "!follow" }
func (Text) Word() string        { return "!text" }
func (Speak) Word() string       { return "!speak" }
func (c Hotkey) Word() string    { return c.Name }
func (Unknown) Word() string     { return "" }

func (c Visibility) Word() string {
	if c.Enabled {
		return "!show"
	}
	return "!hide"
}

func (c Scene) Word() string {
	if c.Alias != "" {
		return c.Alias
	}
	return "!scene"
}

func (Blur) MinRole() event.Role        { return event.RoleModerator }
func (Unblur) MinRole() event.Role      { return event.RoleSubscriber }
func (Scroll) MinRole() event.Role      { return event.RoleViewer }
func (NoScroll) MinRole() event.Role    { return event.RoleViewer }
func (Transform3D) MinRole() event.Role { return event.RoleViewer }
func (Spin) MinRole() event.Role        { return event.RoleViewer }
func (Reset) MinRole() event.Role       { return event.RoleSubscriber }
func (Move) MinRole() event.Role        { return event.RoleViewer }
func (Grow) MinRole() event.Role        { return event.RoleViewer }
func (Follow) MinRole() event.Role      { return event.RoleViewer }
func (Text) MinRole() event.Role        { return event.RoleViewer }
func (Speak) MinRole() event.Role       { return event.RoleViewer }
func (Visibility) MinRole() event.Role  { return event.RoleModerator }
func (Hotkey) MinRole() event.Role      { return event.RoleViewer }
func (Scene) MinRole() event.Role       { return event.RoleModerator }
func (Unknown) MinRole() event.Role     { return event.RoleViewer }

func (Blur) isCommand()        {}
func (Unblur) isCommand()      {}
func (Scroll) isCommand()      {}
func (NoScroll) isCommand()    {}
func (Transform3D) isCommand() {}
func (Spin) isCommand()        {}
func (Reset) isCommand()       {}
func (Move) isCommand()        {}
func (Grow) isCommand()        {}
func (Follow) isCommand()      {}
func (Text) isCommand()        {}
func (Speak) isCommand()       {}
func (Visibility) isCommand()  {}
func (Hotkey) isCommand()      {}
func (Scene) isCommand()       {}
func (Unknown) isCommand()     {}

var hotkeys = map[string]string{
	"!chat": "OBS_KEY_L",
	"!code": "OBS_KEY_H",
}

var sceneAliases = map[string]string{
	"!one": "Primary",
	"!sbf": "SBF",
}

// IsCommand reports whether a chat line looks like a command.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "!")
}

// Parse turns a chat line into a Command. Lines that are not known commands
// parse to Unknown without error. Optional numeric arguments that are missing
// or fail to parse are left nil so routing applies the default.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return Unknown{}, nil
	}
	word, args := strings.ToLower(fields[0]), fields[1:]

	switch word {
	case "!blur":
		amount, source := amountThenSource(args)
		return Blur{Amount: amount, Source: source}, nil
	case "!unblur":
		return Unblur{Source: arg(args, 0)}, nil
	case "!scroll":
		speed, source := amountThenSource(args)
		return Scroll{Speed: speed, Source: source}, nil
	case "!noscroll":
		return NoScroll{Source: arg(args, 0)}, nil
	case "!3d":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: setting: %w", word, ErrMissingArgument)
		}
		setting, ok := transform.OrthographicSetting(args[0])
		if !ok {
			return nil, fmt.Errorf("%s: setting %q: %w", word, args[0], ErrInvalidArgument)
		}
		return Transform3D{Setting: setting, Value: num(args, 1), Duration: millis(args, 2), Source: arg(args, 3)}, nil
	case "!spin":
		return Spin{Degrees: num(args, 0), Duration: millis(args, 1), Source: arg(args, 2)}, nil
	case "!reset":
		return Reset{Source: arg(args, 0)}, nil
	case "!move":
		return Move{X: num(args, 0), Y: num(args, 1), Source: arg(args, 2)}, nil
	case "!grow":
		g := Grow{Factor: num(args, 0)}
		if len(args) > 1 {
			g.Sources = append([]string(nil), args[1:]...)
		}
		return g, nil
	case "!follow":
		f := Follow{Leader: arg(args, 0)}
		if len(args) > 1 {
			f.Followers = append([]string(nil), args[1:]...)
		}
		return f, nil
	case "!text", "!speak":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: text: %w", word, ErrMissingArgument)
		}
		text := strings.Join(args, " ")
		if word == "!text" {
			return Text{Text: text}, nil
		}
		return Speak{Text: text}, nil
	case "!show", "!hide":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: source: %w", word, ErrMissingArgument)
		}
		return Visibility{Source: args[0], Enabled: word == "!show"}, nil
	case "!scene":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: scene: %w", word, ErrMissingArgument)
		}
		return Scene{Name: strings.Join(args, " ")}, nil
	}
	if key, ok := hotkeys[word]; ok {
		return Hotkey{Name: word, Key: key}, nil
	}
	if scene, ok := sceneAliases[word]; ok {
		return Scene{Name: scene, Alias: word}, nil
	}
	return Unknown{Name: word}, nil
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// amountThenSource reads "[amount] [source]". A lone argument that is not a
// number names the source, so "!blur Screen" blurs Screen by the default.
func amountThenSource(args []string) (*float64, string) {
	if len(args) == 1 {
		if _, err := strconv.ParseFloat(args[0], 64); err != nil {
			return nil, args[0]
		}
	}
	return num(args, 0), arg(args, 1)
}

// num parses args[i]; missing or malformed values are nil.
func num(args []string, i int) *float64 {
	if i >= len(args) {
		return nil
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// millis parses a non-negative duration in milliseconds.
func millis(args []string, i int) *int {
	v := num(args, i)
	if v == nil || *v < 0 {
		return nil
	}
	ms := int(*v)
	return &ms
}
