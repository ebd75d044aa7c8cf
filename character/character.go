// Package character maps chat usernames to the voice and on-stream source
// that speak for them.
package character

import (
	"fmt"
	"maps"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Fallbacks for users and voices missing from the tables.
const (
	DefaultVoice  = "brock-samson"
	DefaultSource = "Seal"
)

// Character is the voice and visual source a user speaks through.
type Character struct {
	Username string
	Voice    string
	Source   string
}

// TextSource is the text source that shows the character's line.
func (c Character) TextSource() string { return c.Source + "-text" }

// Table is an immutable pair of lookup tables. Usernames match case-insensitively.
type Table struct {
	voices        map[string]string // lower(username) -> voice
	sources       map[string]string // voice -> source
	defaultVoice  string
	defaultSource string
}

// File is the YAML shape of a character tables file.
type File struct {
	DefaultVoice  string            `yaml:"default_voice"`
	DefaultSource string            `yaml:"default_source"`
	Voices        map[string]string `yaml:"voices"`
	Sources       map[string]string `yaml:"sources"`
}

// New builds a table from the given maps; the maps are copied.
func New(voices, sources map[string]string, defaultVoice, defaultSource string) *Table {
	t := &Table{
		voices:        make(map[string]string, len(voices)),
		sources:       maps.Clone(sources),
		defaultVoice:  defaultVoice,
		defaultSource: defaultSource,
	}
	if t.sources == nil {
		t.sources = map[string]string{}
	}
	for user, voice := range voices {
		t.voices[strings.ToLower(user)] = voice
	}
	if t.defaultVoice == "" {
		t.defaultVoice = DefaultVoice
	}
	if t.defaultSource == "" {
		t.defaultSource = DefaultSource
	}
	return t
}

// Builtin returns the stock tables.
func Builtin() *Table {
	return New(map[string]string{
		"beginbot":        "mr-krabs-joewhyte",
		"beginbotbot":     "brock-samson",
		"ArtMattDank":     "dr-nick",
		"carlvandergeest": "danny-devito-angry",
		"stupac62":        "stewie-griffin",
		"swenson":         "mike-wazowski",
		"teej_dv":         "mr-krabs-joewhyte",
	}, map[string]string{
		"brock-samson":       "Seal",
		"theneedledrop":      "ArtMatt",
		"mr-krabs-joewhyte":  "Crabs",
		"danny-devito-angry": "Kevin",
	}, DefaultVoice, DefaultSource)
}

// Load reads tables from a YAML file. An empty path yields Builtin.
func Load(path string) (*Table, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return New(f.Voices, f.Sources, f.DefaultVoice, f.DefaultSource), nil
}

// Voice returns the voice for username, or the default voice.
func (t *Table) Voice(username string) string {
	if v, ok := t.voices[strings.ToLower(username)]; ok {
		return v
	}
	return t.defaultVoice
}

// Source returns the visual source for voice, or the default source.
func (t *Table) Source(voice string) string {
	if s, ok := t.sources[voice]; ok {
		return s
	}
	return t.defaultSource
}

// Lookup resolves username to its character. Unknown users always get the
// default character.
func (t *Table) Lookup(username string) Character {
	voice := t.Voice(username)
	return Character{Username: username, Voice: voice, Source: t.Source(voice)}
}

// Sources lists every distinct visual source, the default first and the rest sorted.
func (t *Table) Sources() []string {
	seen := map[string]bool{t.defaultSource: true}
	var rest []string
	for _, s := range t.sources {
		if !seen[s] {
			seen[s] = true
			rest = append(rest, s)
		}
	}
	sort.Strings(rest)
	return append([]string{t.defaultSource}, rest...)
}
