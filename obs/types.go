// Package obs is a minimal obs-websocket (protocol v5) client covering the
// filter, scene item, scene and hotkey requests the co-pilot needs.
//
// A Client holds one websocket connection and serializes its round trips.
// Callers are expected to own their client exclusively; clients are never
// pooled or shared between handlers.
package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Controller is the remote visual-production surface used by the orchestrator
// and handlers.
type Controller interface {
	GetFilter(ctx context.Context, source, filter string) (FilterState, error)
	SetFilterSettings(ctx context.Context, source, filter string, settings any, overlay bool) error
	SetFilterEnabled(ctx context.Context, source, filter string, enabled bool) error
	CreateFilter(ctx context.Context, source, filter, kind string, settings any) error
	GetTransform(ctx context.Context, scene, source string) (Transform, error)
	SetTransform(ctx context.Context, scene, source string, t Transform) error
	ListSceneItems(ctx context.Context, scene string) ([]SceneItem, error)
	SetSceneItemEnabled(ctx context.Context, scene, source string, enabled bool) error
	SetCurrentScene(ctx context.Context, scene string) error
	TriggerHotkey(ctx context.Context, key string, mods KeyModifiers) error
}

// FilterState is a filter snapshot as returned by GetSourceFilter.
type FilterState struct {
	Name     string          `json:"-"`
	Enabled  bool            `json:"filterEnabled"`
	Index    int             `json:"filterIndex"`
	Kind     string          `json:"filterKind"`
	Settings json.RawMessage `json:"filterSettings"`
}

// Transform is a scene item's transform.
type Transform struct {
	PositionX    float64 `json:"positionX"`
	PositionY    float64 `json:"positionY"`
	Rotation     float64 `json:"rotation"`
	ScaleX       float64 `json:"scaleX"`
	ScaleY       float64 `json:"scaleY"`
	Alignment    int     `json:"alignment"`
	BoundsType   string  `json:"boundsType,omitempty"`
	BoundsWidth  float64 `json:"boundsWidth"`
	BoundsHeight float64 `json:"boundsHeight"`
	CropLeft     float64 `json:"cropLeft"`
	CropTop      float64 `json:"cropTop"`
	CropRight    float64 `json:"cropRight"`
	CropBottom   float64 `json:"cropBottom"`
}

// SceneItem is one entry of GetSceneItemList.
type SceneItem struct {
	ID         int    `json:"sceneItemId"`
	Index      int    `json:"sceneItemIndex"`
	SourceName string `json:"sourceName"`
	Enabled    bool   `json:"sceneItemEnabled"`
	InputKind  string `json:"inputKind,omitempty"`
}

// KeyModifiers are the modifiers held for TriggerHotkeyByKeySequence.
type KeyModifiers struct {
	Shift   bool `json:"shift"`
	Control bool `json:"control"`
	Alt     bool `json:"alt"`
	Command bool `json:"command"`
}

// SuperKey holds every modifier at once.
var SuperKey = KeyModifiers{Shift: true, Control: true, Alt: true, Command: true}

// Request status codes the client distinguishes.
const (
	StatusSuccess          = 100
	StatusResourceNotFound = 600
)

var (
	// ErrNotFound is matched by request failures for missing sources, filters or scene items.
	ErrNotFound = errors.New("obs: resource not found")
	// ErrNotConnected is returned once the connection has been closed.
	ErrNotConnected = errors.New("obs: not connected")
	// ErrAuthFailed is returned by Dial when the password is missing or wrong.
	ErrAuthFailed = errors.New("obs: authentication failed")
)

// RequestError is a request OBS answered with a failing status.
type RequestError struct {
	Type    string
	Code    int
	Comment string
}

func (e *RequestError) Error() string {
	if e.Comment != "" {
		return fmt.Sprintf("obs: %s failed (%d): %s", e.Type, e.Code, e.Comment)
	}
	return fmt.Sprintf("obs: %s failed (%d)", e.Type, e.Code)
}

// Is lets errors.Is(err, ErrNotFound) match a 600 status.
func (e *RequestError) Is(target error) bool {
	return target == ErrNotFound && e.Code == StatusResourceNotFound
}
