package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/onnwee/copilot/telemetry"
)

// obs-websocket v5 opcodes.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opRequest         = 6
	opRequestResponse = 7

	rpcVersion = 1

	closeAuthenticationFailed = 4009
)

type frame struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type identify struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type request struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

// Client is a single obs-websocket connection. Round trips are serialized; a
// broken connection is dropped and redialed on the next request.
type Client struct {
	URL      string
	Password string
	Dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects and identifies against url (e.g. ws://localhost:4455).
func Dial(ctx context.Context, url, password string) (*Client, error) {
	c := &Client{URL: url, Password: password}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dialer() *websocket.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return websocket.DefaultDialer
}

// connect must be called with c.mu held.
func (c *Client) connect(ctx context.Context) error {
	conn, resp, err := c.dialer().DialContext(ctx, c.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("obs: dial %s: %w (status %d)", c.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("obs: dial %s: %w", c.URL, err)
	}
	if err := c.handshake(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	c.conn = conn
	slog.Info("obs connected", slog.String("url", c.URL), slog.String("component", "obs"))
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}
	_, hello, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("obs: read hello: %w", err)
	}
	if op := gjson.GetBytes(hello, "op").Int(); op != opHello {
		return fmt.Errorf("obs: expected hello, got op %d", op)
	}
	id := identify{RPCVersion: rpcVersion}
	if auth := gjson.GetBytes(hello, "d.authentication"); auth.Exists() {
		if c.Password == "" {
			return fmt.Errorf("%w: server requires a password", ErrAuthFailed)
		}
		id.Authentication = authResponse(c.Password, auth.Get("salt").String(), auth.Get("challenge").String())
	}
	if err := conn.WriteJSON(frame{Op: opIdentify, D: id}); err != nil {
		return fmt.Errorf("obs: send identify: %w", err)
	}
	_, ack, err := conn.ReadMessage()
	if websocket.IsCloseError(err, closeAuthenticationFailed) {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if err != nil {
		return fmt.Errorf("obs: identify rejected: %w", err)
	}
	if op := gjson.GetBytes(ack, "op").Int(); op != opIdentified {
		return fmt.Errorf("obs: expected identified, got op %d", op)
	}
	return nil
}

// authResponse computes base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Do sends one request and decodes responseData into out (if non-nil).
func (c *Client) Do(ctx context.Context, requestType string, data, out any) (err error) {
	defer func() { telemetry.CountRemoteCall(requestType, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		if c.URL == "" {
			return ErrNotConnected
		}
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	id := uuid.NewString()
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stop() && c.conn != nil {
			_ = c.conn.SetReadDeadline(time.Time{})
		}
	}()

	if err := conn.WriteJSON(frame{Op: opRequest, D: request{RequestType: requestType, RequestID: id, RequestData: data}}); err != nil {
		c.drop()
		return fmt.Errorf("obs: send %s: %w", requestType, err)
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.drop()
			if ctx.Err() != nil {
				return fmt.Errorf("obs: %s: %w", requestType, ctx.Err())
			}
			return fmt.Errorf("obs: read %s response: %w", requestType, err)
		}
		if gjson.GetBytes(msg, "op").Int() != opRequestResponse || gjson.GetBytes(msg, "d.requestId").String() != id {
			continue
		}
		status := gjson.GetBytes(msg, "d.requestStatus")
		if !status.Get("result").Bool() {
			return &RequestError{
				Type:    requestType,
				Code:    int(status.Get("code").Int()),
				Comment: status.Get("comment").String(),
			}
		}
		if out == nil {
			return nil
		}
		raw := gjson.GetBytes(msg, "d.responseData").Raw
		if raw == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return fmt.Errorf("obs: decode %s response: %w", requestType, err)
		}
		return nil
	}
}

// drop must be called with c.mu held.
func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// GetFilter fetches a source filter. Missing filters match ErrNotFound.
func (c *Client) GetFilter(ctx context.Context, source, filter string) (FilterState, error) {
	var st FilterState
	err := c.Do(ctx, "GetSourceFilter", map[string]any{"sourceName": source, "filterName": filter}, &st)
	if err != nil {
		return FilterState{}, err
	}
	st.Name = filter
	return st, nil
}

// SetFilterSettings writes filter settings. With overlay the settings are
// merged into the existing ones instead of replacing them.
func (c *Client) SetFilterSettings(ctx context.Context, source, filter string, settings any, overlay bool) error {
	return c.Do(ctx, "SetSourceFilterSettings", map[string]any{
		"sourceName":     source,
		"filterName":     filter,
		"filterSettings": settings,
		"overlay":        overlay,
	}, nil)
}

// SetFilterEnabled enables or disables a filter.
func (c *Client) SetFilterEnabled(ctx context.Context, source, filter string, enabled bool) error {
	return c.Do(ctx, "SetSourceFilterEnabled", map[string]any{
		"sourceName":    source,
		"filterName":    filter,
		"filterEnabled": enabled,
	}, nil)
}

// CreateFilter adds a filter of kind to source.
func (c *Client) CreateFilter(ctx context.Context, source, filter, kind string, settings any) error {
	return c.Do(ctx, "CreateSourceFilter", map[string]any{
		"sourceName":     source,
		"filterName":     filter,
		"filterKind":     kind,
		"filterSettings": settings,
	}, nil)
}

func (c *Client) sceneItemID(ctx context.Context, scene, source string) (int, error) {
	var out struct {
		ID int `json:"sceneItemId"`
	}
	if err := c.Do(ctx, "GetSceneItemId", map[string]any{"sceneName": scene, "sourceName": source}, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// GetTransform returns the transform of source inside scene.
func (c *Client) GetTransform(ctx context.Context, scene, source string) (Transform, error) {
	id, err := c.sceneItemID(ctx, scene, source)
	if err != nil {
		return Transform{}, err
	}
	var out struct {
		Transform Transform `json:"sceneItemTransform"`
	}
	if err := c.Do(ctx, "GetSceneItemTransform", map[string]any{"sceneName": scene, "sceneItemId": id}, &out); err != nil {
		return Transform{}, err
	}
	return out.Transform, nil
}

// SetTransform replaces the transform of source inside scene. Bounds below one
// pixel are left untouched since OBS rejects them.
func (c *Client) SetTransform(ctx context.Context, scene, source string, t Transform) error {
	id, err := c.sceneItemID(ctx, scene, source)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"positionX":  t.PositionX,
		"positionY":  t.PositionY,
		"rotation":   t.Rotation,
		"scaleX":     t.ScaleX,
		"scaleY":     t.ScaleY,
		"alignment":  t.Alignment,
		"cropLeft":   t.CropLeft,
		"cropTop":    t.CropTop,
		"cropRight":  t.CropRight,
		"cropBottom": t.CropBottom,
	}
	if t.BoundsType != "" {
		payload["boundsType"] = t.BoundsType
	}
	if t.BoundsWidth >= 1 && t.BoundsHeight >= 1 {
		payload["boundsWidth"] = t.BoundsWidth
		payload["boundsHeight"] = t.BoundsHeight
	}
	return c.Do(ctx, "SetSceneItemTransform", map[string]any{
		"sceneName":          scene,
		"sceneItemId":        id,
		"sceneItemTransform": payload,
	}, nil)
}

// ListSceneItems lists the items of a scene.
func (c *Client) ListSceneItems(ctx context.Context, scene string) ([]SceneItem, error) {
	var out struct {
		Items []SceneItem `json:"sceneItems"`
	}
	if err := c.Do(ctx, "GetSceneItemList", map[string]any{"sceneName": scene}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// SetSceneItemEnabled shows or hides source inside scene.
func (c *Client) SetSceneItemEnabled(ctx context.Context, scene, source string, enabled bool) error {
	id, err := c.sceneItemID(ctx, scene, source)
	if err != nil {
		return err
	}
	return c.Do(ctx, "SetSceneItemEnabled", map[string]any{
		"sceneName":        scene,
		"sceneItemId":      id,
		"sceneItemEnabled": enabled,
	}, nil)
}

// SetCurrentScene switches the program scene.
func (c *Client) SetCurrentScene(ctx context.Context, scene string) error {
	return c.Do(ctx, "SetCurrentProgramScene", map[string]any{"sceneName": scene}, nil)
}

// TriggerHotkey presses key with the given modifiers.
func (c *Client) TriggerHotkey(ctx context.Context, key string, mods KeyModifiers) error {
	return c.Do(ctx, "TriggerHotkeyByKeySequence", map[string]any{"keyId": key, "keyModifiers": mods}, nil)
}

var _ Controller = (*Client)(nil)
