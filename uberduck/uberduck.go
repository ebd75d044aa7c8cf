// Package uberduck is a minimal client for the Uberduck text-to-speech API:
// start a synthesis job, poll it until the audio is ready, download the audio.
package uberduck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.uberduck.ai"

var (
	// ErrFailed is returned when the vendor reports the job as failed.
	ErrFailed = errors.New("uberduck: synthesis failed")
	// ErrTimeout is returned when the poll budget runs out before audio is ready.
	ErrTimeout = errors.New("uberduck: synthesis not ready in time")
)

// Client talks to the API with basic auth.
type Client struct {
	BaseURL    string
	Key        string
	Secret     string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

// Status is a synthesis job snapshot.
type Status struct {
	Path       string  `json:"path"`
	FailedAt   *string `json:"failed_at"`
	FinishedAt *string `json:"finished_at"`
}

// Ready reports whether the audio URL is available.
func (s Status) Ready() bool { return s.Path != "" }

// Failed reports whether the vendor gave up on the job.
func (s Status) Failed() bool { return s.FailedAt != nil && *s.FailedAt != "" }

func (c *Client) do(req *http.Request, out any) error {
	req.SetBasicAuth(c.Key, c.Secret)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// BeginSynthesis starts voicing text and returns the job id.
func (c *Client) BeginSynthesis(ctx context.Context, text, voice string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("text empty")
	}
	payload, err := json.Marshal(map[string]string{"speech": text, "voice": voice})
	if err != nil {
		return "", err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/speak", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	var body struct {
		UUID string `json:"uuid"`
	}
	if err := c.do(req, &body); err != nil {
		return "", err
	}
	if body.UUID == "" {
		return "", fmt.Errorf("uberduck: speak response without uuid")
	}
	return body.UUID, nil
}

// PollStatus fetches the current state of a job.
func (c *Client) PollStatus(ctx context.Context, id string) (Status, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/speak-status?uuid="+url.QueryEscape(id), nil)
	var st Status
	if err := c.do(req, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// WaitForAudio polls every interval, at most maxPolls times, until the job
// has an audio URL. Transient poll errors are logged and retried; fatal ones
// (see Classify) end the wait.
func (c *Client) WaitForAudio(ctx context.Context, id string, interval time.Duration, maxPolls int) (string, error) {
	for attempt := 1; maxPolls <= 0 || attempt <= maxPolls; attempt++ {
		st, err := c.PollStatus(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if IsFatalError(err) {
				return "", fmt.Errorf("poll job %s: %w", id, err)
			}
			slog.Warn("uberduck poll failed", slog.String("uuid", id), slog.Int("attempt", attempt), slog.Any("err", err))
		case st.Failed():
			return "", fmt.Errorf("%w: job %s failed at %s", ErrFailed, id, *st.FailedAt)
		case st.Ready():
			return st.Path, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
	return "", fmt.Errorf("%w: job %s after %d polls", ErrTimeout, id, maxPolls)
}

// Download stores the audio at audioURL in path, replacing any previous file.
func (c *Client) Download(ctx context.Context, audioURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return fmt.Errorf("audio url: %w", err)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode}
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
