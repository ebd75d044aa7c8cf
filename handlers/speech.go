package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/copilot/audio"
	"github.com/onnwee/copilot/character"
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/eventloop"
	"github.com/onnwee/copilot/telemetry"
)

// Synthesizer is the text-to-speech vendor.
type Synthesizer interface {
	BeginSynthesis(ctx context.Context, text, voice string) (string, error)
	WaitForAudio(ctx context.Context, id string, interval time.Duration, maxPolls int) (string, error)
	Download(ctx context.Context, audioURL, path string) error
}

// Speech voices SpeechRequests as the sender's character. Every OBS side
// effect is published back onto the bus and always paired: the loading
// indicator is hidden once polling ends, the character is hidden after playback.
type Speech struct {
	Vendor     Synthesizer
	Player     audio.Player
	Characters *character.Table

	CharactersScene string
	LoadingSource   string
	ScratchFile     string
	PollInterval    time.Duration
	MaxPolls        int
	HideDelay       time.Duration

	// sleep is not interrupted by ctx so a shown character is always hidden.
	sleep func(time.Duration)
}

// Handle consumes speech requests one at a time.
func (h *Speech) Handle(ctx context.Context, pub event.Publisher, rx *event.Receiver) error {
	return eventloop.Consume(ctx, "speech", rx, func(ctx context.Context, ev event.Event) error {
		req, ok := ev.(event.SpeechRequest)
		if !ok {
			return nil
		}
		return h.Speak(ctx, pub, req)
	})
}

// Speak runs one request to completion.
func (h *Speech) Speak(ctx context.Context, pub event.Publisher, req event.SpeechRequest) (err error) {
	if strings.HasPrefix(strings.TrimSpace(req.Message), "!") {
		return nil
	}
	text := req.VoiceText
	if text == "" {
		text = req.Message
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	start := time.Now()
	defer func() {
		telemetry.CountSpeech(err)
		if telemetry.SpeechDuration != nil && err == nil {
			telemetry.SpeechDuration.Observe(time.Since(start).Seconds())
		}
	}()

	char := h.Characters.Lookup(req.Username)
	log := slog.With(slog.String("user", req.Username), slog.String("voice", char.Voice), slog.String("component", "speech"))

	id, err := h.Vendor.BeginSynthesis(ctx, text, char.Voice)
	if err != nil {
		return fmt.Errorf("begin synthesis for %s: %w", req.Username, err)
	}

	pub.Publish(event.SourceVisibilityRequest{Scene: h.CharactersScene, Source: h.LoadingSource, Enabled: true})
	audioURL, err := h.Vendor.WaitForAudio(ctx, id, h.PollInterval, h.MaxPolls)
	pub.Publish(event.SourceVisibilityRequest{Scene: h.CharactersScene, Source: h.LoadingSource, Enabled: false})
	if err != nil {
		return fmt.Errorf("synthesis %s: %w", id, err)
	}

	pub.Publish(event.TextUpdateRequest{Source: char.TextSource(), Text: text})
	if err := h.Vendor.Download(ctx, audioURL, h.ScratchFile); err != nil {
		return fmt.Errorf("download %s: %w", id, err)
	}

	pub.Publish(event.StreamCharacterRequest{Source: char.Source, Enabled: true})
	playErr := h.Player.Play(ctx, h.ScratchFile)
	h.pause(h.HideDelay)
	pub.Publish(event.StreamCharacterRequest{Source: char.Source, Enabled: false})
	if playErr != nil {
		return fmt.Errorf("play %s: %w", h.ScratchFile, playErr)
	}
	log.Info("speech played", slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (h *Speech) pause(d time.Duration) {
	if h.sleep != nil {
		h.sleep(d)
		return
	}
	time.Sleep(d)
}
