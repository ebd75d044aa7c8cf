// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials use ValidateChatReady and ValidateSpeechReady.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch
	TwitchChannel     string
	TwitchBotUsername string
	TwitchOAuthToken  string

	// OBS
	OBSAddr            string
	OBSPassword        string
	OBSDefaultScene    string
	OBSDefaultSource   string
	OBSCharactersScene string
	OBSLoadingSource   string

	// Orchestration
	SettleFilter      time.Duration
	SettleText        time.Duration
	CommandDurationMS int
	BusCapacity       int

	// Speech
	UberduckKey        string
	UberduckSecret     string
	UberduckURL        string
	SpeechPollInterval time.Duration
	SpeechPollMax      int
	SpeechHideDelay    time.Duration
	SpeechScratchFile  string
	SpeechAllChat      bool
	AudioPlayer        string
	CharactersFile     string

	// Database (optional chat log)
	DBDsn string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if credentials are
// missing; missing optional variables disable features (speech, chat log). Malformed
// durations or numbers are reported.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.TwitchChannel = strings.TrimPrefix(os.Getenv("TWITCH_CHANNEL"), "#")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	cfg.OBSAddr = envOr("OBS_ADDR", "localhost:4455")
	cfg.OBSPassword = os.Getenv("OBS_PASSWORD")
	cfg.OBSDefaultScene = envOr("OBS_DEFAULT_SCENE", "Primary")
	cfg.OBSDefaultSource = envOr("OBS_DEFAULT_SOURCE", "BeginCam")
	cfg.OBSCharactersScene = envOr("OBS_CHARACTERS_SCENE", "Characters")
	cfg.OBSLoadingSource = envOr("OBS_LOADING_SOURCE", "loading_duck")

	cfg.SettleFilter = duration("SETTLE_FILTER", 400*time.Millisecond, &errs)
	cfg.SettleText = duration("SETTLE_TEXT", 300*time.Millisecond, &errs)
	cfg.CommandDurationMS = integer("COMMAND_DURATION_MS", 3000, &errs)
	cfg.BusCapacity = integer("BUS_CAPACITY", 1000, &errs)

	cfg.UberduckKey = os.Getenv("UBER_DUCK_KEY")
	cfg.UberduckSecret = os.Getenv("UBER_DUCK_SECRET")
	cfg.UberduckURL = envOr("UBER_DUCK_URL", "https://api.uberduck.ai")
	cfg.SpeechPollInterval = duration("SPEECH_POLL_INTERVAL", time.Second, &errs)
	cfg.SpeechPollMax = integer("SPEECH_POLL_MAX", 60, &errs)
	cfg.SpeechHideDelay = duration("SPEECH_HIDE_DELAY", time.Second, &errs)
	cfg.SpeechScratchFile = envOr("SPEECH_SCRATCH_FILE", "test.wav")
	cfg.SpeechAllChat = os.Getenv("SPEECH_ALL_CHAT") == "1" || strings.EqualFold(os.Getenv("SPEECH_ALL_CHAT"), "true")
	cfg.AudioPlayer = envOr("AUDIO_PLAYER", "ffplay -nodisp -autoexit -loglevel quiet")
	cfg.CharactersFile = os.Getenv("CHARACTERS_FILE")

	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")

	if cfg.BusCapacity <= 0 {
		errs = append(errs, fmt.Errorf("BUS_CAPACITY must be positive, got %d", cfg.BusCapacity))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateChatReady checks required fields when chat ingest is enabled.
// Username and token are optional together: without them chat is joined anonymously.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL")
	}
	if (c.TwitchBotUsername == "") != (c.TwitchOAuthToken == "") {
		return fmt.Errorf("missing twitch env: TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN must be set together")
	}
	return nil
}

// ValidateSpeechReady checks the vendor credentials the speech handler needs.
func (c *Config) ValidateSpeechReady() error {
	if c.UberduckKey == "" || c.UberduckSecret == "" {
		return fmt.Errorf("missing speech env: require UBER_DUCK_KEY, UBER_DUCK_SECRET")
	}
	if c.SpeechPollInterval <= 0 {
		return fmt.Errorf("SPEECH_POLL_INTERVAL must be positive")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a non-negative duration like 400ms", key, v))
		return def
	}
	return d
}

func integer(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return n
}
