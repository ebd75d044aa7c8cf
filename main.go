// Command copilot is the stream co-pilot: it reads Twitch chat, turns chat
// commands into OBS effects over obs-websocket, and voices chat lines as
// stream characters. It:
//   - Loads configuration and initializes structured logging.
//   - Opens one OBS connection per side-effect handler.
//   - Optionally connects to Postgres and logs chat and command outcomes.
//   - Runs every handler on one event bus until SIGINT/SIGTERM.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics and
//     operator endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/copilot/audio"
	"github.com/onnwee/copilot/character"
	"github.com/onnwee/copilot/chat"
	"github.com/onnwee/copilot/command"
	"github.com/onnwee/copilot/config"
	"github.com/onnwee/copilot/db"
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/eventloop"
	"github.com/onnwee/copilot/handlers"
	"github.com/onnwee/copilot/obs"
	"github.com/onnwee/copilot/server"
	"github.com/onnwee/copilot/telemetry"
	"github.com/onnwee/copilot/transform"
	"github.com/onnwee/copilot/uberduck"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always happens.
func run() int {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("copilot", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdown()

	chars, err := character.Load(cfg.CharactersFile)
	if err != nil {
		slog.Error("character tables load failed", slog.Any("err", err), slog.String("path", cfg.CharactersFile))
		return 1
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus(cfg.BusCapacity)
	telemetry.RegisterBus(func() (uint64, uint64, uint64, int) {
		s := bus.Stats()
		return s.Published, s.Discarded, s.Dropped, s.Receivers
	})
	loop := eventloop.New(bus)
	var regErr error
	register := func(name string, h eventloop.Handler) {
		if regErr == nil {
			regErr = loop.Register(name, h)
		}
	}

	var checks []server.Check
	var recorder *chat.Recorder
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			return 1
		}
		recorder = &chat.Recorder{DB: database}
		checks = append(checks, server.Check{Name: "database", Fn: database.PingContext})
	} else {
		slog.Info("chat log disabled (DB_DSN not set)")
	}

	settle := transform.Settle{Filter: cfg.SettleFilter, Text: cfg.SettleText}
	defaults := command.StandardDefaults()
	defaults.Scene = cfg.OBSDefaultScene
	defaults.Source = cfg.OBSDefaultSource
	defaults.Duration = cfg.CommandDurationMS
	defaults.GrowSources = []string{cfg.OBSDefaultSource}
	defaults.FollowLeader = cfg.OBSDefaultSource

	var clients []*obs.Client
	newClient := func(name string) *obs.Client {
		c := connectOBS(ctx, cfg, name)
		clients = append(clients, c)
		return c
	}
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	commands := &handlers.Commands{Orchestrator: transform.New(newClient("commands"), settle), Defaults: defaults}
	if recorder != nil {
		commands.Log = recorder
	}
	register("commands", commands)
	register("text", &handlers.Text{
		Orchestrator: transform.New(newClient("text"), settle),
		Filter:       defaults.TextFilter,
		Duration:     cfg.CommandDurationMS,
	})
	register("visibility", &handlers.Visibility{
		Client:          newClient("visibility"),
		Scene:           cfg.OBSDefaultScene,
		CharactersScene: cfg.OBSCharactersScene,
	})

	if err := cfg.ValidateSpeechReady(); err != nil {
		slog.Info("speech disabled", slog.Any("reason", err))
	} else {
		player, err := audio.NewCommandPlayer(cfg.AudioPlayer)
		if err != nil {
			slog.Error("invalid AUDIO_PLAYER", slog.Any("err", err))
			return 1
		}
		register("speech", &handlers.Speech{
			Vendor:          &uberduck.Client{BaseURL: cfg.UberduckURL, Key: cfg.UberduckKey, Secret: cfg.UberduckSecret},
			Player:          player,
			Characters:      chars,
			CharactersScene: cfg.OBSCharactersScene,
			LoadingSource:   cfg.OBSLoadingSource,
			ScratchFile:     cfg.SpeechScratchFile,
			PollInterval:    cfg.SpeechPollInterval,
			MaxPolls:        cfg.SpeechPollMax,
			HideDelay:       cfg.SpeechHideDelay,
		})
		if cfg.SpeechAllChat {
			register("speech-relay", handlers.SpeechRelay{})
		}
	}

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Warn("chat ingest disabled; only operator commands will reach the bus", slog.Any("reason", err))
	} else {
		register("chat", &chat.Ingest{Channel: cfg.TwitchChannel, Username: cfg.TwitchBotUsername, OAuth: cfg.TwitchOAuthToken})
	}
	if recorder != nil {
		register("chat-recorder", recorder)
	}
	if regErr != nil {
		slog.Error("handler registration failed", slog.Any("err", regErr))
		return 1
	}

	go func() {
		deps := server.Deps{Loop: loop, Bus: bus, Checks: checks}
		if recorder != nil {
			deps.DB = recorder.DB
		}
		if err := server.Start(ctx, server.NewMux(ctx, deps), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("copilot started", slog.String("version", version), slog.String("obs", cfg.OBSAddr), slog.String("channel", cfg.TwitchChannel))
	if err := loop.Run(ctx); err != nil {
		slog.Error("event loop finished with failed handlers", slog.Any("err", err))
		return 1
	}
	slog.Info("shutting down")
	return 0
}

// connectOBS dials OBS. A failed dial is not fatal: the returned client
// redials on its next request.
func connectOBS(ctx context.Context, cfg *config.Config, handler string) *obs.Client {
	url := cfg.OBSAddr
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := obs.Dial(dialCtx, url, cfg.OBSPassword)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, obs.ErrAuthFailed) {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "obs connect failed; will retry on first request",
			slog.String("handler", handler), slog.String("url", url), slog.Any("err", err))
		return &obs.Client{URL: url, Password: cfg.OBSPassword}
	}
	return c
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}
