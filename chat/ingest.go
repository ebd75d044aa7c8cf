package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/telemetry"
)

// ircClient is the subset of *twitch.Client used by Ingest.
type ircClient interface {
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// Ingest publishes Twitch chat lines onto the bus.
type Ingest struct {
	Channel  string
	Username string
	OAuth    string
	// RetryDelay is the pause before reconnecting after a dropped connection.
	RetryDelay time.Duration

	newClient func() ircClient
}

func (in *Ingest) client() ircClient {
	if in.newClient != nil {
		return in.newClient()
	}
	if in.Username == "" || in.OAuth == "" {
		return twitch.NewAnonymousClient()
	}
	oauth := in.OAuth
	if !strings.HasPrefix(oauth, "oauth:") {
		oauth = "oauth:" + oauth
	}
	return twitch.NewClient(in.Username, oauth)
}

// Handle connects and publishes until ctx is cancelled. Ingest never reads
// the bus so its receiver is closed immediately.
func (in *Ingest) Handle(ctx context.Context, pub event.Publisher, rx *event.Receiver) error {
	rx.Close()
	if in.Channel == "" {
		return errors.New("chat: no channel configured")
	}
	channel := strings.ToLower(strings.TrimPrefix(in.Channel, "#"))
	log := slog.With(slog.String("component", "chat_ingest"), slog.String("channel", channel))

	retry := in.RetryDelay
	if retry <= 0 {
		retry = 5 * time.Second
	}
	for {
		client := in.client()
		client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
			telemetry.CountChatMessage()
			pub.Publish(FromPrivateMessage(msg))
		})
		client.Join(channel)

		stop := context.AfterFunc(ctx, func() { _ = client.Disconnect() })
		log.Info("joining twitch chat", slog.Bool("anonymous", in.Username == "" || in.OAuth == ""))
		err := client.Connect()
		stop()

		if ctx.Err() != nil {
			return nil
		}
		log.Warn("twitch chat disconnected; reconnecting", slog.Any("error", err), slog.Duration("retry_in", retry))
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// FromPrivateMessage converts an IRC line to a ChatMessage.
func FromPrivateMessage(msg twitch.PrivateMessage) event.ChatMessage {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	sent := msg.Time
	if sent.IsZero() {
		sent = time.Now().UTC()
	}
	login := strings.ToLower(msg.User.Name)
	return event.ChatMessage{
		ID:          id,
		Channel:     msg.Channel,
		UserID:      msg.User.ID,
		Login:       login,
		DisplayName: msg.User.DisplayName,
		Text:        msg.Message,
		Roles:       RolesFromBadges(msg.User.Badges, login == strings.ToLower(msg.Channel)),
		SentAt:      sent,
	}
}

// RolesFromBadges maps Twitch badges to role flags. owner marks the
// channel's own account, which is broadcaster even without the badge.
func RolesFromBadges(badges map[string]int, owner bool) event.Roles {
	has := func(name string) bool {
		_, ok := badges[name]
		return ok
	}
	return event.Roles{
		Broadcaster: owner || has("broadcaster"),
		Moderator:   has("moderator"),
		VIP:         has("vip"),
		Subscriber:  has("subscriber") || has("founder"),
	}
}
