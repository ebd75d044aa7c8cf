package chat

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/copilot/db"
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/eventloop"
)

// Recorder persists chat lines and command outcomes.
type Recorder struct {
	DB *sql.DB
}

// Handle stores every ChatMessage seen on the bus.
func (r *Recorder) Handle(ctx context.Context, _ event.Publisher, rx *event.Receiver) error {
	return eventloop.Consume(ctx, "chat-recorder", rx, func(ctx context.Context, ev event.Event) error {
		msg, ok := ev.(event.ChatMessage)
		if !ok {
			return nil
		}
		return r.Save(ctx, msg)
	})
}

// Save writes one chat line.
func (r *Recorder) Save(ctx context.Context, msg event.ChatMessage) error {
	err := db.SaveChatMessage(ctx, r.DB, db.ChatRecord{
		ID:          msg.ID,
		UserID:      msg.UserID,
		Login:       msg.Login,
		DisplayName: msg.DisplayName,
		Channel:     msg.Channel,
		Message:     msg.Text,
		Role:        msg.Roles.Tier().String(),
		SentAt:      msg.SentAt,
	})
	if err != nil {
		return fmt.Errorf("record chat from %s: %w", msg.Login, err)
	}
	return nil
}

// RecordCommand stores a command outcome keyed by the chat message id.
func (r *Recorder) RecordCommand(ctx context.Context, messageID, command, outcome string) error {
	return db.SaveCommandRun(ctx, r.DB, messageID, command, outcome)
}
