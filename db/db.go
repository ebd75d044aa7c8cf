// Package db provides the database connection, schema migration, and the
// chat log data access helpers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// ErrNoDSN is returned by Connect when no DSN is configured.
var ErrNoDSN = errors.New("db: no DSN configured")

// Connect opens a Postgres connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// ChatRecord is one logged chat line.
type ChatRecord struct {
	ID          string
	UserID      string
	Login       string
	DisplayName string
	Channel     string
	Message     string
	Role        string
	SentAt      time.Time
}

// SaveChatMessage upserts the sender and inserts the message. Replayed
// message ids are ignored.
func SaveChatMessage(ctx context.Context, dbx *sql.DB, rec ChatRecord) error {
	userID := rec.UserID
	if userID == "" {
		userID = "login:" + rec.Login
	}
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_users(twitch_user_id, login, display_name, first_seen, last_seen)
		 VALUES($1,$2,$3,$4,$4)
		 ON CONFLICT(twitch_user_id) DO UPDATE SET
		   login=EXCLUDED.login,
		   display_name=EXCLUDED.display_name,
		   last_seen=GREATEST(chat_users.last_seen, EXCLUDED.last_seen)`,
		userID, rec.Login, rec.DisplayName, sentAt); err != nil {
		return fmt.Errorf("upsert chat user %s: %w", rec.Login, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages(id, twitch_user_id, channel, message, role, sent_at)
		 VALUES($1,$2,$3,$4,$5,$6)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, userID, rec.Channel, rec.Message, rec.Role, sentAt); err != nil {
		return fmt.Errorf("insert chat message %s: %w", rec.ID, err)
	}
	return tx.Commit()
}

// SaveCommandRun records the outcome of one chat command.
func SaveCommandRun(ctx context.Context, dbx *sql.DB, messageID, command, outcome string) error {
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO command_runs(message_id, command, outcome) VALUES($1,$2,$3)`,
		messageID, command, outcome)
	return err
}

// RecentMessages returns up to limit messages for a login, newest first.
func RecentMessages(ctx context.Context, dbx *sql.DB, login string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := dbx.QueryContext(ctx,
		`SELECT m.id, u.twitch_user_id, u.login, u.display_name, m.channel, m.message, m.role, m.sent_at
		 FROM chat_messages m JOIN chat_users u ON u.twitch_user_id = m.twitch_user_id
		 WHERE u.login = $1
		 ORDER BY m.sent_at DESC
		 LIMIT $2`, login, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var r ChatRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Login, &r.DisplayName, &r.Channel, &r.Message, &r.Role, &r.SentAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
