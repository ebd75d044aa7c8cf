package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/onnwee/copilot/db"
)

// ChatLogDB connects to TEST_PG_DSN, applies the embedded chat log schema and
// empties the log tables when the test ends. Without TEST_PG_DSN the test is
// skipped, since the chat log is optional in production too.
func ChatLogDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("chat log tests need a Postgres DSN in TEST_PG_DSN")
	}
	database, err := db.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect chat log db: %v", err)
	}
	if err := db.RunMigrations(database); err != nil {
		_ = database.Close()
		t.Fatalf("migrate chat log db: %v", err)
	}
	t.Cleanup(func() {
		_, _ = database.Exec(`TRUNCATE command_runs, chat_messages, chat_users`)
		_ = database.Close()
	})
	return database
}
