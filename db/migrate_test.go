package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping migration test")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cleanDatabase(t, context.Background(), db)
	return db
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("LatestVersion() = %d, want 2", v)
	}
}

// TestRunMigrations applies migrations to an empty database.
func TestRunMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	for _, table := range []string{"chat_users", "chat_messages", "command_runs"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s does not exist after migration", table)
		}
	}

	version, dirty, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty {
		t.Errorf("migration version is dirty")
	}
	latest, _ := LatestVersion()
	if version != latest {
		t.Errorf("migration version = %d, want %d", version, latest)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 3; i++ {
		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations() run %d error = %v", i+1, err)
		}
	}
}

func TestMigrationDownAll(t *testing.T) {
	db := openTestDB(t)
	if err := RunMigrations(db); err != nil {
		t.Fatal(err)
	}
	latest, _ := LatestVersion()
	for i := uint(0); i < latest; i++ {
		if err := MigrateDown(db); err != nil {
			t.Fatalf("MigrateDown() step %d error = %v", i+1, err)
		}
	}
	if tableExists(t, db, "chat_messages") {
		t.Error("chat_messages survived a full rollback")
	}
	if err := MigrateDown(db); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestSaveChatMessage(t *testing.T) {
	db := openTestDB(t)
	if err := RunMigrations(db); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rec := ChatRecord{ID: "m-1", UserID: "42", Login: "beginbot", DisplayName: "BeginBot", Channel: "beginbot", Message: "!blur 50", Role: "broadcaster"}
	for i := 0; i < 2; i++ {
		if err := SaveChatMessage(ctx, db, rec); err != nil {
			t.Fatalf("SaveChatMessage() error = %v", err)
		}
	}
	if err := SaveChatMessage(ctx, db, ChatRecord{ID: "m-2", Login: "beginbot", Channel: "beginbot", Message: "anonymous id"}); err != nil {
		t.Fatalf("SaveChatMessage() without user id error = %v", err)
	}

	got, err := RecentMessages(ctx, db, "beginbot", 10)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentMessages() = %d rows, want 2", len(got))
	}
	if err := SaveCommandRun(ctx, db, "m-1", "blur", "ok"); err != nil {
		t.Errorf("SaveCommandRun() error = %v", err)
	}
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_name = $1
	)`, table).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", table, err)
	}
	return exists
}

// cleanDatabase drops all tables and the schema_migrations table to start fresh
func cleanDatabase(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS command_runs CASCADE`,
		`DROP TABLE IF EXISTS chat_messages CASCADE`,
		`DROP TABLE IF EXISTS chat_users CASCADE`,
		`DROP TABLE IF EXISTS schema_migrations CASCADE`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("cleanup %q: %v", stmt, err)
		}
	}
}
