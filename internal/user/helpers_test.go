package user

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/tgpanel/core/internal/infrastructure/database"
	"github.com/tgpanel/core/migrations"
)

// testDB opens a migrated in-memory database.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func mustCreateUser(t *testing.T, repo *SQLiteRepository, telegramID int64, name string) *User {
	t.Helper()
	u := &User{TelegramID: telegramID, Name: name}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", name, err)
	}
	return u
}

func mustCreateDevice(t *testing.T, db *sql.DB, id, serial, ownerID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.Exec(
		`INSERT INTO devices (id, serial_number, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, serial, "device "+serial, ownerID, now, now); err != nil {
		t.Fatalf("creating device %s: %v", serial, err)
	}
}
