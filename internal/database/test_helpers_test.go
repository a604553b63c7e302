package database

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	config := Config{SQLitePath: filepath.Join(t.TempDir(), "framechart_test.db")}

	db, err := NewDB(config)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}
