package database

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type DB struct {
	conn *sql.DB
	path string
}

type Config struct {
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	if config.SQLitePath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := config.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, path: config.SQLitePath}, nil
}

// RunMigrations applies the embedded schema migrations that have not been
// applied yet.
func (db *DB) RunMigrations() error {
	return NewMigrator(db.conn).Run(migrationFiles)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Path() string {
	return db.path
}
