package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"
)

type Migration struct {
	Version string
	Name    string
	SQL     string
}

type Migrator struct {
	db *sql.DB
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the migrations tracking table if it doesn't exist
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := m.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns the set of already applied migration versions
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// LoadMigrations reads every .sql file under migrations/ in fsys, ordered by
// the version prefix of the file name ("001_init.sql" -> "001").
func (m *Migrator) LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			log.Printf("Skipping invalid migration filename: %s", entry.Name())
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version: parts[0],
			Name:    entry.Name(),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// ApplyMigration runs a single migration inside a transaction
func (m *Migrator) ApplyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", migration.Name, err)
	}

	log.Printf("Applied migration: %s", migration.Name)
	return nil
}

// Status lists every known migration with whether it has been applied.
func (m *Migrator) Status(fsys fs.FS) ([]Migration, map[string]bool, error) {
	if err := m.Initialize(); err != nil {
		return nil, nil, err
	}
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, nil, err
	}
	migrations, err := m.LoadMigrations(fsys)
	if err != nil {
		return nil, nil, err
	}
	return migrations, applied, nil
}

// Run executes all pending migrations
func (m *Migrator) Run(fsys fs.FS) error {
	migrations, applied, err := m.Status(fsys)
	if err != nil {
		return err
	}

	pendingCount := 0
	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.ApplyMigration(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		pendingCount++
	}

	if pendingCount == 0 {
		log.Println("No pending migrations")
	} else {
		log.Printf("Successfully applied %d migration(s)", pendingCount)
	}

	return nil
}

// MigrationStatus reports the embedded migrations and which are applied.
func (db *DB) MigrationStatus() ([]Migration, map[string]bool, error) {
	return NewMigrator(db.conn).Status(migrationFiles)
}
