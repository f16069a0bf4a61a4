package db

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_linkray_scans_table",
		Up: `
			CREATE TABLE IF NOT EXISTS linkray_scans (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				url_hash TEXT NOT NULL,
				url TEXT NOT NULL,
				summary TEXT NOT NULL,
				risk_score INTEGER NOT NULL,
				category TEXT NOT NULL,
				tags TEXT NOT NULL DEFAULT '[]',
				screenshot_url TEXT NOT NULL,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				UNIQUE (owner_id, url_hash)
			);
			CREATE INDEX IF NOT EXISTS idx_linkray_scans_url_hash ON linkray_scans(url_hash);
			CREATE INDEX IF NOT EXISTS idx_linkray_scans_created_at ON linkray_scans(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_linkray_scans_created_at;
			DROP INDEX IF EXISTS idx_linkray_scans_url_hash;
			DROP TABLE IF EXISTS linkray_scans;
		`,
	},
	{
		Version: 2,
		Name:    "add_reason_column",
		Up: `
			ALTER TABLE linkray_scans ADD COLUMN IF NOT EXISTS reason TEXT;
		`,
		Down: `
			ALTER TABLE linkray_scans DROP COLUMN IF EXISTS reason;
		`,
	},
	{
		Version: 3,
		Name:    "add_owner_created_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_linkray_scans_owner_created ON linkray_scans(owner_id, created_at DESC);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_linkray_scans_owner_created;
		`,
	},
}

// Migrate runs all pending migrations.
func Migrate(db *sql.DB) error {
	if err := ensureVersionTable(db); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if m.Version <= currentVersion {
			continue
		}
		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// Rollback rolls back the most recent migration.
func Rollback(db *sql.DB) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var target *Migration
	for i, m := range migrations {
		if m.Version == currentVersion {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM linkray_schema_version WHERE version = $1", currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}

func ensureVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS linkray_schema_version (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM linkray_schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func runMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO linkray_schema_version (version, name) VALUES ($1, $2)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
