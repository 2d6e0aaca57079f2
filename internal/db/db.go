package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/memomind/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// ArtifactsDir is the subdirectory holding locally materialized PDF artifacts.
const ArtifactsDir = "artifacts"

// Init initializes the SQLite database at baseDir/memomind.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.memomind.
func Init(baseDir string) (*sql.DB, error) {
	// Session tokens live here, keep it private
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	artifactsDir := filepath.Join(baseDir, ArtifactsDir)
	if err := os.MkdirAll(artifactsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	_ = os.Chmod(artifactsDir, 0700)

	dbPath := filepath.Join(baseDir, "memomind.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: key-value session store and artifact registry
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS kv (
		  key        TEXT PRIMARY KEY,
		  value      TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS artifacts (
		  id          TEXT PRIMARY KEY,
		  owner       TEXT NOT NULL,
		  path        TEXT NOT NULL,
		  filename    TEXT NOT NULL,
		  size_bytes  INTEGER NOT NULL,
		  created_at  INTEGER NOT NULL,
		  released_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_artifacts_unreleased
		ON artifacts(owner, created_at)
		WHERE released_at IS NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
		version = 1
	}

	// Migration 1 -> 2: record which process registered each artifact
	if version < 2 {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		for _, stmt := range []string{
			`ALTER TABLE artifacts ADD COLUMN process TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE artifacts ADD COLUMN pid INTEGER NOT NULL DEFAULT 0`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_process ON artifacts(process) WHERE released_at IS NULL`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migration 2 failed: %w", err)
			}
		}
		if _, err := tx.Exec("PRAGMA user_version=2"); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
