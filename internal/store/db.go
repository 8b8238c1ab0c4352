// Package store keeps the history of detection runs in SQLite.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// migration upgrades the schema to version from version-1.
type migration struct {
	version int
	file    string
}

// migrations are applied in order, each in its own transaction.
var migrations = []migration{
	{version: 1, file: "schema.sql"},
}

// CurrentSchemaVersion is the version a freshly opened database ends at.
var CurrentSchemaVersion = migrations[len(migrations)-1].version

const pragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

// DB is the run history database.
type DB struct {
	sqlDB *sql.DB
	path  string
}

// Open opens or creates the history database at path and brings its
// schema up to date.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	db := &DB{sqlDB: sqlDB, path: path}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", version, CurrentSchemaVersion)
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := db.apply(m); err != nil {
			return fmt.Errorf("schema version %d: %w", m.version, err)
		}
	}
	return nil
}

func (db *DB) apply(m migration) error {
	script, err := schemaFS.ReadFile(m.file)
	if err != nil {
		return err
	}

	tx, err := db.sqlDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(script)); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// getSchemaVersion returns 0 for a database without a schema_version table.
func (db *DB) getSchemaVersion() (int, error) {
	var exists int
	if err := db.sqlDB.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version sql.NullInt64
	err := db.sqlDB.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Clear removes every stored run.
func (db *DB) Clear() error {
	// members go with their runs through ON DELETE CASCADE
	if _, err := db.sqlDB.Exec("DELETE FROM runs"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// DBStats describes the history database.
type DBStats struct {
	RunCount    int64
	MemberCount int64
	SizeBytes   int64
}

func (db *DB) Stats() (*DBStats, error) {
	stats := &DBStats{}
	if err := db.sqlDB.QueryRow(
		"SELECT (SELECT COUNT(*) FROM runs), (SELECT COUNT(*) FROM members)",
	).Scan(&stats.RunCount, &stats.MemberCount); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	for _, p := range []string{db.path, db.path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			stats.SizeBytes += info.Size()
		}
	}
	return stats, nil
}
