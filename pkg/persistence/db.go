// Package persistence stores sessions, sealed attempts and transcript lines in SQLite.
package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"devagent/pkg/logx"
)

// Open opens (creating if needed) the database at dbPath and brings its
// schema to CurrentSchemaVersion.
func Open(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	logx.NewLogger("persistence").Debug("📦 Database initialized: %s", dbPath)
	return db, nil
}

// dsn builds a modernc.org/sqlite DSN; pragmas are applied on every new connection.
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
}
