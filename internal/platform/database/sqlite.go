package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"memberpay/internal/platform/config"
)

// Open connects to the SQLite database named by cfg.URL. A "file:" prefix is
// accepted and the busy timeout and WAL journal are always enabled so the
// server and the worker can share one file.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if strings.HasPrefix(dsn, "file:") {
		dsn = dsn[5:]
	}
	if dsn == "" {
		dsn = ":memory:"
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
