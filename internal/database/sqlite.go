package database

import (
	"database/sql"
	"fmt"
	"strings"

	// SQLite driver -- registers "sqlite3".
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens a SQLite database at path. ":memory:" gives a private
// in-memory database, used by tests. Foreign keys are switched on and the
// pool is limited to one connection: SQLite serializes writers anyway, and
// an in-memory database exists only on the connection that created it.
func NewSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	params := "_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params
	}
	return "file:" + path + "?" + params + "&_journal_mode=WAL"
}
