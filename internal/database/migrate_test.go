package database

import (
	"io/fs"
	"path"
	"strings"
	"testing"

	"github.com/memzapp/memz/db/migrations"
)

// migrationNames lists the .up.sql files for a dialect.
func migrationNames(t *testing.T, dialect string) []string {
	t.Helper()
	files, err := fs.Glob(migrations.FS, path.Join(dialect, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing %s migrations: %v", dialect, err)
	}
	if len(files) == 0 {
		t.Fatalf("no %s migrations found", dialect)
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = path.Base(f)
	}
	return names
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	for _, dialect := range []string{DialectMySQL, DialectSQLite} {
		for _, up := range migrationNames(t, dialect) {
			down := strings.Replace(up, ".up.sql", ".down.sql", 1)
			if _, err := fs.Stat(migrations.FS, path.Join(dialect, down)); err != nil {
				t.Errorf("%s: missing down migration for %s", dialect, up)
			}
		}
	}
}

// TestMigrations_DialectsInStep checks both dialects carry the same
// migration versions, so a schema change can't land in only one of them.
func TestMigrations_DialectsInStep(t *testing.T) {
	mysqlNames := migrationNames(t, DialectMySQL)
	sqliteNames := migrationNames(t, DialectSQLite)
	if len(mysqlNames) != len(sqliteNames) {
		t.Fatalf("mysql has %d migrations, sqlite has %d", len(mysqlNames), len(sqliteNames))
	}
	for i := range mysqlNames {
		if mysqlNames[i] != sqliteNames[i] {
			t.Errorf("migration %d differs: mysql %s, sqlite %s", i, mysqlNames[i], sqliteNames[i])
		}
	}
}

func TestRunMigrations_SQLite(t *testing.T) {
	db, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db, DialectSQLite); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Second run must be a no-op.
	if err := RunMigrations(db, DialectSQLite); err != nil {
		t.Fatalf("second run: %v", err)
	}

	for _, table := range []string{"logs", "events", "event_tags", "users"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRunMigrations_UnknownDialect(t *testing.T) {
	db, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db, "postgres"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{":memory:", "file::memory:?_foreign_keys=on&_busy_timeout=5000"},
		{"./memz.db", "file:./memz.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"file:x.db?mode=ro", "file:x.db?mode=ro&_foreign_keys=on&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
