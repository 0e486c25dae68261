package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/memzapp/memz/db/migrations"
)

// RunMigrations applies all pending migrations for dialect from the embedded
// migration set. Already-applied migrations are skipped, so this is safe to
// call on every startup.
//
// The migrator is deliberately not closed: closing it closes db as well.
func RunMigrations(db *sql.DB, dialect string) error {
	src, err := iofs.New(migrations.FS, dialect)
	if err != nil {
		return fmt.Errorf("opening embedded migrations for %s: %w", dialect, err)
	}

	var driver migratedb.Driver
	switch dialect {
	case DialectMySQL:
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	case DialectSQLite:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("migrations applied",
		slog.String("dialect", dialect),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}
