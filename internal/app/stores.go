package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/memzapp/memz/internal/config"
	"github.com/memzapp/memz/internal/database"
	"github.com/memzapp/memz/internal/plugins/auth"
	"github.com/memzapp/memz/internal/plugins/logs"
)

// Stores is the persistence layer picked by STORE_BACKEND, plus Redis when
// configured. The CLI commands open it on their own; the server wraps it
// in an App.
type Stores struct {
	// DB is the SQL pool, nil for the json backend.
	DB *sql.DB

	// Dialect is database.DialectMySQL or database.DialectSQLite, empty
	// for the json backend.
	Dialect string

	// Doc is the JSON document, nil for SQL backends.
	Doc *database.Document

	// Redis is nil when REDIS_URL is unset.
	Redis *redis.Client

	// NATS is nil when NATS_URL is unset.
	NATS *nats.Conn

	Logs  logs.Repository
	Users auth.UserRepository
}

// OpenStores connects the configured backend. SQL schemas are migrated
// when migrate is true. withServices also connects Redis and NATS when
// they are configured; commands that only touch data pass false.
func OpenStores(cfg *config.Config, migrate, withServices bool) (*Stores, error) {
	s := &Stores{}

	switch cfg.Store.Backend {
	case config.BackendMariaDB:
		db, err := database.NewMariaDB(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to MariaDB: %w", err)
		}
		s.DB, s.Dialect = db, database.DialectMySQL
	case config.BackendSQLite:
		db, err := database.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite: %w", err)
		}
		s.DB, s.Dialect = db, database.DialectSQLite
	case config.BackendJSON:
		doc, err := database.OpenDocument(cfg.Store.JSONPath)
		if err != nil {
			return nil, fmt.Errorf("opening JSON store: %w", err)
		}
		s.Doc = doc
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if s.DB != nil {
		if migrate {
			if err := database.RunMigrations(s.DB, s.Dialect); err != nil {
				_ = s.DB.Close()
				return nil, err
			}
		}
		s.Logs = logs.NewSQLRepository(s.DB, s.Dialect)
		s.Users = auth.NewSQLUserRepository(s.DB, s.Dialect)
	} else {
		s.Logs = logs.NewJSONRepository(s.Doc)
		s.Users = auth.NewJSONUserRepository(s.Doc)
	}

	if withServices && cfg.Redis.Enabled() {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		s.Redis = rdb
	}

	if withServices && cfg.NATS.Enabled() {
		nc, err := database.NewNATS(cfg.NATS)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.NATS = nc
	}

	slog.Info("stores ready",
		slog.String("backend", cfg.Store.Backend),
		slog.Bool("redis", s.Redis != nil),
		slog.Bool("nats", s.NATS != nil),
	)
	return s, nil
}

// Close releases the SQL pool and the Redis and NATS clients.
func (s *Stores) Close() error {
	var errs []error
	if s.NATS != nil {
		if err := s.NATS.Drain(); err != nil {
			s.NATS.Close()
		}
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	return errors.Join(errs...)
}
