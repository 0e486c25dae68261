package logs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memzapp/memz/internal/analytics"
	"github.com/memzapp/memz/internal/apperror"
	"github.com/memzapp/memz/internal/database"
)

// ErrPartialDelete is returned when a log's events were removed but the log
// itself could not be. The SQL store rolls the whole delete back; the error
// still reaches the caller so the failure is never silent.
var ErrPartialDelete = errors.New("log delete did not complete")

// eventConflict reports an imported event whose id is already stored.
func eventConflict(id string) error {
	return apperror.NewConflict(fmt.Sprintf("Event id %q already exists; nothing was imported.", id))
}

// Repository defines the data access contract for logs and events.
// Implementations return Log and Event values already normalized: tags
// lowercased and deduplicated, events newest-first.
type Repository interface {
	CreateLog(ctx context.Context, l *Log) error
	FindLog(ctx context.Context, id string) (*Log, error)
	ListLogs(ctx context.Context) ([]Log, error)
	DeleteLog(ctx context.Context, id string) error

	CreateEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, logID string) ([]Event, error)
	DeleteEvent(ctx context.Context, logID, eventID string) error

	// ExportAll returns every log with its events loaded.
	ExportAll(ctx context.Context) ([]Log, error)

	// Import inserts logs with their events as given, keeping ids and
	// timestamps. Logs whose id already exists are skipped. An event id
	// that is already stored is a conflict and nothing is imported.
	// Returns the number of logs imported.
	Import(ctx context.Context, logs []Log) (int, error)
}

// sqlRepository implements Repository for MariaDB and SQLite. Both dialects
// share the same queries; only row locking differs.
type sqlRepository struct {
	db      *sql.DB
	dialect string
}

// NewSQLRepository creates a repository over db. dialect is
// database.DialectMySQL or database.DialectSQLite.
func NewSQLRepository(db *sql.DB, dialect string) Repository {
	return &sqlRepository{db: db, dialect: dialect}
}

// lockLogQuery selects the log row inside a transaction. MariaDB takes a
// row lock so concurrent event inserts agree on seq; SQLite already holds
// the single writer lock.
func (r *sqlRepository) lockLogQuery() string {
	if r.dialect == database.DialectMySQL {
		return `SELECT id FROM logs WHERE id = ? FOR UPDATE`
	}
	return `SELECT id FROM logs WHERE id = ?`
}

// withTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (r *sqlRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- Logs ---

// CreateLog inserts a new log row.
func (r *sqlRepository) CreateLog(ctx context.Context, l *Log) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO logs (id, title, description, color, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.Title, l.Description, l.Color, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting log: %w", err)
	}
	return nil
}

// FindLog returns a log with its events loaded.
func (r *sqlRepository) FindLog(ctx context.Context, id string) (*Log, error) {
	l := &Log{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, color, created_at FROM logs WHERE id = ?`, id,
	).Scan(&l.ID, &l.Title, &l.Description, &l.Color, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("log not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying log: %w", err)
	}

	l.CreatedAt = l.CreatedAt.UTC()

	events, err := r.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Events = events
	l.EventCount = len(events)
	return l, nil
}

// ListLogs returns all logs, newest first, with event counts but no events.
func (r *sqlRepository) ListLogs(ctx context.Context) ([]Log, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.title, l.description, l.color, l.created_at,
		        (SELECT COUNT(*) FROM events e WHERE e.log_id = l.id)
		 FROM logs l
		 ORDER BY l.created_at DESC, l.id`)
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	defer rows.Close()

	logs := []Log{}
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.Title, &l.Description, &l.Color, &l.CreatedAt, &l.EventCount); err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}
		l.CreatedAt = l.CreatedAt.UTC()
		l.Events = []Event{}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteLog removes a log and all of its events in a single transaction.
// Children go first so a failure part way leaves nothing half-deleted once
// the transaction is rolled back.
func (r *sqlRepository) DeleteLog(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var found string
		err := tx.QueryRowContext(ctx, r.lockLogQuery(), id).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound("log not found")
		}
		if err != nil {
			return fmt.Errorf("locking log: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM event_tags WHERE event_id IN (SELECT id FROM events WHERE log_id = ?)`, id,
		); err != nil {
			return fmt.Errorf("deleting event tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE log_id = ?`, id); err != nil {
			return fmt.Errorf("deleting events: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM logs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("%w: deleting log: %v", ErrPartialDelete, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: log row vanished", ErrPartialDelete)
		}
		return nil
	})
}

// --- Events ---

// CreateEvent inserts an event at the head of its log along with its tags.
// Fails with not-found if the log doesn't exist.
func (r *sqlRepository) CreateEvent(ctx context.Context, e *Event) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var found string
		err := tx.QueryRowContext(ctx, r.lockLogQuery(), e.LogID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound("log not found")
		}
		if err != nil {
			return fmt.Errorf("locking log: %w", err)
		}
		return insertEvent(ctx, tx, e)
	})
}

// insertEvent writes one event and its tags. The event's seq is one past
// the log's current maximum, which places it first in newest-first order.
func insertEvent(ctx context.Context, tx *sql.Tx, e *Event) error {
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE log_id = ?`, e.LogID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("computing event sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, log_id, seq, title, description, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LogID, seq, e.Title, e.Description, e.Timestamp, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	for i, tag := range e.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_tags (event_id, position, tag) VALUES (?, ?, ?)`,
			e.ID, i, tag,
		); err != nil {
			return fmt.Errorf("inserting event tag: %w", err)
		}
	}
	return nil
}

// ListEvents returns a log's events newest-first, tags included. An unknown
// log yields an empty list.
func (r *sqlRepository) ListEvents(ctx context.Context, logID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, log_id, title, description, occurred_at, created_at
		 FROM events WHERE log_id = ? ORDER BY seq DESC`, logID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	tags, err := r.loadTags(ctx,
		`SELECT t.event_id, t.tag FROM event_tags t
		 JOIN events e ON e.id = t.event_id
		 WHERE e.log_id = ? ORDER BY t.event_id, t.position`, logID)
	if err != nil {
		return nil, err
	}
	attachTags(events, tags)
	return events, nil
}

// DeleteEvent removes one event. Deleting an absent event is not an error.
func (r *sqlRepository) DeleteEvent(ctx context.Context, logID, eventID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM event_tags WHERE event_id IN (SELECT id FROM events WHERE id = ? AND log_id = ?)`,
			eventID, logID,
		); err != nil {
			return fmt.Errorf("deleting event tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE id = ? AND log_id = ?`, eventID, logID,
		); err != nil {
			return fmt.Errorf("deleting event: %w", err)
		}
		return nil
	})
}

// --- Bulk ---

// ExportAll loads every log with its events using three queries.
func (r *sqlRepository) ExportAll(ctx context.Context) ([]Log, error) {
	logs, err := r.ListLogs(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, log_id, title, description, occurred_at, created_at
		 FROM events ORDER BY log_id, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing all events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	tags, err := r.loadTags(ctx,
		`SELECT event_id, tag FROM event_tags ORDER BY event_id, position`)
	if err != nil {
		return nil, err
	}
	attachTags(events, tags)

	byLog := make(map[string][]Event, len(logs))
	for _, e := range events {
		byLog[e.LogID] = append(byLog[e.LogID], e)
	}
	for i := range logs {
		if evs, ok := byLog[logs[i].ID]; ok {
			logs[i].Events = evs
		}
		logs[i].EventCount = len(logs[i].Events)
	}
	return logs, nil
}

// Import inserts each new log and its events in one transaction. Events are
// inserted oldest-first so seq preserves the given newest-first order.
func (r *sqlRepository) Import(ctx context.Context, logs []Log) (int, error) {
	imported := 0
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, l := range logs {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs WHERE id = ?`, l.ID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("checking log %s: %w", l.ID, err)
			}
			if exists > 0 {
				continue
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO logs (id, title, description, color, created_at) VALUES (?, ?, ?, ?, ?)`,
				l.ID, l.Title, l.Description, l.Color, l.CreatedAt,
			); err != nil {
				return fmt.Errorf("inserting log %s: %w", l.ID, err)
			}

			for i := len(l.Events) - 1; i >= 0; i-- {
				e := l.Events[i]
				var taken int
				if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, e.ID).Scan(&taken); err != nil {
					return fmt.Errorf("checking event %s: %w", e.ID, err)
				}
				if taken > 0 {
					return eventConflict(e.ID)
				}
				e.LogID = l.ID
				if err := insertEvent(ctx, tx, &e); err != nil {
					return fmt.Errorf("importing event %s: %w", e.ID, err)
				}
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// --- Helpers ---

// scanEvents reads event rows and closes them.
func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.LogID, &e.Title, &e.Description, &e.Timestamp, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		e.Tags = []string{}
		events = append(events, e)
	}
	return events, rows.Err()
}

// loadTags runs a query returning (event_id, tag) rows in position order and
// groups the tags by event.
func (r *sqlRepository) loadTags(ctx context.Context, query string, args ...any) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing event tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string][]string)
	for rows.Next() {
		var eventID, tag string
		if err := rows.Scan(&eventID, &tag); err != nil {
			return nil, fmt.Errorf("scanning event tag: %w", err)
		}
		tags[eventID] = append(tags[eventID], tag)
	}
	return tags, rows.Err()
}

// attachTags sets each event's tags, normalized in case rows were written
// by something other than this repository.
func attachTags(events []Event, tags map[string][]string) {
	for i := range events {
		if t, ok := tags[events[i].ID]; ok {
			events[i].Tags = analytics.NormalizeTags(t)
		}
	}
}

// storeTime truncates to the microsecond precision both SQL dialects keep.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
